package types

import "time"

// Price is a live market price as delivered by the upstream price feed.
type Price struct {
	Provider string    `json:"provider"`
	TSStart  time.Time `json:"tsStart"`
	TSEnd    time.Time `json:"tsEnd"`

	// EuroPerKWH is the wholesale price of electricity in the time interval.
	EuroPerKWH float64 `json:"euroPerKWH"`

	// Fascia is the time band (F1, F2, F3) the price belongs to, if known.
	Fascia string `json:"fascia,omitempty"`
}

// LivePrice holds the latest live price and the one for the previous billing
// period. Nil means the feed has not delivered a value.
type LivePrice struct {
	Current  *Price `json:"current"`
	Previous *Price `json:"previous"`
}
