// Package metrics holds the Prometheus collectors. Each bill line item is
// exported as its own series so dashboards and alerts can follow a single
// item.
package metrics

import (
	"github.com/bolletta/bolletta/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "bolletta_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultMiss    = "miss"
)

var (
	fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "fetch_attempts_total",
			Help: "Tariff source download attempts by source and result",
		},
		[]string{"source", "result"},
	)

	refreshResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "refresh_total",
			Help: "Tariff refresh passes by result",
		},
		[]string{"result"},
	)

	lastRefresh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "tariff_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful tariff refresh",
		},
	)

	tariffStale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "tariff_stale",
			Help: "1 when the published tariffs come from an earlier refresh",
		},
	)

	tariffParams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricPrefix + "tariff_parameter",
			Help: "Published tariff parameters by period (mp, mpp) and key",
		},
		[]string{"period", "key"},
	)

	billItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricPrefix + "bill_item_euros",
			Help: "Bill line item values; kwh_price is in euro per kWh",
		},
		[]string{"item"},
	)

	billItemAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricPrefix + "bill_item_available",
			Help: "1 when the bill line item could be computed",
		},
		[]string{"item"},
	)
)

func init() {
	prometheus.MustRegister(
		fetchAttempts,
		refreshResults,
		lastRefresh,
		tariffStale,
		tariffParams,
		billItems,
		billItemAvailable,
	)
}

// ObserveFetch counts one download attempt against source.
func ObserveFetch(source, result string) {
	fetchAttempts.WithLabelValues(source, result).Inc()
}

// ObserveRefresh counts a refresh pass.
func ObserveRefresh(result string) {
	refreshResults.WithLabelValues(result).Inc()
}

// PublishTariffs exports the snapshot. Keys that disappeared from a period
// are removed so a missing parameter is never reported with an old value.
func PublishTariffs(s types.TariffSnapshot) {
	if s.Stale {
		tariffStale.Set(1)
	} else {
		tariffStale.Set(0)
		lastRefresh.Set(float64(s.FetchedAt.Unix()))
	}
	for period, set := range map[string]types.TariffParameterSet{"mp": s.Current, "mpp": s.Previous} {
		for _, k := range types.ParamKeys {
			if v, ok := set.Get(k); ok {
				tariffParams.WithLabelValues(period, string(k)).Set(v)
			} else {
				tariffParams.DeleteLabelValues(period, string(k))
			}
		}
	}
}

// PublishBill exports every line item in publication order. Unavailable
// items drop their value series and report 0 availability.
func PublishBill(b types.BillLineItems) {
	for _, item := range b.Ordered() {
		name := item.ID.String()
		if item.Available {
			billItems.WithLabelValues(name).Set(item.Value)
			billItemAvailable.WithLabelValues(name).Set(1)
		} else {
			billItems.DeleteLabelValues(name)
			billItemAvailable.WithLabelValues(name).Set(0)
		}
	}
}
