package types

import (
	"fmt"
	"time"
)

// BillingMode is how often the supplier issues a bill.
type BillingMode string

const (
	BillingModeMonthly   BillingMode = "monthly"
	BillingModeBimonthly BillingMode = "bimonthly"
)

// PricingMode selects where the energy unit price comes from.
type PricingMode string

const (
	// PricingModeLive uses the hourly market price pushed by the price feed.
	PricingModeLive PricingMode = "live"
	// PricingModeFixed uses BillingConfig.FixedPrice.
	PricingModeFixed PricingMode = "fixed"
)

// BillingCycleState determines whether the previous period is billed together
// with the current one.
type BillingCycleState struct {
	Mode BillingMode `json:"mode"`
	// ShiftParity moves bimonthly bills to odd months.
	ShiftParity  bool       `json:"shiftParity"`
	CurrentMonth time.Month `json:"currentMonth"`
}

// IncludePrevious reports whether the previous period's parameters and
// consumption are folded into the current bill.
func (c BillingCycleState) IncludePrevious() bool {
	if c.Mode != BillingModeBimonthly {
		return false
	}
	if c.ShiftParity {
		return c.CurrentMonth%2 == 1
	}
	return c.CurrentMonth%2 == 0
}

// ConsumptionReading is the meter reading in kWh. Nil fields are unavailable.
type ConsumptionReading struct {
	Current    *float64  `json:"current"`
	LastPeriod *float64  `json:"lastPeriod"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// BillingConfig is the user-configured part of the bill.
type BillingConfig struct {
	Profile ConsumerProfile `json:"profile" yaml:"profile"`

	MonthlyFee          float64 `json:"monthlyFee" yaml:"monthly_fee"`
	FixQuotaAggrMeasure float64 `json:"fixQuotaAggrMeasure" yaml:"fix_quota_aggr_measure"`
	OtherFee            float64 `json:"otherFee" yaml:"other_fee"`
	Discount            float64 `json:"discount" yaml:"discount"`
	TVTax               float64 `json:"tvTax" yaml:"tv_tax"`

	// Defaults used only when the published tariffs lack the key.
	VATPercent         *float64 `json:"vatPercent,omitempty" yaml:"vat_percent"`
	NetworkLossPercent *float64 `json:"networkLossPercent,omitempty" yaml:"nw_loss_percent"`
	ExciseRate         *float64 `json:"exciseRate,omitempty" yaml:"excise_rate"`

	BillingMode BillingMode `json:"billingMode" yaml:"billing_mode"`
	ShiftParity bool        `json:"shiftParity" yaml:"shift_parity"`

	PricingMode PricingMode `json:"pricingMode" yaml:"pricing_mode"`
	FixedPrice  *float64    `json:"fixedPrice,omitempty" yaml:"fixed_price"`
}

// Defaults returns the configured fallback parameters as a set.
func (c BillingConfig) Defaults() TariffParameterSet {
	s := TariffParameterSet{}
	if c.VATPercent != nil {
		s.Set(ParamVATRate, *c.VATPercent)
	}
	if c.NetworkLossPercent != nil {
		s.Set(ParamNetworkLossPercentage, *c.NetworkLossPercent)
	}
	if c.ExciseRate != nil {
		s.Set(ParamExciseTax, *c.ExciseRate)
	}
	return s
}

// Validate checks the configuration for values that cannot be billed.
func (c BillingConfig) Validate() error {
	if err := c.Profile.HouseType.Validate(); err != nil {
		return err
	}
	if c.Profile.ContractedPowerKW <= 0 {
		return fmt.Errorf("contracted power must be positive: %v", c.Profile.ContractedPowerKW)
	}
	switch c.BillingMode {
	case BillingModeMonthly, BillingModeBimonthly:
	default:
		return fmt.Errorf("unknown billing mode: %q", string(c.BillingMode))
	}
	switch c.PricingMode {
	case PricingModeLive:
	case PricingModeFixed:
		if c.FixedPrice == nil {
			return fmt.Errorf("fixed pricing mode requires fixed_price")
		}
	default:
		return fmt.Errorf("unknown pricing mode: %q", string(c.PricingMode))
	}
	for name, v := range map[string]float64{
		"monthly_fee":            c.MonthlyFee,
		"fix_quota_aggr_measure": c.FixQuotaAggrMeasure,
		"other_fee":              c.OtherFee,
		"discount":               c.Discount,
		"tv_tax":                 c.TVTax,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative: %v", name, v)
		}
	}
	if c.VATPercent != nil && (*c.VATPercent < 0 || *c.VATPercent > 100) {
		return fmt.Errorf("vat_percent must be within 0-100: %v", *c.VATPercent)
	}
	if c.NetworkLossPercent != nil && (*c.NetworkLossPercent < 0 || *c.NetworkLossPercent > 100) {
		return fmt.Errorf("nw_loss_percent must be within 0-100: %v", *c.NetworkLossPercent)
	}
	return nil
}

// LineItemID identifies a bill line. The numeric order is the publication
// order.
type LineItemID int

const (
	ItemFixedEnergyQuote LineItemID = iota + 1
	ItemVariableEnergyQuote
	ItemFixedTransportQuote
	ItemPowerQuote
	ItemVariableTransportEnergyQuote
	ItemSystemChargeQuote
	ItemExciseTax
	ItemVAT
	ItemTotal
	ItemKWhPrice
)

var lineItemNames = map[LineItemID]string{
	ItemFixedEnergyQuote:             "fixed_energy_quote",
	ItemVariableEnergyQuote:          "variable_energy_quote",
	ItemFixedTransportQuote:          "fixed_transport_quote",
	ItemPowerQuote:                   "power_quote",
	ItemVariableTransportEnergyQuote: "variable_transport_energy_quote",
	ItemSystemChargeQuote:            "system_charge_quote",
	ItemExciseTax:                    "excise_tax",
	ItemVAT:                          "vat",
	ItemTotal:                        "total",
	ItemKWhPrice:                     "kwh_price",
}

func (id LineItemID) String() string {
	if n, ok := lineItemNames[id]; ok {
		return n
	}
	return fmt.Sprintf("item_%d", int(id))
}

// LineItem is one published bill value. When Available is false Value is
// meaningless and Reason says which input was missing.
type LineItem struct {
	ID        LineItemID `json:"-"`
	Name      string     `json:"name"`
	Value     float64    `json:"value"`
	Available bool       `json:"available"`
	Reason    string     `json:"reason,omitempty"`
}

// BillLineItems is the result of one recompute pass.
type BillLineItems struct {
	FixedEnergyQuote             LineItem `json:"fixedEnergyQuote"`
	VariableEnergyQuote          LineItem `json:"variableEnergyQuote"`
	FixedTransportQuote          LineItem `json:"fixedTransportQuote"`
	PowerQuote                   LineItem `json:"powerQuote"`
	VariableTransportEnergyQuote LineItem `json:"variableTransportEnergyQuote"`
	SystemChargeQuote            LineItem `json:"systemChargeQuote"`
	ExciseTax                    LineItem `json:"exciseTax"`
	VAT                          LineItem `json:"vat"`
	Total                        LineItem `json:"total"`
	KWhPrice                     LineItem `json:"kwhPrice"`

	IncludePrevious bool      `json:"includePrevious"`
	ComputedAt      time.Time `json:"computedAt"`
}

// Ordered returns the items in publication order.
func (b BillLineItems) Ordered() []LineItem {
	return []LineItem{
		b.FixedEnergyQuote,
		b.VariableEnergyQuote,
		b.FixedTransportQuote,
		b.PowerQuote,
		b.VariableTransportEnergyQuote,
		b.SystemChargeQuote,
		b.ExciseTax,
		b.VAT,
		b.Total,
		b.KWhPrice,
	}
}

// Taxable returns items 1 through 7, the base for VAT.
func (b BillLineItems) Taxable() []LineItem {
	return b.Ordered()[:7]
}
