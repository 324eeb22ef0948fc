package types

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"
)

// ParamKey identifies one normalized tariff parameter.
type ParamKey string

const (
	// ParamEnergyQuota is the network-services energy component in €/kWh.
	ParamEnergyQuota ParamKey = "energy_quota"
	// ParamFixedTransportQuota is the monthly fixed transport fee in €.
	ParamFixedTransportQuota ParamKey = "fixed_transport_quota"
	// ParamPowerQuota is the monthly power fee in €/kW.
	ParamPowerQuota ParamKey = "power_quota"
	// ParamSystemChargeASOS is the ASOS system charge in €/kWh.
	ParamSystemChargeASOS ParamKey = "asos"
	// ParamSystemChargeARIM is the ARIM system charge in €/kWh.
	ParamSystemChargeARIM ParamKey = "arim"
	// ParamExciseTax is the excise (accisa) rate in €/kWh.
	ParamExciseTax ParamKey = "excise_tax"
	// ParamVATRate is the VAT (IVA) rate as a percentage, e.g. 10.
	ParamVATRate ParamKey = "vat_rate"
	// ParamNetworkLossPercentage is the network loss (lambda) as a percentage.
	ParamNetworkLossPercentage ParamKey = "network_loss_percentage"
)

// ParamKeys lists every known key in a stable order.
var ParamKeys = []ParamKey{
	ParamEnergyQuota,
	ParamFixedTransportQuota,
	ParamPowerQuota,
	ParamSystemChargeASOS,
	ParamSystemChargeARIM,
	ParamExciseTax,
	ParamVATRate,
	ParamNetworkLossPercentage,
}

// TariffParameterSet maps parameter keys to values found in a source for one
// period. A missing key means the source did not provide the value.
type TariffParameterSet map[ParamKey]float64

// Get returns the value for k and whether it is present.
func (s TariffParameterSet) Get(k ParamKey) (float64, bool) {
	v, ok := s[k]
	return v, ok
}

// Set stores v under k. Non-finite values are rejected so a present key
// always holds a usable number.
func (s TariffParameterSet) Set(k ParamKey, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	s[k] = v
	return true
}

// Clone returns an independent copy. A nil set clones to an empty one.
func (s TariffParameterSet) Clone() TariffParameterSet {
	out := make(TariffParameterSet, len(s))
	maps.Copy(out, s)
	return out
}

// WithFallback returns a copy of s where keys missing in s are taken from
// fallback. Keys present in s are never overwritten.
func (s TariffParameterSet) WithFallback(fallback TariffParameterSet) TariffParameterSet {
	out := s.Clone()
	for k, v := range fallback {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Keys returns the present keys sorted alphabetically.
func (s TariffParameterSet) Keys() []ParamKey {
	return slices.Sorted(maps.Keys(s))
}

// PeriodKey identifies a tariff period: a month for the ARERA workbook or a
// single day for Portale Offerte files. Day is 0 for monthly periods.
type PeriodKey struct {
	Year  int
	Month time.Month
	Day   int
}

// MonthPeriod returns the monthly PeriodKey for year and month.
func MonthPeriod(year int, month time.Month) PeriodKey {
	return PeriodKey{Year: year, Month: month}
}

// DatePeriod returns the daily PeriodKey for t's calendar date.
func DatePeriod(t time.Time) PeriodKey {
	return PeriodKey{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// String formats the key as "YYYY_MM" for months and "YYYYMMDD" for days.
// These are also the cache keys.
func (p PeriodKey) String() string {
	if p.Day == 0 {
		return fmt.Sprintf("%04d_%02d", p.Year, int(p.Month))
	}
	return fmt.Sprintf("%04d%02d%02d", p.Year, int(p.Month), p.Day)
}

// Previous returns the month before p. Only meaningful for monthly keys.
func (p PeriodKey) Previous() PeriodKey {
	if p.Month == time.January {
		return MonthPeriod(p.Year-1, time.December)
	}
	return MonthPeriod(p.Year, p.Month-1)
}

// HouseType is the consumer class of the supply point.
type HouseType string

const (
	HouseTypeResidential    HouseType = "residential"
	HouseTypeNotResidential HouseType = "not_residential"
)

// Validate checks that h is a known house type.
func (h HouseType) Validate() error {
	switch h {
	case HouseTypeResidential, HouseTypeNotResidential:
		return nil
	default:
		return fmt.Errorf("unknown house type: %q", string(h))
	}
}

// ConsumerProfile selects the tariff rows and CSV fields for a supply point.
type ConsumerProfile struct {
	HouseType         HouseType `json:"houseType" yaml:"house_type"`
	ContractedPowerKW float64   `json:"contractedPowerKW" yaml:"contracted_power_kw"`
}

// HighPower reports whether the contracted power is above 3 kW.
func (p ConsumerProfile) HighPower() bool {
	return p.ContractedPowerKW > 3
}

// TariffSnapshot is the published pair of parameter sets used by billing.
// It is replaced wholesale on every successful refresh.
type TariffSnapshot struct {
	Current        TariffParameterSet `json:"current"`
	Previous       TariffParameterSet `json:"previous"`
	CurrentPeriod  string             `json:"currentPeriod"`
	PreviousPeriod string             `json:"previousPeriod"`
	FetchedAt      time.Time          `json:"fetchedAt"`
	// Stale is set when the latest refresh failed and these values come from
	// an earlier one.
	Stale bool `json:"stale"`
}
