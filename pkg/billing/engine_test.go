package billing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func ptr[T any](v T) *T {
	return &v
}

func scenario() Input {
	return Input{
		Tariffs: types.TariffSnapshot{
			Current: types.TariffParameterSet{
				types.ParamEnergyQuota:           0.0122,
				types.ParamSystemChargeASOS:      0.0298,
				types.ParamSystemChargeARIM:      0.0088,
				types.ParamExciseTax:             0.0227,
				types.ParamFixedTransportQuota:   1.8,
				types.ParamPowerQuota:            1.9,
				types.ParamNetworkLossPercentage: 10,
				types.ParamVATRate:               10,
			},
			Previous: types.TariffParameterSet{
				types.ParamEnergyQuota:         0.0130,
				types.ParamFixedTransportQuota: 1.7,
				types.ParamPowerQuota:          1.8,
			},
		},
		Config: types.BillingConfig{
			Profile:             types.ConsumerProfile{HouseType: types.HouseTypeResidential, ContractedPowerKW: 3},
			MonthlyFee:          12,
			FixQuotaAggrMeasure: 0.007,
			OtherFee:            0.0147,
			TVTax:               7.5,
			BillingMode:         types.BillingModeMonthly,
			PricingMode:         types.PricingModeFixed,
			FixedPrice:          ptr(0.20),
		},
		Cycle:   types.BillingCycleState{Mode: types.BillingModeMonthly, CurrentMonth: time.March},
		Reading: types.ConsumptionReading{Current: ptr(150.0), LastPeriod: ptr(100.0)},
	}
}

func values(b types.BillLineItems) []float64 {
	var out []float64
	for _, item := range b.Ordered() {
		out = append(out, item.Value)
	}
	return out
}

func TestComputeMonthly(t *testing.T) {
	ctx := context.Background()
	bill := Compute(ctx, scenario())

	for _, item := range bill.Ordered() {
		assert.True(t, item.Available, item.Name)
		assert.Empty(t, item.Reason, item.Name)
	}
	assert.False(t, bill.IncludePrevious)
	assert.Equal(t, []float64{12.01, 34.50, 1.80, 5.70, 1.83, 5.79, 3.41, 6.50, 86.54, 0.30}, values(bill))

	t.Run("tv tax not charged in november and december", func(t *testing.T) {
		for _, m := range []time.Month{time.November, time.December} {
			in := scenario()
			in.Cycle.CurrentMonth = m
			assert.Equal(t, 71.54, Compute(ctx, in).Total.Value, m.String())
		}
		in := scenario()
		in.Cycle.CurrentMonth = time.October
		assert.Equal(t, 86.54, Compute(ctx, in).Total.Value)
	})

	t.Run("discount", func(t *testing.T) {
		in := scenario()
		in.Config.Discount = 1
		bill := Compute(ctx, in)
		// 10% of 65.04 is 6.50, then twice the discount comes off
		assert.Equal(t, 4.50, bill.VAT.Value)
		assert.Equal(t, 82.54, bill.Total.Value)
	})
}

func TestComputeBimonthly(t *testing.T) {
	ctx := context.Background()
	in := scenario()
	in.Config.BillingMode = types.BillingModeBimonthly
	in.Cycle = types.BillingCycleState{Mode: types.BillingModeBimonthly, CurrentMonth: time.February}

	bill := Compute(ctx, in)
	assert.True(t, bill.IncludePrevious)
	// previous ASOS, ARIM and excise fall back to the current values
	assert.Equal(t, []float64{24.01, 57.50, 3.50, 11.10, 3.13, 9.65, 5.68, 11.46, 141.03, 0.30}, values(bill))

	t.Run("odd month with shifted parity", func(t *testing.T) {
		in := in
		in.Cycle.CurrentMonth = time.March
		in.Cycle.ShiftParity = true
		assert.Equal(t, 141.03, Compute(ctx, in).Total.Value)
	})

	t.Run("odd month without shift", func(t *testing.T) {
		in := in
		in.Cycle.CurrentMonth = time.January
		bill := Compute(ctx, in)
		assert.False(t, bill.IncludePrevious)
		assert.Equal(t, 12.01, bill.FixedEnergyQuote.Value)
	})

	t.Run("missing previous reading", func(t *testing.T) {
		in := in
		in.Reading.LastPeriod = nil
		bill := Compute(ctx, in)
		assert.True(t, bill.FixedEnergyQuote.Available)
		assert.True(t, bill.FixedTransportQuote.Available)
		assert.True(t, bill.PowerQuote.Available)
		assert.True(t, bill.KWhPrice.Available)
		for _, item := range []types.LineItem{bill.VariableEnergyQuote, bill.VariableTransportEnergyQuote, bill.SystemChargeQuote, bill.ExciseTax, bill.VAT, bill.Total} {
			assert.False(t, item.Available, item.Name)
		}
		assert.Contains(t, bill.ExciseTax.Reason, "previous consumption")
	})

	t.Run("live previous price", func(t *testing.T) {
		in := in
		in.Config.PricingMode = types.PricingModeLive
		in.Config.FixedPrice = nil
		in.Price = types.LivePrice{
			Current:  &types.Price{EuroPerKWH: 0.20},
			Previous: &types.Price{EuroPerKWH: 0.10},
		}
		// previous unit price 0.10 + 0.01 + 0.01 = 0.12
		assert.Equal(t, 46.50, Compute(ctx, in).VariableEnergyQuote.Value)

		in.Price.Previous = nil
		assert.Equal(t, 57.50, Compute(ctx, in).VariableEnergyQuote.Value)
	})
}

func TestComputeUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("no reading", func(t *testing.T) {
		in := scenario()
		in.Reading.Current = nil
		bill := Compute(ctx, in)

		assert.Equal(t, 12.01, bill.FixedEnergyQuote.Value)
		assert.True(t, bill.FixedTransportQuote.Available)
		assert.True(t, bill.PowerQuote.Available)
		assert.True(t, bill.KWhPrice.Available)
		for _, item := range []types.LineItem{bill.VariableEnergyQuote, bill.VariableTransportEnergyQuote, bill.SystemChargeQuote, bill.ExciseTax} {
			assert.False(t, item.Available, item.Name)
			assert.Zero(t, item.Value, item.Name)
			assert.Contains(t, item.Reason, "current consumption reading")
		}
		assert.False(t, bill.VAT.Available)
		assert.Contains(t, bill.VAT.Reason, "variable_energy_quote")
		assert.False(t, bill.Total.Available)
	})

	t.Run("no live price", func(t *testing.T) {
		in := scenario()
		in.Config.PricingMode = types.PricingModeLive
		bill := Compute(ctx, in)

		assert.False(t, bill.VariableEnergyQuote.Available)
		assert.False(t, bill.KWhPrice.Available)
		assert.False(t, bill.Total.Available)
		assert.True(t, bill.VariableTransportEnergyQuote.Available)
		assert.True(t, bill.ExciseTax.Available)
	})

	t.Run("missing parameter", func(t *testing.T) {
		in := scenario()
		delete(in.Tariffs.Current, types.ParamSystemChargeARIM)
		bill := Compute(ctx, in)

		assert.False(t, bill.SystemChargeQuote.Available)
		assert.Contains(t, bill.SystemChargeQuote.Reason, "arim")
		assert.False(t, bill.KWhPrice.Available)
		assert.True(t, bill.ExciseTax.Available)
	})

	t.Run("configured defaults", func(t *testing.T) {
		in := scenario()
		delete(in.Tariffs.Current, types.ParamVATRate)
		delete(in.Tariffs.Current, types.ParamNetworkLossPercentage)
		bill := Compute(ctx, in)
		assert.False(t, bill.VAT.Available)
		assert.False(t, bill.VariableEnergyQuote.Available)

		in.Config.VATPercent = ptr(10.0)
		in.Config.NetworkLossPercent = ptr(10.0)
		bill = Compute(ctx, in)
		assert.Equal(t, 86.54, bill.Total.Value)
	})

	t.Run("fetched values win over defaults", func(t *testing.T) {
		in := scenario()
		in.Config.VATPercent = ptr(22.0)
		assert.Equal(t, 6.50, Compute(ctx, in).VAT.Value)
	})
}

func TestComputeRounding(t *testing.T) {
	// 150 × 0.0227 is 3.405 which must round up even though the float
	// product is slightly below it
	in := scenario()
	bill := Compute(context.Background(), in)
	require.True(t, bill.ExciseTax.Available)
	assert.Equal(t, 3.41, bill.ExciseTax.Value)

	// 12.005 rounds half away from zero
	in.Config.FixQuotaAggrMeasure = 0.005
	assert.Equal(t, 12.01, Compute(context.Background(), in).FixedEnergyQuote.Value)

	t.Run("variable energy term", func(t *testing.T) {
		in := scenario()
		in.Reading.Current = ptr(150.37)
		bill := Compute(context.Background(), in)
		// a single period publishes the product as is
		assert.InDelta(t, 34.5851, bill.VariableEnergyQuote.Value, 1e-9)

		in.Config.BillingMode = types.BillingModeBimonthly
		in.Cycle = types.BillingCycleState{Mode: types.BillingModeBimonthly, CurrentMonth: time.February}
		in.Reading.LastPeriod = ptr(100.03)
		// 34.5851 and 23.0069 are rounded before they are added
		assert.Equal(t, 57.60, Compute(context.Background(), in).VariableEnergyQuote.Value)
	})
}

func TestIncludePrevious(t *testing.T) {
	tests := []struct {
		mode  types.BillingMode
		shift bool
		month time.Month
		want  bool
	}{
		{types.BillingModeBimonthly, false, time.February, true},
		{types.BillingModeBimonthly, false, time.January, false},
		{types.BillingModeBimonthly, true, time.January, true},
		{types.BillingModeBimonthly, true, time.February, false},
		{types.BillingModeMonthly, false, time.February, false},
		{types.BillingModeMonthly, true, time.January, false},
	}
	for _, tt := range tests {
		in := scenario()
		in.Cycle = types.BillingCycleState{Mode: tt.mode, ShiftParity: tt.shift, CurrentMonth: tt.month}
		assert.Equal(t, tt.want, Compute(context.Background(), in).IncludePrevious, "%s shift=%v %s", tt.mode, tt.shift, tt.month)
	}
}
