// Package billing turns the published tariffs, the user's billing
// configuration, the meter reading and the energy price into bill line
// items.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/types"
	"github.com/shopspring/decimal"
)

// ErrUnavailable wraps the reason a line item could not be computed.
var ErrUnavailable = errors.New("unavailable")

// Input is everything one recompute pass reads. It is a value so a pass
// never observes a half-updated state.
type Input struct {
	Tariffs types.TariffSnapshot
	Config  types.BillingConfig
	Cycle   types.BillingCycleState
	Reading types.ConsumptionReading
	Price   types.LivePrice
	Now     time.Time
}

// period holds what one billing period contributes.
type period struct {
	name        string
	params      types.TariffParameterSet
	consumption *float64
	price       *float64
}

func (p period) param(k types.ParamKey) (decimal.Decimal, error) {
	v, ok := p.params.Get(k)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: missing %s parameter %s", ErrUnavailable, p.name, k)
	}
	return d(v), nil
}

func (p period) kwh() (decimal.Decimal, error) {
	if p.consumption == nil {
		return decimal.Zero, fmt.Errorf("%w: %s consumption reading", ErrUnavailable, p.name)
	}
	return d(*p.consumption), nil
}

func (p period) energyPrice() (decimal.Decimal, error) {
	if p.price == nil {
		return decimal.Zero, fmt.Errorf("%w: %s energy price", ErrUnavailable, p.name)
	}
	return d(*p.price), nil
}

// unitPrice is round(price) + round(loss% × price) + round(otherFee).
func (p period) unitPrice(otherFee decimal.Decimal) (decimal.Decimal, error) {
	price, err := p.energyPrice()
	if err != nil {
		return decimal.Zero, err
	}
	loss, err := p.param(types.ParamNetworkLossPercentage)
	if err != nil {
		return decimal.Zero, err
	}
	return r2(price).Add(r2(percentOf(loss, price))).Add(r2(otherFee)), nil
}

// product is round(consumption × parameter k).
func (p period) product(k types.ParamKey) (decimal.Decimal, error) {
	kwh, err := p.kwh()
	if err != nil {
		return decimal.Zero, err
	}
	v, err := p.param(k)
	if err != nil {
		return decimal.Zero, err
	}
	return r2(kwh.Mul(v)), nil
}

type computation struct {
	periods []period
}

func (c computation) includesPrevious() bool {
	return len(c.periods) > 1
}

// sum adds f over the billed periods, current first.
func (c computation) sum(f func(p period) (decimal.Decimal, error)) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range c.periods {
		v, err := f(p)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

func lineItem(id types.LineItemID, v decimal.Decimal, err error) types.LineItem {
	item := types.LineItem{ID: id, Name: id.String()}
	if err != nil {
		item.Reason = err.Error()
		return item
	}
	item.Value = v.InexactFloat64()
	item.Available = true
	return item
}

// resolvePeriods builds the current period and, when billed together, the
// previous one. Keys missing from the fetched sets come from the configured
// defaults; keys missing from the previous period come from the current one.
func resolvePeriods(ctx context.Context, in Input) []period {
	current := period{
		name:        "current",
		params:      in.Tariffs.Current.WithFallback(in.Config.Defaults()),
		consumption: in.Reading.Current,
	}
	previous := period{
		name:        "previous",
		params:      in.Tariffs.Previous.WithFallback(current.params),
		consumption: in.Reading.LastPeriod,
	}

	switch in.Config.PricingMode {
	case types.PricingModeFixed:
		current.price = in.Config.FixedPrice
		previous.price = in.Config.FixedPrice
	default:
		if in.Price.Current != nil {
			current.price = &in.Price.Current.EuroPerKWH
		}
		switch {
		case in.Price.Previous != nil:
			previous.price = &in.Price.Previous.EuroPerKWH
		default:
			previous.price = current.price
		}
	}

	if !in.Cycle.IncludePrevious() {
		return []period{current}
	}

	for _, k := range types.ParamKeys {
		if _, ok := in.Tariffs.Previous.Get(k); ok {
			continue
		}
		if _, ok := current.params.Get(k); ok {
			log.Ctx(ctx).DebugContext(ctx, "previous period parameter missing, using current", slog.String("key", string(k)))
		}
	}
	return []period{current, previous}
}

// Compute runs one recompute pass. Items 1 to 7 are computed first; VAT and
// total are derived from their rounded values, never from raw sums. An item
// whose inputs are missing is reported unavailable rather than as zero, and
// everything that depends on it is unavailable too.
func Compute(ctx context.Context, in Input) types.BillLineItems {
	periods := resolvePeriods(ctx, in)
	c := computation{periods: periods}

	monthlyFee := d(in.Config.MonthlyFee)
	aggregation := d(in.Config.FixQuotaAggrMeasure)
	otherFee := d(in.Config.OtherFee)
	power := d(in.Config.Profile.ContractedPowerKW)

	out := types.BillLineItems{
		IncludePrevious: len(periods) > 1,
		ComputedAt:      in.Now,
	}

	// 1: the pair is added once per billed period and rounded once
	v, err := c.sum(func(period) (decimal.Decimal, error) {
		return aggregation.Add(monthlyFee), nil
	})
	out.FixedEnergyQuote = lineItem(types.ItemFixedEnergyQuote, r2(v), err)

	// 2: the per-period terms are rounded only when two periods are summed
	v, err = c.sum(func(p period) (decimal.Decimal, error) {
		kwh, err := p.kwh()
		if err != nil {
			return decimal.Zero, err
		}
		unit, err := p.unitPrice(otherFee)
		if err != nil {
			return decimal.Zero, err
		}
		if !c.includesPrevious() {
			return kwh.Mul(unit), nil
		}
		return r2(kwh.Mul(unit)), nil
	})
	out.VariableEnergyQuote = lineItem(types.ItemVariableEnergyQuote, v, err)

	// 3
	v, err = c.sum(func(p period) (decimal.Decimal, error) {
		q, err := p.param(types.ParamFixedTransportQuota)
		return r2(q), err
	})
	out.FixedTransportQuote = lineItem(types.ItemFixedTransportQuote, v, err)

	// 4
	v, err = c.sum(func(p period) (decimal.Decimal, error) {
		q, err := p.param(types.ParamPowerQuota)
		return r2(q.Mul(power)), err
	})
	out.PowerQuote = lineItem(types.ItemPowerQuote, v, err)

	// 5
	v, err = c.sum(func(p period) (decimal.Decimal, error) {
		return p.product(types.ParamEnergyQuota)
	})
	out.VariableTransportEnergyQuote = lineItem(types.ItemVariableTransportEnergyQuote, v, err)

	// 6
	v, err = c.sum(func(p period) (decimal.Decimal, error) {
		asos, err := p.product(types.ParamSystemChargeASOS)
		if err != nil {
			return decimal.Zero, err
		}
		arim, err := p.product(types.ParamSystemChargeARIM)
		return asos.Add(arim), err
	})
	out.SystemChargeQuote = lineItem(types.ItemSystemChargeQuote, v, err)

	// 7
	v, err = c.sum(func(p period) (decimal.Decimal, error) {
		return p.product(types.ParamExciseTax)
	})
	out.ExciseTax = lineItem(types.ItemExciseTax, v, err)

	discount := r2(d(in.Config.Discount)).Mul(decimalTwo)

	// 8 and 9 read the published values of 1 to 7
	taxable, err := publishedSum(out.Taxable())
	vat := decimal.Zero
	if err == nil {
		var rate decimal.Decimal
		rate, err = periods[0].param(types.ParamVATRate)
		if err == nil {
			vat = r2(r2(percentOf(rate, taxable)).Sub(discount))
		}
	}
	out.VAT = lineItem(types.ItemVAT, vat, err)

	total, err := publishedSum(append(out.Taxable(), out.VAT))
	if err == nil {
		total = total.Sub(discount)
		if month := in.Cycle.CurrentMonth; month != time.November && month != time.December {
			total = total.Add(r2(d(in.Config.TVTax)).Mul(decimalTwo))
		}
		total = r2(total)
	}
	out.Total = lineItem(types.ItemTotal, total, err)

	// 10 is an instantaneous rate for the current period only
	v, err = kwhPrice(periods[0], otherFee)
	out.KWhPrice = lineItem(types.ItemKWhPrice, v, err)

	return out
}

// publishedSum adds the already rounded values of items, each rounded again.
func publishedSum(items []types.LineItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range items {
		if !item.Available {
			return decimal.Zero, fmt.Errorf("%w: depends on %s", ErrUnavailable, item.Name)
		}
		total = total.Add(r2(d(item.Value)))
	}
	return total, nil
}

func kwhPrice(p period, otherFee decimal.Decimal) (decimal.Decimal, error) {
	unit, err := p.unitPrice(otherFee)
	if err != nil {
		return decimal.Zero, err
	}
	for _, k := range []types.ParamKey{
		types.ParamEnergyQuota,
		types.ParamSystemChargeASOS,
		types.ParamSystemChargeARIM,
		types.ParamExciseTax,
	} {
		v, err := p.param(k)
		if err != nil {
			return decimal.Zero, err
		}
		unit = unit.Add(r2(v))
	}
	return unit, nil
}
