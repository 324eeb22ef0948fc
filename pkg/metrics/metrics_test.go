package metrics

import (
	"testing"
	"time"

	"github.com/bolletta/bolletta/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPublishBill(t *testing.T) {
	b := types.BillLineItems{
		FixedEnergyQuote: types.LineItem{ID: types.ItemFixedEnergyQuote, Value: 12.01, Available: true},
		VAT:              types.LineItem{ID: types.ItemVAT, Available: false, Reason: "reading unavailable"},
	}
	PublishBill(b)

	assert.Equal(t, 12.01, testutil.ToFloat64(billItems.WithLabelValues("fixed_energy_quote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(billItemAvailable.WithLabelValues("fixed_energy_quote")))
	assert.Equal(t, 0.0, testutil.ToFloat64(billItemAvailable.WithLabelValues("vat")))

	// an item that becomes unavailable loses its value series
	b.FixedEnergyQuote.Available = false
	PublishBill(b)
	assert.Equal(t, 0.0, testutil.ToFloat64(billItemAvailable.WithLabelValues("fixed_energy_quote")))
	assert.False(t, billItems.DeleteLabelValues("fixed_energy_quote"))
}

func TestPublishTariffs(t *testing.T) {
	fetched := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	PublishTariffs(types.TariffSnapshot{
		Current:   types.TariffParameterSet{types.ParamSystemChargeASOS: 0.0298},
		Previous:  types.TariffParameterSet{},
		FetchedAt: fetched,
	})
	assert.Equal(t, 0.0298, testutil.ToFloat64(tariffParams.WithLabelValues("mp", "asos")))
	assert.Equal(t, float64(fetched.Unix()), testutil.ToFloat64(lastRefresh))
	assert.Equal(t, 0.0, testutil.ToFloat64(tariffStale))

	PublishTariffs(types.TariffSnapshot{Current: types.TariffParameterSet{}, Stale: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(tariffStale))
	assert.False(t, tariffParams.DeleteLabelValues("mp", "asos"))
	assert.Equal(t, float64(fetched.Unix()), testutil.ToFloat64(lastRefresh))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(fetchAttempts.WithLabelValues("portale", ResultMiss))
	ObserveFetch("portale", ResultMiss)
	assert.Equal(t, before+1, testutil.ToFloat64(fetchAttempts.WithLabelValues("portale", ResultMiss)))

	before = testutil.ToFloat64(refreshResults.WithLabelValues(ResultError))
	ObserveRefresh(ResultError)
	assert.Equal(t, before+1, testutil.ToFloat64(refreshResults.WithLabelValues(ResultError)))
}
