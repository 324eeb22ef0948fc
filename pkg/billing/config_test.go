package billing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bolletta/bolletta/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("full", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
profile:
  house_type: not_residential
  contracted_power_kw: 4.5
monthly_fee: 12
fix_quota_aggr_measure: 0.007
other_fee: 0.0147
discount: 1
tv_tax: 7.5
vat_percent: 22
excise_rate: 0.0125
billing_mode: bimonthly
shift_parity: true
pricing_mode: fixed
fixed_price: 0.2
`))
		require.NoError(t, err)
		assert.Equal(t, types.HouseTypeNotResidential, cfg.Profile.HouseType)
		assert.Equal(t, 4.5, cfg.Profile.ContractedPowerKW)
		assert.Equal(t, 12.0, cfg.MonthlyFee)
		assert.Equal(t, 7.5, cfg.TVTax)
		assert.Equal(t, 22.0, *cfg.VATPercent)
		// untouched defaults survive
		assert.Equal(t, 10.0, *cfg.NetworkLossPercent)
		assert.Equal(t, 0.0125, *cfg.ExciseRate)
		assert.Equal(t, types.BillingModeBimonthly, cfg.BillingMode)
		assert.True(t, cfg.ShiftParity)
		assert.Equal(t, 0.2, *cfg.FixedPrice)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseConfig([]byte("pricing_mode: fixed\n"))
		assert.ErrorContains(t, err, "fixed_price")

		_, err = ParseConfig([]byte("billing_mode: weekly\n"))
		assert.Error(t, err)

		_, err = ParseConfig([]byte("monthly_fee: [1, 2]\n"))
		assert.Error(t, err)
	})
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monthly_fee: 9.5\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9.5, cfg.MonthlyFee)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
