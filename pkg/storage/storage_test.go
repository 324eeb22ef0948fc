package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bolletta/bolletta/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLiteProvider {
	t.Helper()
	s := NewSQLite(filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, s.Validate())
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDatabases(t *testing.T) {
	providers := map[string]func(t *testing.T) Database{
		"memory": func(t *testing.T) Database { return NewMemory() },
		"sqlite": func(t *testing.T) Database { return newSQLite(t) },
	}

	for name, newDB := range providers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("Tariff", func(t *testing.T) {
				db := newDB(t)

				_, err := db.GetTariff(ctx, "arera:residential:2024_01")
				assert.ErrorIs(t, err, ErrNotFound)

				params := types.TariffParameterSet{
					types.ParamSystemChargeASOS: 0.0298,
					types.ParamPowerQuota:       1.9,
				}
				require.NoError(t, db.PutTariff(ctx, "arera:residential:2024_01", params, time.Now()))

				got, err := db.GetTariff(ctx, "arera:residential:2024_01")
				require.NoError(t, err)
				assert.Equal(t, params, got)

				// overwrite
				params2 := types.TariffParameterSet{types.ParamExciseTax: 0.0227}
				require.NoError(t, db.PutTariff(ctx, "arera:residential:2024_01", params2, time.Now()))
				got, err = db.GetTariff(ctx, "arera:residential:2024_01")
				require.NoError(t, err)
				assert.Equal(t, params2, got)
			})

			t.Run("Snapshot", func(t *testing.T) {
				db := newDB(t)

				_, err := db.GetSnapshot(ctx)
				assert.ErrorIs(t, err, ErrNotFound)

				snap := types.TariffSnapshot{
					Current:        types.TariffParameterSet{types.ParamEnergyQuota: 0.0122},
					Previous:       types.TariffParameterSet{},
					CurrentPeriod:  "2024_02",
					PreviousPeriod: "2024_01",
					FetchedAt:      time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
				}
				require.NoError(t, db.PutSnapshot(ctx, snap))

				got, err := db.GetSnapshot(ctx)
				require.NoError(t, err)
				assert.Equal(t, snap.Current, got.Current)
				assert.Empty(t, got.Previous)
				assert.Equal(t, snap.CurrentPeriod, got.CurrentPeriod)
				assert.True(t, snap.FetchedAt.Equal(got.FetchedAt))
			})
		})
	}
}

func TestMemoryIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	params := types.TariffParameterSet{types.ParamVATRate: 10}
	require.NoError(t, m.PutTariff(ctx, "k", params, time.Now()))

	params[types.ParamVATRate] = 22
	got, err := m.GetTariff(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got[types.ParamVATRate])
}

func TestSQLiteValidate(t *testing.T) {
	assert.Error(t, NewSQLite("").Validate())
}
