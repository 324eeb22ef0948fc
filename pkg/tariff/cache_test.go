package tariff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bolletta/bolletta/pkg/storage"
	"github.com/bolletta/bolletta/pkg/storage/storagemock"
	"github.com/bolletta/bolletta/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestCacheKey(t *testing.T) {
	jan := types.MonthPeriod(2024, time.January)
	day := types.DatePeriod(time.Date(2024, 1, 31, 0, 0, 0, 0, romeLocation))
	high := types.ConsumerProfile{HouseType: types.HouseTypeResidential, ContractedPowerKW: 4.5}
	business := types.ConsumerProfile{HouseType: types.HouseTypeNotResidential, ContractedPowerKW: 10}

	assert.Equal(t, "arera:residential:2024_01", CacheKey(SourceArera, residential, jan))
	assert.Equal(t, "arera:residential:2024_01", CacheKey(SourceArera, high, jan))
	assert.Equal(t, "portale:residential_low:20240131", CacheKey(SourcePortale, residential, day))
	assert.Equal(t, "portale:residential_high:20240131", CacheKey(SourcePortale, high, day))
	assert.Equal(t, "portale:not_residential:20240131", CacheKey(SourcePortale, business, day))
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	jan := types.MonthPeriod(2024, time.January)

	t.Run("round trip", func(t *testing.T) {
		c := NewCache(storage.NewMemory())
		_, ok := c.Get(ctx, SourceArera, residential, jan)
		assert.False(t, ok)

		c.Put(ctx, SourceArera, residential, jan, types.TariffParameterSet{types.ParamPowerQuota: 1.9})
		got, ok := c.Get(ctx, SourceArera, residential, jan)
		assert.True(t, ok)
		assert.Equal(t, 1.9, got[types.ParamPowerQuota])

		_, ok = c.Get(ctx, SourcePortale, residential, jan)
		assert.False(t, ok)
	})

	t.Run("storage errors are misses", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("GetTariff", mock.Anything, "arera:residential:2024_01").Return(nil, errors.New("disk I/O error"))
		db.On("PutTariff", mock.Anything, "arera:residential:2024_01", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		c := NewCache(db)
		_, ok := c.Get(ctx, SourceArera, residential, jan)
		assert.False(t, ok)
		c.Put(ctx, SourceArera, residential, jan, types.TariffParameterSet{})
		db.AssertExpectations(t)
	})
}
