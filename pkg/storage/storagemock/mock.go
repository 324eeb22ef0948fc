package storagemock

import (
	"context"
	"time"

	"github.com/bolletta/bolletta/pkg/storage"
	"github.com/bolletta/bolletta/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetTariff(ctx context.Context, key string) (types.TariffParameterSet, error) {
	args := m.Called(ctx, key)
	if v := args.Get(0); v != nil {
		return v.(types.TariffParameterSet), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) PutTariff(ctx context.Context, key string, params types.TariffParameterSet, fetchedAt time.Time) error {
	args := m.Called(ctx, key, params, fetchedAt)
	return args.Error(0)
}

func (m *MockDatabase) GetSnapshot(ctx context.Context) (types.TariffSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.TariffSnapshot), args.Error(1)
}

func (m *MockDatabase) PutSnapshot(ctx context.Context, snapshot types.TariffSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
