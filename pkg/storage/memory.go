package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bolletta/bolletta/pkg/types"
)

// Memory is a process-local Database. Nothing survives a restart.
type Memory struct {
	mu       sync.RWMutex
	tariffs  map[string]types.TariffParameterSet
	snapshot *types.TariffSnapshot
}

var _ Database = (*Memory)(nil)

// NewMemory returns an empty in-memory Database.
func NewMemory() *Memory {
	return &Memory{
		tariffs: make(map[string]types.TariffParameterSet),
	}
}

func (m *Memory) GetTariff(ctx context.Context, key string) (types.TariffParameterSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.tariffs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) PutTariff(ctx context.Context, key string, params types.TariffParameterSet, fetchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tariffs[key] = params.Clone()
	return nil
}

func (m *Memory) GetSnapshot(ctx context.Context) (types.TariffSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return types.TariffSnapshot{}, ErrNotFound
	}
	s := *m.snapshot
	s.Current = s.Current.Clone()
	s.Previous = s.Previous.Clone()
	return s, nil
}

func (m *Memory) PutSnapshot(ctx context.Context, snapshot types.TariffSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot.Current = snapshot.Current.Clone()
	snapshot.Previous = snapshot.Previous.Clone()
	m.snapshot = &snapshot
	return nil
}

func (m *Memory) Close() error {
	return nil
}
