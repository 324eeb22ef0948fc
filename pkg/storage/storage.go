package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bolletta/bolletta/pkg/types"
	"github.com/levenlabs/go-lflag"
)

var (
	// ErrNotFound is returned when no entry exists for a key.
	ErrNotFound = errors.New("not found")
)

// Database persists parsed tariff periods and the last published snapshot so
// a restart does not need to re-download and re-parse everything.
type Database interface {
	// GetTariff returns the parameter set cached under key.
	GetTariff(ctx context.Context, key string) (types.TariffParameterSet, error)
	// PutTariff stores the parameter set parsed for key.
	PutTariff(ctx context.Context, key string, params types.TariffParameterSet, fetchedAt time.Time) error

	// GetSnapshot returns the last published snapshot.
	GetSnapshot(ctx context.Context) (types.TariffSnapshot, error)
	// PutSnapshot replaces the published snapshot.
	PutSnapshot(ctx context.Context, snapshot types.TariffSnapshot) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "memory", "Storage provider to use (available: memory, sqlite)")

	var p struct{ Database }

	sq := configuredSQLite()

	lflag.Do(func() {
		switch *provider {
		case "memory":
			p.Database = NewMemory()
		case "sqlite":
			if err := sq.Validate(); err != nil {
				panic(fmt.Sprintf("sqlite validation failed: %v", err))
			}
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
			p.Database = sq
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
