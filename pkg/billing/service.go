package billing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bolletta/bolletta/pkg/common"
	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/metrics"
	"github.com/bolletta/bolletta/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Toggles are the billing switches that can be flipped at runtime. Nil
// leaves a switch unchanged.
type Toggles struct {
	Monthly     *bool `json:"monthly"`
	ShiftParity *bool `json:"shiftParity"`
}

// Service owns the inputs of the bill and recomputes it whenever one of them
// changes. Recomputes are serialized; each one works on a copy of the inputs
// and publishes every line item in order.
type Service struct {
	now          func() time.Time
	publish      func(types.BillLineItems)
	pollInterval time.Duration

	mu      sync.Mutex
	cfg     types.BillingConfig
	tariffs types.TariffSnapshot
	reading types.ConsumptionReading
	price   types.LivePrice
	last    *types.BillLineItems
}

// Configured sets up the Service from the billing configuration file flag.
func Configured() *Service {
	path := lflag.String("billing-config", "", "Path of the YAML billing configuration (defaults are used when empty)")
	poll := lflag.Duration("recompute-interval", time.Minute, "How often the bill is recomputed without new inputs")

	s := NewService(DefaultConfig())

	lflag.Do(func() {
		if *poll <= 0 {
			panic(fmt.Sprintf("recompute-interval must be positive: %s", *poll))
		}
		s.pollInterval = *poll
		if *path == "" {
			return
		}
		cfg, err := LoadConfig(*path)
		if err != nil {
			panic(fmt.Sprintf("failed to load billing config: %v", err))
		}
		s.cfg = cfg
	})

	return s
}

// NewService returns a Service for cfg publishing to the bill metrics.
func NewService(cfg types.BillingConfig) *Service {
	return &Service{
		now:          time.Now,
		publish:      metrics.PublishBill,
		pollInterval: time.Minute,
		cfg:          cfg,
		tariffs: types.TariffSnapshot{
			Current:  types.TariffParameterSet{},
			Previous: types.TariffParameterSet{},
		},
	}
}

// Profile returns the consumer profile tariffs are fetched for.
func (s *Service) Profile() types.ConsumerProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Profile
}

// Config returns the current billing configuration including toggles.
func (s *Service) Config() types.BillingConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Bill returns the last computed bill, if any.
func (s *Service) Bill() (types.BillLineItems, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return types.BillLineItems{}, false
	}
	return *s.last, true
}

// TariffsUpdated replaces the tariffs wholesale and recomputes.
func (s *Service) TariffsUpdated(ctx context.Context, snapshot types.TariffSnapshot) {
	snapshot.Current = snapshot.Current.Clone()
	snapshot.Previous = snapshot.Previous.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tariffs = snapshot
	s.recompute(ctx, "tariffs")
}

// SetReading records a new meter reading and recomputes.
func (s *Service) SetReading(ctx context.Context, reading types.ConsumptionReading) types.BillLineItems {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reading.UpdatedAt.IsZero() {
		reading.UpdatedAt = s.now()
	}
	s.reading = reading
	return s.recompute(ctx, "reading")
}

// SetPrice records the live price and recomputes.
func (s *Service) SetPrice(ctx context.Context, price types.LivePrice) types.BillLineItems {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
	return s.recompute(ctx, "price")
}

// SetToggles flips the billing switches and recomputes.
func (s *Service) SetToggles(ctx context.Context, t Toggles) types.BillLineItems {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Monthly != nil {
		if *t.Monthly {
			s.cfg.BillingMode = types.BillingModeMonthly
		} else {
			s.cfg.BillingMode = types.BillingModeBimonthly
		}
	}
	if t.ShiftParity != nil {
		s.cfg.ShiftParity = *t.ShiftParity
	}
	return s.recompute(ctx, "toggles")
}

// Recompute recomputes with the current inputs.
func (s *Service) Recompute(ctx context.Context) types.BillLineItems {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recompute(ctx, "poll")
}

// Run recomputes every poll interval until ctx is done so rules that depend
// on the month follow the calendar.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Recompute(ctx)
		}
	}
}

// recompute must be called with mu held.
func (s *Service) recompute(ctx context.Context, trigger string) types.BillLineItems {
	now := s.now().In(common.Rome)
	bill := Compute(ctx, Input{
		Tariffs: s.tariffs,
		Config:  s.cfg,
		Cycle: types.BillingCycleState{
			Mode:         s.cfg.BillingMode,
			ShiftParity:  s.cfg.ShiftParity,
			CurrentMonth: now.Month(),
		},
		Reading: s.reading,
		Price:   s.price,
		Now:     now,
	})
	s.last = &bill
	s.publish(bill)

	log.Ctx(ctx).DebugContext(
		ctx,
		"bill recomputed",
		slog.String("trigger", trigger),
		slog.Bool("includePrevious", bill.IncludePrevious),
		slog.Bool("totalAvailable", bill.Total.Available),
		slog.Float64("total", bill.Total.Value),
	)
	return bill
}
