// Package controller keeps the published tariffs up to date: it resolves the
// two billing periods from both sources, merges them and swaps the result in
// atomically, retrying on a schedule when a refresh fails.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bolletta/bolletta/pkg/common"
	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/metrics"
	"github.com/bolletta/bolletta/pkg/storage"
	"github.com/bolletta/bolletta/pkg/tariff"
	"github.com/bolletta/bolletta/pkg/types"
	"github.com/levenlabs/go-lflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrNoTariffs is returned when neither source had parameters for mp.
var ErrNoTariffs = errors.New("no tariff parameters found")

// AreraSource provides the parameters from the ARERA workbook.
type AreraSource interface {
	FetchCurrentAndPrevious(ctx context.Context, profile types.ConsumerProfile) (tariff.AreraResult, error)
}

// CSVSource provides the parameters from the Portale Offerte files.
type CSVSource interface {
	FetchCurrentAndPrevious(ctx context.Context, profile types.ConsumerProfile) (tariff.CSVResult, error)
}

// Subscriber is told about every published snapshot.
type Subscriber interface {
	Profile() types.ConsumerProfile
	TariffsUpdated(ctx context.Context, snapshot types.TariffSnapshot)
}

// Refresher owns the published TariffSnapshot.
type Refresher struct {
	arera      AreraSource
	portale    CSVSource
	db         storage.Database
	sub        Subscriber
	supervisor *Supervisor

	interval     time.Duration
	startupDelay time.Duration
	now          func() time.Time
	after        func(time.Duration) <-chan time.Time

	snapshot atomic.Pointer[types.TariffSnapshot]
	group    singleflight.Group
}

// Configured sets up the Refresher from flags. sources must come from
// tariff.Configured so its clients are ready when this is bound.
func Configured(sources *tariff.Sources, db storage.Database, sub Subscriber) *Refresher {
	interval := lflag.Duration("refresh-interval", 24*time.Hour, "How often the tariffs are refreshed")
	startupDelay := lflag.Duration("refresh-startup-delay", 10*time.Second, "Delay before the first refresh after startup")
	schedule := lflag.String("retry-schedule", "1m,10m,60m,120m,180m", "Comma separated delays between retries of a failed refresh")

	r := &Refresher{
		db:    db,
		sub:   sub,
		now:   time.Now,
		after: time.After,
	}

	lflag.Do(func() {
		if sources.Arera == nil || sources.Portale == nil {
			panic("tariff sources are not configured")
		}
		if *interval <= 0 {
			panic(fmt.Sprintf("refresh-interval must be positive: %s", *interval))
		}
		delays, err := ParseSchedule(*schedule)
		if err != nil {
			panic(fmt.Sprintf("invalid retry-schedule: %v", err))
		}
		r.arera = sources.Arera
		r.portale = sources.Portale
		r.interval = *interval
		r.startupDelay = *startupDelay
		r.supervisor = NewSupervisor(delays)
	})

	return r
}

// NewRefresher returns a Refresher using the default retry schedule.
func NewRefresher(arera AreraSource, portale CSVSource, db storage.Database, sub Subscriber) *Refresher {
	return &Refresher{
		arera:        arera,
		portale:      portale,
		db:           db,
		sub:          sub,
		supervisor:   NewSupervisor(DefaultRetrySchedule),
		interval:     24 * time.Hour,
		startupDelay: 10 * time.Second,
		now:          time.Now,
		after:        time.After,
	}
}

// Snapshot returns the published snapshot. Before the first publication both
// sets are empty.
func (r *Refresher) Snapshot() types.TariffSnapshot {
	if s := r.snapshot.Load(); s != nil {
		return *s
	}
	return types.TariffSnapshot{
		Current:  types.TariffParameterSet{},
		Previous: types.TariffParameterSet{},
	}
}

// Restore publishes the snapshot persisted by an earlier run, flagged stale
// until a refresh succeeds.
func (r *Refresher) Restore(ctx context.Context) error {
	snap, err := r.db.GetSnapshot(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	snap.Stale = true
	if snap.Current == nil {
		snap.Current = types.TariffParameterSet{}
	}
	if snap.Previous == nil {
		snap.Previous = types.TariffParameterSet{}
	}
	log.Ctx(ctx).InfoContext(ctx, "restored tariff snapshot", slog.String("period", snap.CurrentPeriod), slog.Time("fetchedAt", snap.FetchedAt))
	r.publish(ctx, snap, false)
	return nil
}

// Refresh fetches both sources and publishes the merged snapshot.
// Concurrent calls share one refresh, which is not cancelled when a caller
// goes away. On failure the published snapshot is kept and flagged stale.
func (r *Refresher) Refresh(ctx context.Context) (types.TariffSnapshot, error) {
	v, err, _ := r.group.Do("refresh", func() (any, error) {
		return r.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return r.Snapshot(), err
	}
	return v.(types.TariffSnapshot), nil
}

// refresh only fails when neither source has parameters for mp. A source
// that errors contributes empty sets and never cancels the other one.
func (r *Refresher) refresh(ctx context.Context) (types.TariffSnapshot, error) {
	profile := r.sub.Profile()
	log.Ctx(ctx).DebugContext(ctx, "refreshing tariffs", slog.String("houseType", string(profile.HouseType)), slog.Float64("contractedPowerKW", profile.ContractedPowerKW))

	var (
		areraRes tariff.AreraResult
		csvRes   tariff.CSVResult
		g        errgroup.Group
	)
	g.Go(func() error {
		res, err := r.arera.FetchCurrentAndPrevious(ctx, profile)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "arera source failed", slog.Any("error", err))
			return nil
		}
		areraRes = res
		return nil
	})
	g.Go(func() error {
		res, err := r.portale.FetchCurrentAndPrevious(ctx, profile)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "portale source failed", slog.Any("error", err))
			return nil
		}
		csvRes = res
		return nil
	})
	_ = g.Wait()

	mp, mpp := areraRes.CurrentPeriod, areraRes.PreviousPeriod
	if mp == (types.PeriodKey{}) {
		mp, mpp = tariff.BillingPeriods(r.now().In(common.Rome))
	}

	snap := types.TariffSnapshot{
		Current:        areraRes.Current.WithFallback(csvRes.Current),
		Previous:       areraRes.Previous.WithFallback(csvRes.Previous),
		CurrentPeriod:  mp.String(),
		PreviousPeriod: mpp.String(),
		FetchedAt:      r.now(),
	}
	if len(snap.Current) == 0 {
		err := fmt.Errorf("%w for %s", ErrNoTariffs, snap.CurrentPeriod)
		r.fail(ctx, err)
		return types.TariffSnapshot{}, err
	}

	metrics.ObserveRefresh(metrics.ResultSuccess)
	log.Ctx(ctx).InfoContext(
		ctx,
		"published tariffs",
		slog.String("mp", snap.CurrentPeriod),
		slog.String("mpp", snap.PreviousPeriod),
		slog.Int("mpKeys", len(snap.Current)),
		slog.Int("mppKeys", len(snap.Previous)),
	)
	r.publish(ctx, snap, true)
	return snap, nil
}

// fail keeps the last snapshot, flagging it stale.
func (r *Refresher) fail(ctx context.Context, err error) {
	metrics.ObserveRefresh(metrics.ResultError)
	log.Ctx(ctx).ErrorContext(ctx, "tariff refresh failed", slog.Any("error", err))

	old := r.snapshot.Load()
	if old == nil || old.Stale {
		return
	}
	stale := *old
	stale.Stale = true
	r.publish(ctx, stale, false)
}

func (r *Refresher) publish(ctx context.Context, snap types.TariffSnapshot, persist bool) {
	r.snapshot.Store(&snap)
	if persist {
		if err := r.db.PutSnapshot(ctx, snap); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to persist snapshot", slog.Any("error", err))
		}
	}
	metrics.PublishTariffs(snap)
	r.sub.TariffsUpdated(ctx, snap)
}

// Run restores the persisted snapshot, waits for the startup delay and then
// refreshes every interval until ctx is done. A failed refresh is retried
// on the supervisor's schedule.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Restore(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to restore tariffs", slog.Any("error", err))
	}

	select {
	case <-ctx.Done():
		return
	case <-r.after(r.startupDelay):
	}

	for {
		err := r.supervisor.Run(ctx, "tariff refresh", func(ctx context.Context) error {
			_, err := r.Refresh(ctx)
			return err
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "waiting for next scheduled refresh", slog.Duration("interval", r.interval))
		}

		select {
		case <-ctx.Done():
			return
		case <-r.after(r.interval):
		}
	}
}
