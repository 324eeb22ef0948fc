package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bolletta/bolletta/pkg/log"
)

// DefaultRetrySchedule is how long to wait after each consecutive failure.
var DefaultRetrySchedule = []time.Duration{
	time.Minute,
	10 * time.Minute,
	60 * time.Minute,
	120 * time.Minute,
	180 * time.Minute,
}

// Supervisor retries a failing operation on a fixed schedule. The first
// success ends the run; once the schedule is used up the last error is
// returned and the caller waits for its next periodic run.
type Supervisor struct {
	schedule []time.Duration
	after    func(time.Duration) <-chan time.Time
}

// NewSupervisor returns a Supervisor waiting schedule[i] after the i-th
// consecutive failure.
func NewSupervisor(schedule []time.Duration) *Supervisor {
	return &Supervisor{
		schedule: schedule,
		after:    time.After,
	}
}

// ParseSchedule parses a comma separated list of durations like
// "1m,10m,60m".
func ParseSchedule(s string) ([]time.Duration, error) {
	var out []time.Duration
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid retry delay %q: %w", part, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("retry delay must be positive: %s", part)
		}
		out = append(out, d)
	}
	return out, nil
}

// Run calls fn until it succeeds, the schedule is exhausted or ctx is done.
func (s *Supervisor) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Ctx(ctx).InfoContext(ctx, "recovered after retries", slog.String("op", name), slog.Int("retries", attempt))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= len(s.schedule) {
			log.Ctx(ctx).ErrorContext(
				ctx,
				"retries exhausted",
				slog.String("op", name),
				slog.Int("attempts", attempt+1),
				slog.Any("error", err),
			)
			return err
		}

		delay := s.schedule[attempt]
		log.Ctx(ctx).WarnContext(
			ctx,
			"operation failed, retrying",
			slog.String("op", name),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(delay):
		}
	}
}
