package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultResetSchedule resets usage at midnight UTC.
const DefaultResetSchedule = "0 0 * * *"

// Resetter is the operation a ResetScheduler runs.
type Resetter interface {
	ResetDaily(ctx context.Context) (int, error)
}

// ResetScheduler runs a Resetter on a cron schedule evaluated in UTC.
type ResetScheduler struct {
	expr     string
	resetter Resetter

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewResetScheduler(expr string, r Resetter) (*ResetScheduler, error) {
	if expr == "" {
		expr = DefaultResetSchedule
	}
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid reset schedule %q", expr)
	}
	return &ResetScheduler{
		expr:     expr,
		resetter: r,
		now:      time.Now,
		after:    time.After,
	}, nil
}

// Next returns the first reset strictly after from.
func (s *ResetScheduler) Next(from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, from.UTC().Truncate(time.Second), false)
}

// Run blocks, resetting usage at every scheduled tick until ctx is done.
func (s *ResetScheduler) Run(ctx context.Context) error {
	for {
		next, err := s.Next(s.now())
		if err != nil {
			return fmt.Errorf("next reset: %w", err)
		}
		slog.Debug("next usage reset scheduled", "at", next)

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(s.now())):
		}

		n, err := s.resetter.ResetDaily(ctx)
		if err != nil {
			slog.Error("usage reset failed", "error", err)
			continue
		}
		slog.Info("daily usage reset", "guilds", n)
	}
}
