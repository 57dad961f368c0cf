package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically deletes expired sessions. It is a storage optimization only:
// expired sessions are rejected at consume time whether or not they were swept.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewSweeper builds a Sweeper. A nil logger or metrics falls back to defaults.
func NewSweeper(store Store, interval time.Duration, log *slog.Logger, metrics *Metrics) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SweepOnce deletes everything expired at the current time.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Error("session.sweep.fail", "err", err)
		return 0, storageErr("session.Sweeper.SweepOnce", err)
	}
	s.metrics.swept.Add(float64(n))
	s.log.Info("session.sweep.done", "deleted", n)
	return n, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}
