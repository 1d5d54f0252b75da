package sweeper

import (
	"context"
	"sync"
	"time"

	"masjid/pkg/logger"
)

// Releaser is the ledger operation the sweep drives.
type Releaser interface {
	ReleaseExpired(ctx context.Context) (int, error)
}

// Sweeper periodically releases pending claims whose payment never settled.
// It is the backstop for expiry tasks that were lost or never scheduled.
type Sweeper struct {
	ledger   Releaser
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func New(ledger Releaser, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		interval: interval,
		timeout:  interval,
		log:      log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run sweeps once immediately and then every interval until Stop is called
// or ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Claim sweeper started", "interval", s.interval)
	for {
		s.sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	released, err := s.ledger.ReleaseExpired(ctx)
	if err != nil {
		s.log.Error("Claim sweep failed", "released", released, "error", err)
		return
	}
	if released > 0 {
		s.log.Info("Claim sweep released stale claims", "released", released)
	}
}

// Stop ends Run and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.done
}
