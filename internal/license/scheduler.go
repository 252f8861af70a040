package license

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// UsageResetter is the sweep operation the scheduler drives.
type UsageResetter interface {
	ResetDueUsage(ctx context.Context) (int64, error)
}

// Scheduler periodically runs the monthly usage-reset sweep. The sweep only
// touches rows that are due, so running it far more often than monthly is
// harmless.
type Scheduler struct {
	resetter UsageResetter
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

func NewScheduler(resetter UsageResetter, interval time.Duration) *Scheduler {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Scheduler{
		resetter: resetter,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true
	go s.loop()
}

func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) loop() {
	initial := time.NewTimer(5 * time.Second)
	ticker := time.NewTicker(s.interval)
	defer func() { ticker.Stop(); close(s.doneCh) }()
	for {
		select {
		case <-s.stopCh:
			return
		case <-initial.C:
			s.runOnce()
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.resetter.ResetDueUsage(ctx)
	if err != nil {
		log.Error().Err(err).Msg("usage reset sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int64("keys", n).Msg("monthly usage reset")
	}
}
