package queue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Sweeper periodically resets expired job leases so crashed workers do not
// strand running rows until a Dequeue happens to reclaim them.
type Sweeper struct {
	manager *Manager
	logger  arbor.ILogger
	cron    *cron.Cron
}

// NewSweeper creates a lease sweeper on the given cron spec.
func NewSweeper(manager *Manager, logger arbor.ILogger, spec string) (*Sweeper, error) {
	s := &Sweeper{
		manager: manager,
		logger:  logger,
		cron:    cron.New(),
	}

	if spec == "" {
		spec = "* * * * *"
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Debug().Msg("Lease sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Debug().Msg("Lease sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.manager.SweepExpiredLeases(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Lease sweep failed")
	}
}
