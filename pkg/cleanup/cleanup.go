package cleanup

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sweeper drops whatever is past its retention bound at now and reports how many went.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) int
}

// RetentionService runs a Sweeper on a fixed interval.
type RetentionService struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewRetentionService(sweeper Sweeper, interval time.Duration) *RetentionService {
	return &RetentionService{
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start sweeps once immediately, then on every tick until Stop or ctx is done.
func (s *RetentionService) Start(ctx context.Context) {
	log.Printf("Starting alert retention sweeper (interval: %v)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			log.Println("Stopping alert retention sweeper")
			return
		case <-s.stopChan:
			log.Println("Stopping alert retention sweeper")
			return
		}
	}
}

func (s *RetentionService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *RetentionService) sweep(ctx context.Context) {
	if count := s.sweeper.Sweep(ctx, s.now()); count > 0 {
		log.Printf("Dropped %d alerts past retention", count)
	}
}
