package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is one unit of scheduled work, such as a full crawl run.
type Job func(ctx context.Context) error

// Scheduler runs a job immediately and then on every tick of its interval.
// A failed run is logged and the next tick runs again.
type Scheduler struct {
	interval time.Duration
	job      Job
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler. The job's context is cancelled by
// Stop or when parent is done.
func NewScheduler(parent context.Context, interval time.Duration, job Job) *Scheduler {
	ctx, cancel := context.WithCancel(parent)

	return &Scheduler{
		interval: interval,
		job:      job,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the scheduler in a goroutine
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop stops the scheduler and waits for a running job to return
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until the scheduler has stopped
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runJob()
	for {
		select {
		case <-s.ctx.Done():
			log.Println("Scheduler stopped")
			return
		case <-ticker.C:
			s.runJob()
		}
	}
}

func (s *Scheduler) runJob() {
	if s.ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := s.job(s.ctx); err != nil {
		log.Printf("Error: scheduled run failed after %s: %v\n", time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("Scheduled run finished in %s, next in %s\n", time.Since(start).Round(time.Millisecond), s.interval)
}
