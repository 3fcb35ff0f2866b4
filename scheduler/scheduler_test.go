package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{})

	s := NewScheduler(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) == 3 {
			close(done)
		}
		return nil
	})
	s.Start()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("job ran %d times, want at least 3", runs.Load())
	}
	s.Stop()

	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != after {
		t.Errorf("job ran after Stop: %d -> %d", after, runs.Load())
	}
}

func TestSchedulerFirstRunIsImmediate(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := NewScheduler(context.Background(), time.Hour, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	})
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("first run did not start immediately")
	}
}

func TestSchedulerContinuesAfterFailure(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{})

	s := NewScheduler(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) == 2 {
			close(done)
		}
		return errors.New("broker down")
	})
	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler stopped after a failed run")
	}
}

func TestSchedulerStopCancelsJob(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})

	s := NewScheduler(context.Background(), time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	s.Start()
	<-started
	s.Stop()

	select {
	case <-cancelled:
	default:
		t.Fatal("Stop returned before the job saw cancellation")
	}
}

func TestSchedulerParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(ctx, time.Hour, func(ctx context.Context) error { return nil })
	s.Start()
	cancel()

	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop when the parent context was cancelled")
	}
}
