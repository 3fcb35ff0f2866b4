package notify

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"rental-tracker/models"
)

const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = 30 * time.Second
)

// Dispatcher fans new listings out to its channels. Each channel has its own
// queue and worker goroutine, so a slow or failing channel does not hold up
// the caller or the other channels. Messages reach a channel in the order
// Notify was called.
type Dispatcher struct {
	mu      sync.RWMutex
	workers []*worker
	closed  bool
	wg      sync.WaitGroup
	timeout time.Duration
	dropped atomic.Int64
}

type worker struct {
	channel Channel
	queue   chan Message
}

// NewDispatcher starts one worker per channel. With no channels, Notify is a no-op.
func NewDispatcher(queueSize int, channels ...Channel) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	d := &Dispatcher{timeout: DefaultSendTimeout}
	for _, ch := range channels {
		w := &worker{channel: ch, queue: make(chan Message, queueSize)}
		d.workers = append(d.workers, w)
		d.wg.Add(1)
		go d.run(w)
	}
	return d
}

// Channels returns the number of registered channels.
func (d *Dispatcher) Channels() int {
	return len(d.workers)
}

// Dropped returns how many messages were discarded because a queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Notify queues a notification for every channel and returns immediately.
func (d *Dispatcher) Notify(l models.Listing) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed || len(d.workers) == 0 {
		return
	}

	msg := NewMessage(l)
	for _, w := range d.workers {
		select {
		case w.queue <- msg:
		default:
			d.dropped.Add(1)
			log.Printf("Warning: %s queue is full, dropping notification for %s\n", w.channel.Name(), l.Address)
		}
	}
}

// Close stops accepting notifications and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, w := range d.workers {
		close(w.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run(w *worker) {
	defer d.wg.Done()

	for msg := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := w.channel.Send(ctx, msg)
		cancel()

		if err != nil {
			log.Printf("Warning: %v\n", &NotificationError{Channel: w.channel.Name(), Err: err})
			continue
		}
		log.Printf("Sent notification via %s: %s\n", w.channel.Name(), msg.Listing.Address)
	}
}
