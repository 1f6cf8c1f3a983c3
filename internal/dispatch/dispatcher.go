package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/notify"
)

// Sink delivers a task somewhere: a message broker or a notifier.
type Sink interface {
	Deliver(ctx context.Context, t Task) error
}

// NotifierSink applies tasks directly against a Notifier in process.
type NotifierSink struct {
	Notifier notify.Notifier
}

func (s NotifierSink) Deliver(ctx context.Context, t Task) error {
	return Apply(ctx, s.Notifier, t)
}

// Options tunes a Dispatcher.  Zero values select defaults.
type Options struct {
	Buffer  int
	Workers int
	Timeout time.Duration
}

// Dispatcher queues tasks in memory and hands them to a Sink from a small
// worker pool.  Submit never blocks: when the buffer is full the task is
// dropped and logged.
type Dispatcher struct {
	sink    Sink
	log     *zap.Logger
	timeout time.Duration
	tasks   chan Task
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts the worker pool.  Call Close to drain it.
func New(sink Sink, log *zap.Logger, opts Options) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	d := &Dispatcher{
		sink:    sink,
		log:     log.Named("dispatch"),
		timeout: opts.Timeout,
		tasks:   make(chan Task, opts.Buffer),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Submit enqueues t for a single delivery attempt.
func (d *Dispatcher) Submit(t Task) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher closed, dropping task", zap.String("task_id", t.ID), zap.String("kind", string(t.Kind)))
		return
	}
	select {
	case d.tasks <- t:
	default:
		d.log.Warn("dispatch buffer full, dropping task",
			zap.String("task_id", t.ID),
			zap.String("kind", string(t.Kind)),
			zap.Uint64("listing_id", t.ListingID))
	}
}

// Close stops accepting tasks and waits for queued ones to be attempted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for t := range d.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sink.Deliver(ctx, t); err != nil {
			d.log.Warn("side effect failed",
				zap.String("task_id", t.ID),
				zap.String("kind", string(t.Kind)),
				zap.Uint64("listing_id", t.ListingID),
				zap.Error(err))
		}
		cancel()
	}
}
