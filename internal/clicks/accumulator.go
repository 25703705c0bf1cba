// Package clicks implements best-effort click accounting. Events are
// buffered in memory and flushed in batches; a full queue drops events
// rather than slowing redirects. The resulting counts are an analytics
// signal, not a billing-grade counter.
package clicks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/model"
)

// Store is the slice of the link store the accumulator writes through.
// Increments go through the store's atomic counter update, never a raw
// overwrite.
type Store interface {
	InsertClickEvents(ctx context.Context, events []model.ClickEvent) error
	IncrementClicks(ctx context.Context, code string, delta int64) error
}

type Options struct {
	QueueSize  int
	Workers    int
	BatchSize  int
	FlushEvery time.Duration
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 10000
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = 5 * time.Second
	}
}

type Accumulator struct {
	store   Store
	log     *zap.Logger
	queue   chan model.ClickEvent
	opts    Options
	dropped atomic.Int64
	wg      sync.WaitGroup
}

func NewAccumulator(store Store, log *zap.Logger, opts Options) *Accumulator {
	opts.defaults()
	return &Accumulator{
		store: store,
		log:   log,
		queue: make(chan model.ClickEvent, opts.QueueSize),
		opts:  opts,
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is
// canceled, flushing any buffered events before exiting.
func (a *Accumulator) Start(ctx context.Context) {
	for i := 0; i < a.opts.Workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.worker(ctx)
		}()
	}
	a.log.Info("click accumulator started", zap.Int("workers", a.opts.Workers))
}

// Wait blocks until all workers have drained and exited.
func (a *Accumulator) Wait() {
	a.wg.Wait()
}

// Record enqueues an event without blocking. When the queue is full the
// event is dropped and counted; the caller's redirect is never delayed.
func (a *Accumulator) Record(ev model.ClickEvent) {
	select {
	case a.queue <- ev:
	default:
		if n := a.dropped.Add(1); n%1000 == 1 {
			a.log.Warn("click queue full, dropping events", zap.Int64("dropped_total", n))
		}
	}
}

// Dropped returns the number of events lost to a full queue.
func (a *Accumulator) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Accumulator) worker(ctx context.Context) {
	batch := make([]model.ClickEvent, 0, a.opts.BatchSize)
	ticker := time.NewTicker(a.opts.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-a.queue:
			batch = append(batch, ev)
			if len(batch) >= a.opts.BatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			// Drain whatever is still queued, then flush once.
			for {
				select {
				case ev := <-a.queue:
					batch = append(batch, ev)
				default:
					if len(batch) > 0 {
						a.flush(batch)
					}
					return
				}
			}
		}
	}
}

// flush appends the raw events and applies one grouped increment per code.
// Failures are logged and the events are lost; click recording never feeds
// errors back to the redirect path.
func (a *Accumulator) flush(batch []model.ClickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.store.InsertClickEvents(ctx, batch); err != nil {
		a.log.Error("click event batch insert failed", zap.Int("events", len(batch)), zap.Error(err))
		return
	}

	perCode := make(map[string]int64, len(batch))
	for _, ev := range batch {
		perCode[ev.ShortCode]++
	}
	for code, n := range perCode {
		if err := a.store.IncrementClicks(ctx, code, n); err != nil {
			if !model.IsNotFound(err) {
				a.log.Error("click count increment failed", zap.String("code", code), zap.Error(err))
			}
		}
	}
}
