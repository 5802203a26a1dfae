package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robofuse/fanout/pkg/progress"
	"github.com/robofuse/fanout/pkg/queue"
	"github.com/rs/zerolog"
)

// pool.go provides a dynamically sized worker pool that drains a shared queue.

// ProcessFunc handles a single item, reporting progress through sink.
// Returned errors are counted and logged; they never stop the pool.
type ProcessFunc[T comparable] func(ctx context.Context, item T, sink *progress.Sink) error

// Option configures a Pool
type Option func(*options)

type options struct {
	logger zerolog.Logger
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Live      int
	Active    int
	Peak      int
	Processed int64
	Failed    int64
}

// Pool manages a live set of workers consuming from a queue
type Pool[T comparable] struct {
	ctx     context.Context
	queue   *queue.Queue[T]
	tracker *progress.Tracker[T]
	process ProcessFunc[T]
	logger  zerolog.Logger

	mu      sync.Mutex
	handles map[int]*handle
	nextID  int
	peak    int

	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a pool with no workers. ctx is handed to every ProcessFunc
// call; cancelling it stops all workers after their current item.
func NewPool[T comparable](ctx context.Context, q *queue.Queue[T], tracker *progress.Tracker[T], fn ProcessFunc[T], opts ...Option) *Pool[T] {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Pool[T]{
		ctx:     ctx,
		queue:   q,
		tracker: tracker,
		process: fn,
		logger:  o.logger,
		handles: make(map[int]*handle),
	}
}

// Add starts a new worker and returns its id.
func (p *Pool[T]) Add() int {
	p.mu.Lock()
	p.nextID++
	ctx, cancel := context.WithCancel(p.ctx)
	h := newHandle(p.nextID, cancel)
	p.handles[h.id] = h
	if len(p.handles) > p.peak {
		p.peak = len(p.handles)
	}
	live := len(p.handles)
	p.mu.Unlock()

	p.logger.Debug().Int("worker", h.id).Int("live", live).Msg("Worker added")

	go p.run(ctx, h)
	return h.id
}

// Remove asks the most recently added worker to stop after its current item.
// It returns false, leaving the pool untouched, when only one worker would be
// left consuming.
func (p *Pool[T]) Remove() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	var target *handle
	active := 0
	for _, h := range p.handles {
		if h.cancelRequested.Load() {
			continue
		}
		active++
		if target == nil || h.id > target.id {
			target = h
		}
	}

	if active <= 1 {
		p.logger.Debug().Int("active", active).Msg("Refusing to remove last worker")
		return false
	}

	target.cancelRequested.Store(true)
	target.cancel()
	p.logger.Debug().Int("worker", target.id).Msg("Worker removal requested")
	return true
}

// Wait blocks until the live set is empty. Workers added while waiting are
// picked up by re-scanning until a fixed point is reached.
func (p *Pool[T]) Wait() {
	for {
		p.mu.Lock()
		pending := make([]<-chan struct{}, 0, len(p.handles))
		for _, h := range p.handles {
			pending = append(pending, h.done)
		}
		p.mu.Unlock()

		if len(pending) == 0 {
			return
		}
		for _, done := range pending {
			<-done
		}
	}
}

// Live returns the number of workers that have not stopped yet.
func (p *Pool[T]) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Active returns the number of live workers without a pending removal.
func (p *Pool[T]) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeLocked()
}

// States returns the current state of every live worker keyed by id.
func (p *Pool[T]) States() map[int]State {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[int]State, len(p.handles))
	for id, h := range p.handles {
		out[id] = h.State()
	}
	return out
}

// Processed returns the number of items that finished, successfully or not.
func (p *Pool[T]) Processed() int64 {
	return p.processed.Load()
}

// Failed returns the number of items whose ProcessFunc errored or panicked.
func (p *Pool[T]) Failed() int64 {
	return p.failed.Load()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	s := Stats{Live: len(p.handles), Active: p.activeLocked(), Peak: p.peak}
	p.mu.Unlock()

	s.Failed = p.failed.Load()
	s.Processed = p.processed.Load()
	return s
}

func (p *Pool[T]) activeLocked() int {
	n := 0
	for _, h := range p.handles {
		if !h.cancelRequested.Load() {
			n++
		}
	}
	return n
}

func (p *Pool[T]) run(ctx context.Context, h *handle) {
	defer p.stop(h)

	h.setState(StateRunning)
	for {
		if ctx.Err() != nil {
			h.setState(StateCancelling)
			return
		}

		item, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				h.setState(StateFinishing)
			} else {
				h.setState(StateCancelling)
			}
			return
		}

		p.processItem(h, item)
	}
}

func (p *Pool[T]) processItem(h *handle, item T) {
	sink := p.tracker.Track(item)
	err := p.invoke(item, sink)
	p.tracker.Untrack(item)

	if err != nil {
		p.failed.Add(1)
		p.logger.Warn().
			Err(err).
			Int("worker", h.id).
			Str("item", fmt.Sprint(item)).
			Msg("Item failed")
	}
	p.processed.Add(1)
}

func (p *Pool[T]) invoke(item T, sink *progress.Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.process(p.ctx, item, sink)
}

// stop removes h from the live set before signalling completion so Wait never
// observes a finished handle on its next scan.
func (p *Pool[T]) stop(h *handle) {
	p.mu.Lock()
	delete(p.handles, h.id)
	live := len(p.handles)
	p.mu.Unlock()

	reason := h.State()
	h.setState(StateStopped)
	h.cancel()
	close(h.done)

	p.logger.Debug().
		Int("worker", h.id).
		Str("reason", reason.String()).
		Int("live", live).
		Msg("Worker stopped")
}
