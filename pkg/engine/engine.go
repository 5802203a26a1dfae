// Package engine wires a work queue, a resizable worker pool, a progress
// renderer and a control source into a single run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robofuse/fanout/internal/console"
	"github.com/robofuse/fanout/pkg/control"
	"github.com/robofuse/fanout/pkg/progress"
	"github.com/robofuse/fanout/pkg/queue"
	"github.com/robofuse/fanout/pkg/worker"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultGrace is how long the renderer keeps ticking after the last worker
// stops, so the final counts reach the display.
const DefaultGrace = time.Second

// ErrNoQueue is returned when Options.Queue is nil.
var ErrNoQueue = errors.New("engine: queue is required")

// ProduceFunc feeds the queue. The engine closes the queue when it returns.
type ProduceFunc[T comparable] func(ctx context.Context, q *queue.Queue[T]) error

// Options configures a run
type Options[T comparable] struct {
	Queue   *queue.Queue[T]
	Produce ProduceFunc[T]
	Process worker.ProcessFunc[T]
	Workers int

	Surface       console.Surface
	Summary       console.SummaryFunc
	Status        console.StatusFunc
	Label         console.LabelFunc[T]
	UpdatesPerSec int

	Controls control.Source

	// Grace defaults to DefaultGrace; a negative value disables it.
	Grace  time.Duration
	Logger zerolog.Logger
}

// Result summarises a finished run
type Result struct {
	Processed   int64
	Failed      int64
	Pending     int
	PeakWorkers int
	Duration    time.Duration
}

// Run processes the queue until it is closed and drained and every worker has
// stopped. Cancelling ctx stops each worker after its current item; Run then
// returns ctx.Err() with the partial result.
func Run[T comparable](ctx context.Context, opts Options[T]) (*Result, error) {
	if opts.Queue == nil {
		return nil, ErrNoQueue
	}
	if opts.Process == nil {
		return nil, errors.New("engine: process func is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Grace == 0 {
		opts.Grace = DefaultGrace
	}

	start := time.Now()
	log := opts.Logger
	tracker := progress.NewTracker[T]()
	pool := worker.NewPool(ctx, opts.Queue, tracker, opts.Process, worker.WithLogger(log))

	// Display and control outlive ctx so the final frame is still painted.
	auxCtx, stopAux := context.WithCancel(context.WithoutCancel(ctx))
	defer stopAux()
	aux, auxCtx := errgroup.WithContext(auxCtx)

	if opts.Surface != nil {
		renderer := console.NewRenderer(console.Options[T]{
			Source:        &source[T]{pool: pool, queue: opts.Queue, tracker: tracker},
			Surface:       opts.Surface,
			Summary:       opts.Summary,
			Status:        opts.Status,
			Label:         opts.Label,
			UpdatesPerSec: opts.UpdatesPerSec,
			Logger:        log,
		})
		aux.Go(func() error { return renderer.Run(auxCtx) })
	}
	if opts.Controls != nil {
		aux.Go(func() error { return control.Listen(auxCtx, opts.Controls, pool, log) })
	}

	produced := make(chan error, 1)
	if opts.Produce != nil {
		go func() {
			defer opts.Queue.Close()
			produced <- opts.Produce(ctx, opts.Queue)
		}()
	} else {
		produced <- nil
	}

	for i := 0; i < opts.Workers; i++ {
		pool.Add()
	}
	log.Info().Int("workers", opts.Workers).Msg("Workers started")

	pool.Wait()
	produceErr := <-produced

	if opts.Grace > 0 {
		timer := time.NewTimer(opts.Grace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	stopAux()
	auxErr := aux.Wait()

	// A grow event may have raced the shutdown; such a worker exits at once.
	pool.Wait()

	stats := pool.Stats()
	result := &Result{
		Processed:   stats.Processed,
		Failed:      stats.Failed,
		Pending:     opts.Queue.Len(),
		PeakWorkers: stats.Peak,
		Duration:    time.Since(start),
	}

	log.Info().
		Int64("processed", result.Processed).
		Int64("failed", result.Failed).
		Int("peak_workers", result.PeakWorkers).
		Dur("duration", result.Duration).
		Msg("Run finished")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if produceErr != nil {
		return result, fmt.Errorf("producing items: %w", produceErr)
	}
	return result, auxErr
}

type source[T comparable] struct {
	pool    *worker.Pool[T]
	queue   *queue.Queue[T]
	tracker *progress.Tracker[T]
}

func (s *source[T]) Processed() int64 {
	return s.pool.Processed()
}

func (s *source[T]) Failed() int64 {
	return s.pool.Failed()
}

func (s *source[T]) Pending() int {
	return s.queue.Len()
}

// ProducerDone reports whether the queue was closed, so no item can still
// be enqueued.
func (s *source[T]) ProducerDone() bool {
	return s.queue.Closed()
}

func (s *source[T]) Workers() int {
	return s.pool.Live()
}

func (s *source[T]) InFlight() []progress.Entry[T] {
	return s.tracker.Snapshot()
}
