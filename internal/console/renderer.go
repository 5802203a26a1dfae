package console

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robofuse/fanout/pkg/progress"
	"github.com/rs/zerolog"
)

// renderer.go repaints the aggregated status of a running pool in place.

var spinner = []string{"|", "/", "-", `\`, "|", "/", "-", `\`}

// SummaryFunc builds the header text from pool counters.
type SummaryFunc func(processed, pending, perSecond int) string

// Status is everything the renderer knows about the run on one tick.
type Status struct {
	Processed int
	Pending   int
	InFlight  int
	PerSecond int
	Workers   int
	Failed    int64

	// ProducerDone is false while items may still be enqueued, so Pending is
	// only an estimate.
	ProducerDone bool
}

// StatusFunc builds the header text from a Status. It takes precedence over
// SummaryFunc.
type StatusFunc func(Status) string

// LabelFunc names an in-flight item on its sub-line.
type LabelFunc[T comparable] func(item T) string

// Source exposes the counters the renderer polls on every tick.
type Source[T comparable] interface {
	Processed() int64
	Failed() int64
	Pending() int
	ProducerDone() bool
	Workers() int
	InFlight() []progress.Entry[T]
}

// Options configures a Renderer
type Options[T comparable] struct {
	Source        Source[T]
	Surface       Surface
	Summary       SummaryFunc
	Status        StatusFunc
	Label         LabelFunc[T]
	UpdatesPerSec int
	Logger        zerolog.Logger
}

// Renderer paints a spinner header plus one row per in-flight item.
type Renderer[T comparable] struct {
	opts Options[T]

	mu            sync.Mutex
	tick          int
	lastProcessed int64
	lastRows      int
}

// NewRenderer creates a renderer. Missing formatters fall back to plain
// counters and fmt.Sprint labels.
func NewRenderer[T comparable](opts Options[T]) *Renderer[T] {
	if opts.UpdatesPerSec < 1 {
		opts.UpdatesPerSec = 3
	}
	if opts.Status == nil {
		if summary := opts.Summary; summary != nil {
			opts.Status = func(s Status) string { return summary(s.Processed, s.Pending, s.PerSecond) }
		} else {
			opts.Status = defaultStatus
		}
	}
	if opts.Label == nil {
		opts.Label = func(item T) string { return fmt.Sprint(item) }
	}
	return &Renderer[T]{opts: opts}
}

// Interval returns the time between two ticks.
func (r *Renderer[T]) Interval() time.Duration {
	return time.Second / time.Duration(r.opts.UpdatesPerSec)
}

// Run repaints on every tick until ctx is done, then paints a final frame and
// releases the surface.
func (r *Renderer[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Render()
			r.release()
			return nil
		case <-ticker.C:
			r.Render()
		}
	}
}

// Render composes and paints one frame.
func (r *Renderer[T]) Render() {
	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.opts.Source
	processed := src.Processed()
	inFlight := src.InFlight()
	status := Status{
		Processed:    int(processed),
		Pending:      src.Pending(),
		InFlight:     len(inFlight),
		PerSecond:    int(processed - r.lastProcessed),
		Workers:      src.Workers(),
		Failed:       src.Failed(),
		ProducerDone: src.ProducerDone(),
	}

	header := " " + spinner[r.tick%len(spinner)] + " " + r.opts.Status(status)

	f := newFrame(r.width())
	f.appendLine(header)
	for _, e := range inFlight {
		f.appendLine(fmt.Sprintf("  - %s - %s/100%%", r.opts.Label(e.Item), formatPercent(e.Percent)))
	}

	rows := len(f.rows)
	f.blankTo(r.lastRows)
	r.lastRows = rows

	if t, ok := r.opts.Surface.(Titler); ok {
		title, _, _ := strings.Cut(header, "\n")
		t.SetTitle(strings.TrimSpace(title))
	}
	if err := r.opts.Surface.Paint(f.rows); err != nil {
		r.opts.Logger.Debug().Err(err).Msg("Failed to paint progress")
	}

	if r.tick%r.opts.UpdatesPerSec == 0 {
		r.lastProcessed = processed
	}
	r.tick++
}

func (r *Renderer[T]) width() (width int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Logger.Debug().Interface("panic", rec).Msg("Surface width unavailable")
			width = DefaultWidth
		}
	}()
	width = r.opts.Surface.Width()
	if width <= 0 {
		width = DefaultWidth
	}
	return width
}

func (r *Renderer[T]) release() {
	c, ok := r.opts.Surface.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		r.opts.Logger.Debug().Err(err).Msg("Failed to release surface")
	}
}

// defaultStatus marks the total with "~" until the producer is done.
func defaultStatus(s Status) string {
	total := strconv.Itoa(s.Processed + s.InFlight + s.Pending)
	if !s.ProducerDone {
		total = "~" + total
	}
	return fmt.Sprintf("processed %d/%s | pending %d | workers %d | %d/s",
		s.Processed, total, s.Pending, s.Workers, s.PerSecond)
}

// formatPercent renders one decimal, dropping a trailing ".0".
func formatPercent(p float64) string {
	return strconv.FormatFloat(math.Round(p*10)/10, 'f', -1, 64)
}
