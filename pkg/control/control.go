// Package control delivers grow/shrink requests for a running worker pool.
package control

import (
	"context"

	"github.com/rs/zerolog"
)

// Event is a pool resize request.
type Event int

const (
	Grow Event = iota + 1
	Shrink
)

func (e Event) String() string {
	switch e {
	case Grow:
		return "grow"
	case Shrink:
		return "shrink"
	default:
		return "unknown"
	}
}

// Source yields resize events until it is closed or its context ends.
type Source interface {
	Events(ctx context.Context) <-chan Event
}

// Controller is the pool surface driven by events.
type Controller interface {
	Add() int
	Remove() bool
}

// Listen applies events from src to ctrl until ctx is done or the source's
// channel closes.
func Listen(ctx context.Context, src Source, ctrl Controller, logger zerolog.Logger) error {
	events := src.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev {
			case Grow:
				id := ctrl.Add()
				logger.Debug().Int("worker", id).Msg("Grow requested")
			case Shrink:
				if !ctrl.Remove() {
					logger.Debug().Msg("Shrink ignored, one worker left")
				}
			default:
				logger.Debug().Int("event", int(ev)).Msg("Unknown control event")
			}
		}
	}
}

// Multi merges several sources into one.
type Multi []Source

// Events fans in the events of every source.
func (m Multi) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	for _, src := range m {
		go func(events <-chan Event) {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}(src.Events(ctx))
	}
	return out
}

// Chan is a Source backed by a caller-owned channel.
type Chan chan Event

// Events returns the channel itself.
func (c Chan) Events(context.Context) <-chan Event {
	return c
}
