package worker

import (
	"context"
	"sync/atomic"
)

// State is the lifecycle stage of a single worker.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateFinishing
	StateCancelling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinishing:
		return "finishing"
	case StateCancelling:
		return "cancelling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type handle struct {
	id              int
	done            chan struct{}
	cancel          context.CancelFunc
	cancelRequested atomic.Bool
	state           atomic.Int32
}

func newHandle(id int, cancel context.CancelFunc) *handle {
	return &handle{
		id:     id,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

func (h *handle) setState(s State) {
	h.state.Store(int32(s))
}

// State returns the worker's current state
func (h *handle) State() State {
	return State(h.state.Load())
}
