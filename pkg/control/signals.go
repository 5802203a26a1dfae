//go:build !windows

package control

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Signals maps SIGUSR1 to Grow and SIGUSR2 to Shrink.
type Signals struct{}

// Events subscribes to the signals until ctx is done.
func (Signals) Events(ctx context.Context) <-chan Event {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)

	out := make(chan Event)
	go func() {
		defer signal.Stop(sigs)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				ev := Grow
				if sig == syscall.SIGUSR2 {
					ev = Shrink
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
