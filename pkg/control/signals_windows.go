package control

import "context"

// Signals is inert on Windows, which has no user signals.
type Signals struct{}

// Events returns a channel that closes with ctx.
func (Signals) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}
