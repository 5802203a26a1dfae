package control

import (
	"context"
	"os"
	"sync"

	"golang.org/x/term"
)

// keyboard.go reads single keypresses from a raw-mode terminal.

// Keyboard maps '+' to Grow and '-' to Shrink. While active the terminal is in
// raw mode, so Ctrl+C arrives as a key and is forwarded to OnInterrupt.
type Keyboard struct {
	In          *os.File
	OnInterrupt func()
}

// Events switches In to raw mode and restores it when ctx is done.
func (k Keyboard) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)

	fd := int(k.In.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		close(out)
		return out
	}

	var restore sync.Once
	restoreTerm := func() {
		restore.Do(func() { _ = term.Restore(fd, state) })
	}

	keys := make(chan byte)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := k.In.Read(buf)
			if err != nil {
				close(keys)
				return
			}
			if n == 1 {
				select {
				case keys <- buf[0]:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		defer close(out)
		defer restoreTerm()
		for {
			select {
			case <-ctx.Done():
				return
			case key, ok := <-keys:
				if !ok {
					return
				}
				ev, ok := keyEvent(key)
				if !ok {
					if key == 0x03 && k.OnInterrupt != nil {
						k.OnInterrupt()
					}
					continue
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

func keyEvent(key byte) (Event, bool) {
	switch key {
	case '+', '=':
		return Grow, true
	case '-', '_':
		return Shrink, true
	}
	return 0, false
}
