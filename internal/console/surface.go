package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// surface.go holds the output ports the renderer paints through.

// DefaultWidth is used when the surface cannot report its width.
const DefaultWidth = 80

// Surface is a fixed-width, line-oriented display.
type Surface interface {
	Width() int
	Paint(lines []string) error
}

// Titler is implemented by surfaces that can show a window title.
type Titler interface {
	SetTitle(title string)
}

// Terminal repaints frames in place on an ANSI terminal. After every paint the
// cursor is parked on the frame's first row, so the next paint overwrites it.
type Terminal struct {
	out io.Writer
	fd  int

	mu   sync.Mutex
	rows int
}

// NewTerminal creates a terminal surface writing to f.
func NewTerminal(f *os.File) *Terminal {
	return &Terminal{out: f, fd: int(f.Fd())}
}

// Width returns the terminal column count.
func (t *Terminal) Width() int {
	width, _, err := term.GetSize(t.fd)
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	return width
}

// Paint writes lines starting at the anchor and returns the cursor there.
// Rows arrive padded to the frame width. A row that fills it is not followed
// by an erase, which would clear its last cell while the cursor waits to wrap.
func (t *Terminal) Paint(lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("\r")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\r\n")
		}
		row := strings.TrimRight(line, " ")
		b.WriteString(row)
		if runewidth.StringWidth(row) < runewidth.StringWidth(line) || row == "" {
			b.WriteString("\x1b[K")
		}
	}
	if len(lines) > 1 {
		fmt.Fprintf(&b, "\x1b[%dA", len(lines)-1)
	}
	b.WriteString("\r")

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = len(lines)
	_, err := io.WriteString(t.out, b.String())
	return err
}

// SetTitle sets the terminal window title.
func (t *Terminal) SetTitle(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\x1b]0;%s\x07", title)
}

// Close moves the cursor below the last painted frame.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	if t.rows > 1 {
		fmt.Fprintf(&b, "\x1b[%dB", t.rows-1)
	}
	b.WriteString("\r\n")
	t.rows = 0
	_, err := io.WriteString(t.out, b.String())
	return err
}

// LogSurface turns frames into periodic log lines for non-interactive output.
type LogSurface struct {
	logger    zerolog.Logger
	sometimes rate.Sometimes

	mu   sync.Mutex
	last []string
}

// NewLogSurface logs at most one frame per interval.
func NewLogSurface(logger zerolog.Logger, interval time.Duration) *LogSurface {
	return &LogSurface{
		logger:    logger,
		sometimes: rate.Sometimes{First: 1, Interval: interval},
	}
}

// Width is wide enough that log lines never wrap.
func (l *LogSurface) Width() int {
	return 512
}

// Paint records the frame and logs it if the interval has elapsed.
func (l *LogSurface) Paint(lines []string) error {
	l.mu.Lock()
	l.last = trimFrame(lines)
	frameLines := l.last
	l.mu.Unlock()

	l.sometimes.Do(func() { l.log(frameLines) })
	return nil
}

// Close logs the most recent frame unconditionally.
func (l *LogSurface) Close() error {
	l.mu.Lock()
	frameLines := l.last
	l.mu.Unlock()

	if len(frameLines) > 0 {
		l.log(frameLines)
	}
	return nil
}

func (l *LogSurface) log(lines []string) {
	event := l.logger.Info().Int("in_flight", len(lines)-1)
	if len(lines) > 1 {
		event = event.Strs("items", lines[1:])
	}
	event.Msg(strings.TrimSpace(lines[0]))
}

// Recorder captures painted frames in memory.
type Recorder struct {
	width int

	mu     sync.Mutex
	frames [][]string
	title  string
	closed bool
}

// NewRecorder creates a recorder reporting the given width.
func NewRecorder(width int) *Recorder {
	return &Recorder{width: width}
}

// Width returns the configured width.
func (r *Recorder) Width() int {
	return r.width
}

// Paint stores a copy of lines.
func (r *Recorder) Paint(lines []string) error {
	cp := append([]string(nil), lines...)
	r.mu.Lock()
	r.frames = append(r.frames, cp)
	r.mu.Unlock()
	return nil
}

// SetTitle stores the title.
func (r *Recorder) SetTitle(title string) {
	r.mu.Lock()
	r.title = title
	r.mu.Unlock()
}

// Close marks the recorder released.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Frames returns every painted frame.
func (r *Recorder) Frames() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.frames...)
}

// Last returns the most recent frame with trailing blank rows and padding
// removed.
func (r *Recorder) Last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return trimFrame(r.frames[len(r.frames)-1])
}

// Title returns the last title set.
func (r *Recorder) Title() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.title
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// trimFrame strips padding and drops blank rows.
func trimFrame(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
