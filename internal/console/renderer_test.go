package console

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/robofuse/fanout/pkg/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu           sync.Mutex
	processed    int64
	failed       int64
	pending      int
	workers      int
	producerDone bool
	inFlight     []progress.Entry[string]
}

func (f *fakeSource) Failed() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

func (f *fakeSource) ProducerDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.producerDone
}

func (f *fakeSource) Workers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workers
}

func (f *fakeSource) Processed() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed
}

func (f *fakeSource) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeSource) InFlight() []progress.Entry[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]progress.Entry[string](nil), f.inFlight...)
}

func (f *fakeSource) set(processed int64, pending int, inFlight ...progress.Entry[string]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = processed
	f.pending = pending
	f.inFlight = inFlight
}

func newTestRenderer(src *fakeSource, rec *Recorder, perSec int) *Renderer[string] {
	return NewRenderer(Options[string]{
		Source:  src,
		Surface: rec,
		Summary: func(processed, pending, perSecond int) string {
			return fmt.Sprintf("done=%d pending=%d rate=%d", processed, pending, perSecond)
		},
		Label:         func(item string) string { return strings.ToUpper(item) },
		UpdatesPerSec: perSec,
	})
}

func TestRender_HeaderAndSubLines(t *testing.T) {
	src := &fakeSource{}
	src.set(2, 5,
		progress.Entry[string]{Item: "a.mkv", Percent: 42.5},
		progress.Entry[string]{Item: "b.mkv", Percent: 100},
	)
	rec := NewRecorder(60)

	newTestRenderer(src, rec, 3).Render()

	assert.Equal(t, []string{
		" | done=2 pending=5 rate=2",
		"  - A.MKV - 42.5/100%",
		"  - B.MKV - 100/100%",
	}, rec.Last())
	assert.Equal(t, "| done=2 pending=5 rate=2", rec.Title())

	for _, row := range rec.Frames()[0] {
		assert.Equal(t, 60, runewidth.StringWidth(row), "row %q not padded to width", row)
	}
}

func TestRender_SpinnerAdvances(t *testing.T) {
	src := &fakeSource{}
	rec := NewRecorder(40)
	r := newTestRenderer(src, rec, 3)

	var glyphs []string
	for i := 0; i < 5; i++ {
		r.Render()
		glyphs = append(glyphs, rec.Last()[0][1:2])
	}
	assert.Equal(t, []string{"|", "/", "-", `\`, "|"}, glyphs)
}

func TestRender_BlanksRowsFromLongerPreviousFrame(t *testing.T) {
	src := &fakeSource{}
	rec := NewRecorder(30)
	r := newTestRenderer(src, rec, 3)

	src.set(0, 3,
		progress.Entry[string]{Item: "a"},
		progress.Entry[string]{Item: "b"},
		progress.Entry[string]{Item: "c"},
	)
	r.Render()
	src.set(2, 1, progress.Entry[string]{Item: "c", Percent: 50})
	r.Render()
	r.Render()

	frames := rec.Frames()
	require.Len(t, frames, 3)
	assert.Len(t, frames[0], 4)
	assert.Len(t, frames[1], 4, "second frame must blank out the two vanished rows")
	assert.Equal(t, strings.Repeat(" ", 30), frames[1][2])
	assert.Equal(t, strings.Repeat(" ", 30), frames[1][3])
	assert.Len(t, frames[2], 2)
}

func TestRender_WrapsLongLines(t *testing.T) {
	src := &fakeSource{}
	long := strings.Repeat("x", 50)
	src.set(0, 0, progress.Entry[string]{Item: long})
	rec := NewRecorder(20)

	NewRenderer(Options[string]{Source: src, Surface: rec, UpdatesPerSec: 1}).Render()

	frame := rec.Frames()[0]
	for _, row := range frame {
		assert.Equal(t, 20, runewidth.StringWidth(row))
	}
	joined := strings.Join(frame[1:], "")
	assert.Contains(t, joined, long[:20])
	assert.Greater(t, len(frame), 3)
}

func TestRender_NarrowSurfaceKeepsItsWidth(t *testing.T) {
	src := &fakeSource{}
	src.set(0, 0, progress.Entry[string]{Item: "episode.mkv", Percent: 10})
	rec := NewRecorder(8)

	newTestRenderer(src, rec, 1).Render()

	for _, row := range rec.Frames()[0] {
		assert.Equal(t, 8, runewidth.StringWidth(row), "row %q wider than the surface", row)
	}
}

func TestRender_StatusSeesProducerState(t *testing.T) {
	src := &fakeSource{workers: 3, failed: 1}
	src.set(4, 2, progress.Entry[string]{Item: "a"})
	rec := NewRecorder(80)

	var seen []Status
	r := NewRenderer(Options[string]{
		Source:  src,
		Surface: rec,
		Status: func(s Status) string {
			seen = append(seen, s)
			return "status"
		},
		UpdatesPerSec: 1,
	})

	r.Render()
	src.mu.Lock()
	src.producerDone = true
	src.mu.Unlock()
	r.Render()

	require.Len(t, seen, 2)
	assert.Equal(t, Status{Processed: 4, Pending: 2, InFlight: 1, PerSecond: 4, Workers: 3, Failed: 1}, seen[0])
	assert.True(t, seen[1].ProducerDone)
}

func TestDefaultStatus_MarksEstimateUntilProducerDone(t *testing.T) {
	s := Status{Processed: 3, Pending: 2, InFlight: 1, Workers: 2, PerSecond: 1}
	assert.Equal(t, "processed 3/~6 | pending 2 | workers 2 | 1/s", defaultStatus(s))

	s.ProducerDone = true
	assert.Equal(t, "processed 3/6 | pending 2 | workers 2 | 1/s", defaultStatus(s))
}

func TestRender_ThroughputWindow(t *testing.T) {
	src := &fakeSource{}
	rec := NewRecorder(60)
	r := newTestRenderer(src, rec, 2)

	rates := make([]string, 0, 4)
	for _, processed := range []int64{0, 3, 5, 9} {
		src.set(processed, 0)
		r.Render()
		rates = append(rates, rec.Last()[0])
	}

	// baseline resets on ticks 0 and 2
	assert.Contains(t, rates[0], "rate=0")
	assert.Contains(t, rates[1], "rate=3")
	assert.Contains(t, rates[2], "rate=5")
	assert.Contains(t, rates[3], "rate=4")
}

type brokenSurface struct{}

func (brokenSurface) Width() int                 { panic("no console") }
func (brokenSurface) Paint(lines []string) error { return fmt.Errorf("closed") }

func TestRender_SurfaceFailuresAreIsolated(t *testing.T) {
	src := &fakeSource{}
	r := NewRenderer(Options[string]{Source: src, Surface: brokenSurface{}})
	assert.NotPanics(t, r.Render)
}

func TestRun_FinalPaintAndRelease(t *testing.T) {
	src := &fakeSource{}
	rec := NewRecorder(40)
	r := newTestRenderer(src, rec, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.Frames()) >= 2 }, time.Second, 5*time.Millisecond)
	src.set(7, 0)
	cancel()

	require.NoError(t, <-done)
	assert.True(t, rec.Closed())
	assert.Contains(t, rec.Last()[0], "done=7")
}

func TestTerminal_PaintReturnsToAnchor(t *testing.T) {
	var buf bytes.Buffer
	term := &Terminal{out: &buf, fd: -1}

	assert.Equal(t, DefaultWidth, term.Width())
	require.NoError(t, term.Paint([]string{"head  ", "row1  ", "row2  "}))

	assert.Equal(t, "\rhead\x1b[K\r\nrow1\x1b[K\r\nrow2\x1b[K\x1b[2A\r", buf.String())

	buf.Reset()
	require.NoError(t, term.Close())
	assert.Equal(t, "\x1b[2B\r\n", buf.String())
}

func TestTerminal_FullWidthRowIsNotErased(t *testing.T) {
	var buf bytes.Buffer
	term := &Terminal{out: &buf, fd: -1}

	f := newFrame(20)
	f.appendLine(strings.Repeat("x", 25))
	require.NoError(t, term.Paint(f.rows))

	assert.Equal(t, "\r"+strings.Repeat("x", 20)+"\r\nxxxxx\x1b[K\x1b[1A\r", buf.String())
}

func TestWrap(t *testing.T) {
	tests := []struct {
		line  string
		width int
		want  []string
	}{
		{"short", 10, []string{"short"}},
		{"abcdefghij", 5, []string{"abcde", "fghij"}},
		{"abcdefg", 3, []string{"abc", "def", "g"}},
		{"日本語テキスト", 4, []string{"日本", "語テ", "キス", "ト"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, wrap(tt.line, tt.width), "wrap(%q, %d)", tt.line, tt.width)
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "0", formatPercent(0))
	assert.Equal(t, "42.5", formatPercent(42.46))
	assert.Equal(t, "100", formatPercent(100))
	assert.Equal(t, "33.3", formatPercent(100.0/3))
}
