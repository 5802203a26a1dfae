package console

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// frame.go lays out display rows so each one covers the full surface width.

// frame accumulates rows of exactly width display cells.
type frame struct {
	width int
	rows  []string
}

func newFrame(width int) *frame {
	if width < 1 {
		width = 1
	}
	return &frame{width: width, rows: make([]string, 0, 8)}
}

// appendLine adds text, one or more rows per line. Empty lines are dropped,
// lines wider than the frame wrap onto following rows.
func (f *frame) appendLine(text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		for _, row := range wrap(line, f.width) {
			f.rows = append(f.rows, runewidth.FillRight(row, f.width))
		}
	}
}

// blankTo appends blank rows until the frame is at least n rows tall.
func (f *frame) blankTo(n int) {
	blank := strings.Repeat(" ", f.width)
	for len(f.rows) < n {
		f.rows = append(f.rows, blank)
	}
}

// wrap splits line into chunks of at most width display cells.
func wrap(line string, width int) []string {
	if runewidth.StringWidth(line) <= width {
		return []string{line}
	}

	var (
		chunks []string
		b      strings.Builder
		cells  int
	)
	for _, r := range line {
		w := runewidth.RuneWidth(r)
		if cells+w > width {
			chunks = append(chunks, b.String())
			b.Reset()
			cells = 0
		}
		b.WriteRune(r)
		cells += w
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
