// Package command runs an external program once per work item and turns its
// output into progress reports.
package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/robofuse/fanout/pkg/progress"
	"github.com/rs/zerolog"
)

// ErrEmptyTemplate is returned by New for a blank command template.
var ErrEmptyTemplate = errors.New("command template is empty")

// Option configures a Runner
type Option func(*Runner)

// WithAttempts sets how many times a failing command is tried
func WithAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithRetryDelay sets the base delay between attempts; attempt n waits n times
// the delay.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.retryDelay = d
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner executes a command template per item.
type Runner struct {
	args       []string
	attempts   int
	retryDelay time.Duration
	logger     zerolog.Logger

	bytes     atomic.Int64
	succeeded atomic.Int64
}

// New splits template into arguments with POSIX shell quoting rules.
// Placeholders are expanded per item: {} full path, {dir}, {base}, {name}
// (base without extension), {stem} (path without extension).
func New(template string, opts ...Option) (*Runner, error) {
	args, err := shellquote.Split(template)
	if err != nil {
		return nil, fmt.Errorf("parsing command template: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyTemplate
	}

	r := &Runner{
		args:     args,
		attempts: 1,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Process runs the command for item, retrying failed attempts.
func (r *Runner) Process(ctx context.Context, item string, sink *progress.Sink) error {
	var size int64
	if info, err := os.Stat(item); err == nil {
		size = info.Size()
	}

	args := expand(r.args, item)

	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		sink.Report(0)
		err = r.run(ctx, args, sink)
		if err == nil {
			sink.Report(100)
			r.bytes.Add(size)
			r.succeeded.Add(1)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Debug().
			Err(err).
			Str("item", item).
			Int("attempt", attempt).
			Msg("Command failed")

		if attempt < r.attempts && r.retryDelay > 0 {
			select {
			case <-time.After(time.Duration(attempt) * r.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", filepath.Base(item), r.attempts, err)
}

// Bytes returns the total input size of successfully processed items.
func (r *Runner) Bytes() int64 {
	return r.bytes.Load()
}

// Succeeded returns the number of items whose command exited cleanly.
func (r *Runner) Succeeded() int64 {
	return r.succeeded.Load()
}

func (r *Runner) run(ctx context.Context, args []string, sink *progress.Sink) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 2048}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", args[0], err)
	}

	scanProgress(stdout, sink)

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return err
	}
	return nil
}

// scanProgress reports every percentage found in r, splitting on CR as well
// as LF since progress meters usually redraw with a carriage return.
func scanProgress(r io.Reader, sink *progress.Sink) {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanLines)
	for scanner.Scan() {
		if p, ok := parseProgress(scanner.Text()); ok {
			sink.Report(p)
		}
	}
	// Drain so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func expand(args []string, item string) []string {
	base := filepath.Base(item)
	ext := filepath.Ext(item)
	replacer := strings.NewReplacer(
		"{}", item,
		"{dir}", filepath.Dir(item),
		"{base}", base,
		"{name}", strings.TrimSuffix(base, ext),
		"{stem}", strings.TrimSuffix(item, ext),
	)

	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = replacer.Replace(arg)
	}
	return out
}

func lastLine(s string) string {
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
