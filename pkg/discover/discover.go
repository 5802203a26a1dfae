// Package discover finds media files on disk and feeds them to a work queue,
// optionally watching the tree for files that appear later.
package discover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// EnqueueFunc hands a discovered path to the consumer.
type EnqueueFunc func(path string) error

// Options configures discovery
type Options struct {
	Root       string
	Extensions []string

	// Watch keeps the producer open for new files until Idle passes without
	// one, or the context ends.
	Watch    bool
	Idle     time.Duration
	Debounce time.Duration

	Logger zerolog.Logger
}

// Run walks Root and, in watch mode, keeps enqueuing files that settle after
// being created. It returns the number of paths enqueued.
func Run(ctx context.Context, opts Options, enqueue EnqueueFunc) (int, error) {
	if opts.Idle <= 0 {
		opts.Idle = 30 * time.Second
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}

	info, err := os.Stat(opts.Root)
	if err != nil {
		return 0, fmt.Errorf("reading root: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", opts.Root)
	}

	d := &discoverer{
		opts:    opts,
		match:   matcher(opts.Extensions),
		seen:    make(map[string]struct{}),
		enqueue: enqueue,
	}

	if !opts.Watch {
		err := d.walk(ctx, opts.Root)
		return d.count, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	d.watcher = watcher

	// Register directories before walking so files created mid-walk are seen.
	if err := d.watchTree(opts.Root); err != nil {
		return 0, err
	}
	if err := d.walk(ctx, opts.Root); err != nil {
		return d.count, err
	}

	err = d.watch(ctx)
	return d.count, err
}

type discoverer struct {
	opts    Options
	match   func(string) bool
	seen    map[string]struct{}
	enqueue EnqueueFunc
	watcher *fsnotify.Watcher
	count   int
}

// walk visits the tree with an explicit directory stack.
func (d *discoverer) walk(ctx context.Context, root string) error {
	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if dir == root {
				return fmt.Errorf("reading %s: %w", dir, err)
			}
			d.opts.Logger.Warn().Err(err).Str("dir", dir).Msg("Skipping unreadable directory")
			continue
		}

		var subdirs []string
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				subdirs = append(subdirs, path)
				continue
			}
			if err := d.offer(path); err != nil {
				return err
			}
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return nil
}

func (d *discoverer) offer(path string) error {
	if !d.match(path) {
		return nil
	}
	if _, ok := d.seen[path]; ok {
		return nil
	}
	d.seen[path] = struct{}{}

	if err := d.enqueue(path); err != nil {
		return fmt.Errorf("enqueue %s: %w", path, err)
	}
	d.count++
	return nil
}

func (d *discoverer) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if err := d.watcher.Add(path); err != nil {
			if path == root {
				return fmt.Errorf("watching %s: %w", path, err)
			}
			d.opts.Logger.Debug().Err(err).Str("dir", path).Msg("Cannot watch directory")
		}
		return nil
	})
}

// watch enqueues files once they have been quiet for Debounce, and returns
// after Idle without new files.
func (d *discoverer) watch(ctx context.Context) error {
	pending := make(map[string]time.Time)

	idle := time.NewTimer(d.opts.Idle)
	defer idle.Stop()
	tick := time.NewTicker(tickInterval(d.opts.Debounce))
	defer tick.Stop()

	resetIdle := func() {
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(d.opts.Idle)
	}

	d.opts.Logger.Info().
		Str("root", d.opts.Root).
		Dur("idle", d.opts.Idle).
		Msg("Watching for new files")

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-idle.C:
			if len(pending) > 0 {
				idle.Reset(d.opts.Debounce)
				continue
			}
			d.opts.Logger.Info().Int("found", d.count).Msg("Watch idle, no more files expected")
			return nil

		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if event.Op&fsnotify.Create != 0 {
					_ = d.watchTree(event.Name)
					before := d.count
					if err := d.walk(ctx, event.Name); err != nil {
						return err
					}
					if d.count > before {
						resetIdle()
					}
				}
				continue
			}
			if d.match(event.Name) {
				pending[event.Name] = time.Now()
			}

		case <-tick.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < d.opts.Debounce {
					continue
				}
				delete(pending, path)
				before := d.count
				if err := d.offer(path); err != nil {
					return err
				}
				if d.count > before {
					resetIdle()
				}
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			d.opts.Logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// tickInterval checks pending files twice per debounce period, at most once
// per millisecond.
func tickInterval(debounce time.Duration) time.Duration {
	return max(debounce/2, time.Millisecond)
}

// matcher builds a case-insensitive extension filter.
func matcher(exts []string) func(string) bool {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		if ext != "" {
			set["."+ext] = struct{}{}
		}
	}
	return func(path string) bool {
		_, ok := set[strings.ToLower(filepath.Ext(path))]
		return ok
	}
}
