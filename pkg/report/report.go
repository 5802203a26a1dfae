// Package report keeps a JSON record of files whose command failed so a
// later run can retry only those.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Failure is one file that did not process
type Failure struct {
	Path     string    `json:"path"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
	Runs     int       `json:"runs"` // consecutive runs this file failed in
}

// Failures manages the failure report with persistence
type Failures struct {
	file   string
	items  map[string]*Failure
	mu     sync.Mutex
	logger zerolog.Logger
}

// Open loads the report at file, starting empty when it does not exist.
func Open(file string, logger zerolog.Logger) *Failures {
	f := &Failures{
		file:   file,
		items:  make(map[string]*Failure),
		logger: logger,
	}

	if err := f.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Warn().Err(err).Str("file", file).Msg("Ignoring unreadable failure report")
	}

	return f
}

// Add records a failure for path
func (f *Failures) Add(path string, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if existing, ok := f.items[path]; ok {
		existing.Runs++
		existing.Error = msg
		existing.FailedAt = time.Now()
		return
	}

	f.items[path] = &Failure{
		Path:     path,
		Error:    msg,
		FailedAt: time.Now(),
		Runs:     1,
	}
}

// Remove forgets path, typically after it processed successfully.
func (f *Failures) Remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.items[path]; ok {
		delete(f.items, path)
		f.logger.Debug().Str("path", path).Msg("Cleared from failure report")
	}
}

// Get returns the failure recorded for path
func (f *Failures) Get(path string) (Failure, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[path]
	if !ok {
		return Failure{}, false
	}
	return *item, true
}

// Paths returns the failed paths in sorted order
func (f *Failures) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	paths := make([]string, 0, len(f.items))
	for path := range f.items {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Count returns the number of recorded failures
func (f *Failures) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.items)
}

// Save writes the report. An empty report removes the file.
func (f *Failures) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		if err := os.Remove(f.file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing failure report: %w", err)
		}
		return nil
	}

	list := make([]*Failure, 0, len(f.items))
	for _, item := range f.items {
		list = append(list, item)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.file), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	tmp := f.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing failure report: %w", err)
	}
	if err := os.Rename(tmp, f.file); err != nil {
		return fmt.Errorf("replacing failure report: %w", err)
	}

	f.logger.Debug().Int("count", len(list)).Str("file", f.file).Msg("Saved failure report")
	return nil
}

// Load reads the report from disk
func (f *Failures) Load() error {
	data, err := os.ReadFile(f.file)
	if err != nil {
		return err
	}

	var list []*Failure
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parsing failure report: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, item := range list {
		if item != nil && item.Path != "" {
			f.items[item.Path] = item
		}
	}

	f.logger.Debug().Int("count", len(f.items)).Msg("Loaded failure report")
	return nil
}

// File returns the report location
func (f *Failures) File() string {
	return f.file
}
