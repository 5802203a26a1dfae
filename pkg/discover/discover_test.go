package discover

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// discover_test.go covers tree walking, filtering and watch mode.

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) add(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
	return nil
}

func (c *collector) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestRun_WalksTreeAndFilters(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mkv"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "Show", "S01", "e01.MP4"))
	touch(t, filepath.Join(root, "Show", "S01", "e01.srt"))
	touch(t, filepath.Join(root, "Movies", "film.m4v"))

	var c collector
	n, err := Run(context.Background(), Options{
		Root:       root,
		Extensions: []string{"mkv", ".mp4", "M4V"},
		Logger:     zerolog.Nop(),
	}, c.add)
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{
		filepath.Join(root, "a.mkv"),
		filepath.Join(root, "Movies", "film.m4v"),
		filepath.Join(root, "Show", "S01", "e01.MP4"),
	}, c.list())
}

func TestRun_RootMustBeDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.mkv")
	touch(t, file)

	_, err := Run(context.Background(), Options{Root: file, Extensions: []string{"mkv"}}, func(string) error { return nil })
	assert.Error(t, err)

	_, err = Run(context.Background(), Options{Root: filepath.Join(root, "missing")}, func(string) error { return nil })
	assert.Error(t, err)
}

func TestRun_CancelledContext(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mkv"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{Root: root, Extensions: []string{"mkv"}}, func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_WatchPicksUpNewFilesThenGoesIdle(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "existing.mkv"))

	var c collector
	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), Options{
			Root:       root,
			Extensions: []string{"mkv"},
			Watch:      true,
			Idle:       500 * time.Millisecond,
			Debounce:   50 * time.Millisecond,
			Logger:     zerolog.Nop(),
		}, c.add)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(c.list()) == 1 }, time.Second, 10*time.Millisecond)

	touch(t, filepath.Join(root, "new.mkv"))
	touch(t, filepath.Join(root, "ignored.txt"))

	require.Eventually(t, func() bool { return len(c.list()) == 2 }, 2*time.Second, 10*time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch never went idle")
	}
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "existing.mkv"),
		filepath.Join(root, "new.mkv"),
	}, c.list())
}

func TestRun_WatchWithTinyDebounce(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mkv"))

	var c collector
	_, err := Run(context.Background(), Options{
		Root:       root,
		Extensions: []string{"mkv"},
		Watch:      true,
		Idle:       50 * time.Millisecond,
		Debounce:   time.Nanosecond,
		Logger:     zerolog.Nop(),
	}, c.add)
	require.NoError(t, err)
	assert.Len(t, c.list(), 1)
}

func TestTickInterval(t *testing.T) {
	assert.Equal(t, time.Second, tickInterval(2*time.Second))
	assert.Equal(t, time.Millisecond, tickInterval(time.Nanosecond))
	assert.Equal(t, time.Millisecond, tickInterval(0))
}

func TestMatcher(t *testing.T) {
	match := matcher([]string{"mkv", ".MP4"})
	assert.True(t, match("/a/b.MKV"))
	assert.True(t, match("c.mp4"))
	assert.False(t, match("d.avi"))
	assert.False(t, match("mkv"))
}
