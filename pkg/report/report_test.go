package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailures_AddRemove(t *testing.T) {
	f := Open(filepath.Join(t.TempDir(), "failed.json"), zerolog.Nop())

	f.Add("/b.mkv", errors.New("exit status 1"))
	f.Add("/a.mkv", errors.New("codec not found"))
	f.Add("/b.mkv", errors.New("exit status 2"))

	assert.Equal(t, 2, f.Count())
	assert.Equal(t, []string{"/a.mkv", "/b.mkv"}, f.Paths())

	b, ok := f.Get("/b.mkv")
	require.True(t, ok)
	assert.Equal(t, 2, b.Runs)
	assert.Equal(t, "exit status 2", b.Error)

	f.Remove("/b.mkv")
	f.Remove("/missing.mkv")
	assert.Equal(t, []string{"/a.mkv"}, f.Paths())
}

func TestFailures_SaveAndReopen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state", "failed.json")

	f := Open(file, zerolog.Nop())
	f.Add("/show/e01.mkv", errors.New("boom"))
	require.NoError(t, f.Save())
	assert.FileExists(t, file)

	reopened := Open(file, zerolog.Nop())
	got, ok := reopened.Get("/show/e01.mkv")
	require.True(t, ok)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, 1, got.Runs)

	reopened.Add("/show/e01.mkv", errors.New("boom again"))
	got, _ = reopened.Get("/show/e01.mkv")
	assert.Equal(t, 2, got.Runs)
}

func TestFailures_EmptySaveRemovesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "failed.json")

	f := Open(file, zerolog.Nop())
	f.Add("/x.mp4", nil)
	require.NoError(t, f.Save())

	f.Remove("/x.mp4")
	require.NoError(t, f.Save())
	assert.NoFileExists(t, file)

	require.NoError(t, f.Save(), "removing a missing report is not an error")
}

func TestOpen_CorruptReportStartsEmpty(t *testing.T) {
	file := filepath.Join(t.TempDir(), "failed.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0644))

	f := Open(file, zerolog.Nop())
	assert.Zero(t, f.Count())
	assert.Equal(t, file, f.File())
}
