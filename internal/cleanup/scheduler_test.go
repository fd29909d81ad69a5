package cleanup

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
	return path
}

func TestSweepDeletesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := writeAged(t, dir, "stale.wav", 48*time.Hour)
	fresh := writeAged(t, dir, "fresh.wav", time.Minute)

	s := NewScheduler(dir, time.Hour, 24*time.Hour, testLogger())
	s.Sweep()

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func TestSweepCollapsesEmptySegmentDirs(t *testing.T) {
	dir := t.TempDir()
	stale := writeAged(t, dir, "segments_abc/segment_000.wav", 48*time.Hour)

	s := NewScheduler(dir, time.Hour, 24*time.Hour, testLogger())
	s.Sweep()

	assert.NoFileExists(t, stale)
	assert.NoDirExists(t, filepath.Join(dir, "segments_abc"))
	assert.DirExists(t, dir)
}

func TestSweepKeepsDirsWithFreshFiles(t *testing.T) {
	dir := t.TempDir()
	fresh := writeAged(t, dir, "segments_abc/segment_000.wav", time.Minute)

	s := NewScheduler(dir, time.Hour, 24*time.Hour, testLogger())
	s.Sweep()

	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(dir, "segments_abc"))
}

func TestSweepTwiceDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "stale.wav", 48*time.Hour)

	s := NewScheduler(dir, time.Hour, 24*time.Hour, testLogger())
	assert.NotPanics(t, func() {
		s.Sweep()
		s.Sweep()
	})
}

func TestSweepMissingRootIsHarmless(t *testing.T) {
	s := NewScheduler(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Hour, testLogger())
	assert.NotPanics(t, s.Sweep)
}

func TestEnsureTempDirExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureTempDirExists(dir))
	assert.DirExists(t, dir)
}
