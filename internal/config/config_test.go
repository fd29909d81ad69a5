package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  port: 9090
gateway:
  base_url: http://localhost:9100
models:
  speech: speech-model-1
  text: text-model-1
storage:
  temp_dir: /tmp/rpgscribe
  output_dir: /var/lib/rpgscribe
  database: /var/lib/rpgscribe/sessions.db
voices:
  host: voice-a
  guest: voice-b
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 1800.0, cfg.Pipeline.MaxSegmentSeconds)
	assert.Equal(t, 5000, cfg.Pipeline.MaxScriptChars)
	assert.Equal(t, 8000, cfg.Pipeline.SummaryBudgetChars)
	assert.Equal(t, 2, cfg.Workers.Count)
	assert.Equal(t, 500, cfg.Limits.MaxFileSizeMB)
	assert.Equal(t, "voice-a", cfg.Voices.Host)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a map"))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoaderCachesWithinTTL(t *testing.T) {
	path := writeConfig(t, validYAML)
	l := NewLoader(path, time.Hour)

	first, err := l.Current()
	require.NoError(t, err)
	assert.Equal(t, 9090, first.Server.Port)
	assert.False(t, l.Expired())

	// A disk edit is not visible until the TTL lapses.
	require.NoError(t, os.WriteFile(path, []byte(validYAML+"\nworkers:\n  count: 7\n"), 0o644))
	second, err := l.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, second.Workers.Count)
}

func TestLoaderReloadsAfterTTL(t *testing.T) {
	path := writeConfig(t, validYAML)
	l := NewLoader(path, time.Minute)

	base := time.Now()
	l.now = func() time.Time { return base }
	_, err := l.Current()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(validYAML+"\nworkers:\n  count: 7\n"), 0o644))

	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.True(t, l.Expired())
	cfg, err := l.Current()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers.Count)
}

func TestLoaderInvalidateForcesReload(t *testing.T) {
	path := writeConfig(t, validYAML)
	l := NewLoader(path, time.Hour)

	_, err := l.Current()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(validYAML+"\nworkers:\n  count: 7\n"), 0o644))
	l.Invalidate()
	assert.True(t, l.Expired())

	cfg, err := l.Current()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers.Count)
}

func TestLoaderServesStaleOnReloadFailure(t *testing.T) {
	path := writeConfig(t, validYAML)
	l := NewLoader(path, time.Minute)

	base := time.Now()
	l.now = func() time.Time { return base }
	first, err := l.Current()
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	l.now = func() time.Time { return base.Add(2 * time.Minute) }

	cfg, err := l.Current()
	require.NoError(t, err)
	assert.Equal(t, first, cfg)
}
