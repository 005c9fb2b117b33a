package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDecodesSections(t *testing.T) {
	path := writeConfig(t, `
[player]
name = "alice"
password = "secret"

[game]
name = "league-3"
num_turns = 500
num_players = 2

[server]
addr = "127.0.0.1:2000"
dial_timeout_ms = 2500

[scheduler]
storage_phase_ticks = 120
conservative_footprint = false
debug = true

[runtime]
http_addr = "127.0.0.1:9000"
tick_interval_ms = 250
retry_backoff_ms = 2000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Player.Name)
	assert.Equal(t, "league-3", cfg.Game.Name)
	assert.Equal(t, 2, cfg.Game.NumPlayers)
	assert.Equal(t, 2500*time.Millisecond, cfg.Server.DialTimeout())
	assert.Equal(t, 120, cfg.Scheduler.StoragePhaseTicks)
	assert.False(t, cfg.Scheduler.Conservative())
	assert.True(t, cfg.Scheduler.Debug)
	assert.Equal(t, 250*time.Millisecond, cfg.Runtime.TickInterval())
	assert.Equal(t, 2*time.Second, cfg.Runtime.RetryBackoff())
	assert.Equal(t, "railhaul.db", cfg.Runtime.DBPath)
	assert.Equal(t, path, cfg.Path)

	game, ok := cfg.Raw["game"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(500), game["num_turns"])
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[player]\nname = \"bob\"\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Scheduler.Conservative())
	assert.Equal(t, 1, cfg.Game.NumPlayers)
	assert.Equal(t, 10*time.Second, cfg.Server.DialTimeout())
	assert.Equal(t, ":8090", cfg.Runtime.HTTPAddr)
	assert.Zero(t, cfg.Runtime.TickInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.Runtime.RetryBackoff())
	assert.Zero(t, cfg.Scheduler.StoragePhaseTicks, "rule defaults belong to the policy engine")
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[player\nname="))
	assert.Error(t, err)
}

func TestLoadResolvesHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".railhaul")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[game]\nname = \"g\"\n"), 0o644))

	cfg, err := Load("~/.railhaul/config.toml")
	require.NoError(t, err)
	assert.Equal(t, "g", cfg.Game.Name)

	fallback, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "g", fallback.Game.Name)
}
