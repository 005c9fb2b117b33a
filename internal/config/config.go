package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Player    PlayerConfig    `toml:"player"`
	Game      GameConfig      `toml:"game"`
	Server    ServerConfig    `toml:"server"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Runtime   RuntimeConfig   `toml:"runtime"`
	Raw       map[string]any  `toml:"-"`
	Path      string          `toml:"-"`
}

type PlayerConfig struct {
	Name     string `toml:"name"`
	Password string `toml:"password"`
}

type GameConfig struct {
	Name       string `toml:"name"`
	NumTurns   int    `toml:"num_turns"`
	NumPlayers int    `toml:"num_players"`
}

type ServerConfig struct {
	Addr          string `toml:"addr"`
	DialTimeoutMS int    `toml:"dial_timeout_ms"`
}

type SchedulerConfig struct {
	StoragePhaseTicks     int   `toml:"storage_phase_ticks"`
	MaxTrainLevel         int   `toml:"max_train_level"`
	MaxTownLevel          int   `toml:"max_town_level"`
	FinalUpgradeHorizon   int   `toml:"final_upgrade_horizon"`
	FinalUpgradeDivisor   int   `toml:"final_upgrade_divisor"`
	ConservativeFootprint *bool `toml:"conservative_footprint"`
	Debug                 bool  `toml:"debug"`
}

type RuntimeConfig struct {
	HTTPAddr       string `toml:"http_addr"`
	DBPath         string `toml:"db_path"`
	TickIntervalMS int    `toml:"tick_interval_ms"`
	MaxTicks       int    `toml:"max_ticks"`
	BusBuffer      int    `toml:"bus_buffer"`
	RetryBackoffMS int    `toml:"retry_backoff_ms"`
}

// Default is the configuration used when no file is present.
func Default() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Player.Name == "" {
		c.Player.Name = "railhaul"
	}
	if c.Game.NumPlayers <= 0 {
		c.Game.NumPlayers = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "wgforge-srv.wargaming.net:443"
	}
	if c.Server.DialTimeoutMS <= 0 {
		c.Server.DialTimeoutMS = 10000
	}
	if c.Scheduler.ConservativeFootprint == nil {
		on := true
		c.Scheduler.ConservativeFootprint = &on
	}
	if c.Runtime.HTTPAddr == "" {
		c.Runtime.HTTPAddr = ":8090"
	}
	if c.Runtime.DBPath == "" {
		c.Runtime.DBPath = "railhaul.db"
	}
	if c.Runtime.BusBuffer <= 0 {
		c.Runtime.BusBuffer = 64
	}
	if c.Runtime.RetryBackoffMS <= 0 {
		c.Runtime.RetryBackoffMS = 500
	}
	return c
}

// Conservative reports whether stationary rival trains block both
// neighbouring cells.
func (s SchedulerConfig) Conservative() bool {
	return s.ConservativeFootprint == nil || *s.ConservativeFootprint
}

func (s ServerConfig) DialTimeout() time.Duration {
	return time.Duration(s.DialTimeoutMS) * time.Millisecond
}

func (r RuntimeConfig) TickInterval() time.Duration {
	return time.Duration(r.TickIntervalMS) * time.Millisecond
}

// RetryBackoff is the pause after a failed tick when ticks run back to back.
func (r RuntimeConfig) RetryBackoff() time.Duration {
	return time.Duration(r.RetryBackoffMS) * time.Millisecond
}

// Load reads path, or ~/.railhaul/config.toml when path is empty. A missing
// default file yields Default.
func Load(path string) (Config, error) {
	explicit := path != ""
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	var raw map[string]any
	if _, err := toml.Decode(string(bytes), &raw); err != nil {
		return Config{}, fmt.Errorf("decode raw config: %w", err)
	}
	cfg = cfg.withDefaults()
	cfg.Raw = raw
	cfg.Path = resolved
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".railhaul/config.toml"
	}
	return filepath.Join(home, ".railhaul", "config.toml")
}
