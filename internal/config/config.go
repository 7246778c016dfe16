// Package config loads the unitmap configuration file and supplies
// defaults for every tunable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable. Durations are configured in milliseconds; a
// zero stall timeout disables the extraction watchdog.
type Config struct {
	DBPath           string `yaml:"db_path"`
	ClusterSizeBound int    `yaml:"cluster_size_bound"`
	HotEdgeThreshold int    `yaml:"hot_edge_threshold"`
	UpdateIntervalMS int    `yaml:"update_interval_ms"`
	ExtractWorkers   int    `yaml:"extract_workers"`
	ChunkLines       int    `yaml:"chunk_lines"`
	StallTimeoutMS   int    `yaml:"stall_timeout_ms"`
}

// Default returns the baseline configuration.
func Default() Config {
	home, err := Home()
	if err != nil {
		home = "."
	}
	return Config{
		DBPath:           filepath.Join(home, "unitmap.db"),
		ClusterSizeBound: 4096,
		HotEdgeThreshold: 3,
		UpdateIntervalMS: 30000,
		ExtractWorkers:   runtime.NumCPU(),
		ChunkLines:       2000,
		StallTimeoutMS:   0,
	}
}

// Load reads the config at path, overlaying it on the defaults. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMS) * time.Millisecond
}

func (c Config) StallTimeout() time.Duration {
	return time.Duration(c.StallTimeoutMS) * time.Millisecond
}

// Home returns the unitmap data directory.
// Priority: $UNITMAP_HOME -> $XDG_CACHE_HOME/unitmap -> ~/.cache/unitmap
// (Unix) / %LOCALAPPDATA%\unitmap (Windows).
func Home() (string, error) {
	if home := os.Getenv("UNITMAP_HOME"); home != "" {
		return home, nil
	}

	if runtime.GOOS != "windows" {
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "unitmap"), nil
		}
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(userHome, "AppData", "Local", "unitmap"), nil
	default:
		return filepath.Join(userHome, ".cache", "unitmap"), nil
	}
}

// ImportsDir returns the directory where remote corpus archives are
// extracted before ingestion.
func ImportsDir() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "imports"), nil
}
