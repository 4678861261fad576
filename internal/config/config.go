// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package config loads layered configuration: struct defaults, then an
// optional YAML file, then environment variables, highest layer winning.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, first hit
// winning.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tracord/config.yaml",
	"/etc/tracord/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the full application configuration.
type Config struct {
	Listener    ListenerConfig    `koanf:"listener"`
	Library     LibraryConfig     `koanf:"library"`
	Stats       StatsConfig       `koanf:"stats"`
	Diagnostics DiagnosticsConfig `koanf:"diagnostics"`
	Overlay     OverlayConfig     `koanf:"overlay"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ListenerConfig configures the broadcast ingestion socket.
type ListenerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"gte=0,lte=65535"`
}

// LibraryConfig configures the track library snapshot.
type LibraryConfig struct {
	Path     string        `koanf:"path" validate:"required"`
	Watch    bool          `koanf:"watch"`
	Debounce time.Duration `koanf:"debounce" validate:"gte=0"`
}

// StatsConfig configures the persisted counters file.
type StatsConfig struct {
	File string `koanf:"file" validate:"required"`
}

// DiagnosticsConfig configures the unmatched-track log.
type DiagnosticsConfig struct {
	UnmatchedLog string `koanf:"unmatched_log"`
}

// OverlayConfig configures the browser overlay HTTP surface.
type OverlayConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port" validate:"gte=0,lte=65535"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns every setting at its default, applied before the
// file and environment layers.
func defaultConfig() *Config {
	return &Config{
		Listener: ListenerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Library: LibraryConfig{
			Path:     "data/collection.json",
			Watch:    true,
			Debounce: 500 * time.Millisecond,
		},
		Stats: StatsConfig{
			File: "data/stats.json",
		},
		Diagnostics: DiagnosticsConfig{
			UnmatchedLog: "data/unmatched.log",
		},
		Overlay: OverlayConfig{
			Enabled:     true,
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
	}
}

// Load assembles the configuration from defaults, the config file, and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the assembled configuration against the struct tags.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(fields, ", "))
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings names every environment variable the application reads and
// the config path it sets.
var envMappings = map[string]string{
	"listener_host": "listener.host",
	"listener_port": "listener.port",

	"library_path":     "library.path",
	"library_watch":    "library.watch",
	"library_debounce": "library.debounce",

	"stats_file": "stats.file",

	"unmatched_log": "diagnostics.unmatched_log",

	"overlay_enabled":      "overlay.enabled",
	"overlay_host":         "overlay.host",
	"overlay_port":         "overlay.port",
	"overlay_cors_origins": "overlay.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its config path.
// Unmapped variables are dropped so unrelated environment noise never
// leaks into the configuration.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// sliceConfigPaths lists paths that may arrive from the environment as a
// comma-separated string but must unmarshal as a slice.
var sliceConfigPaths = []string{
	"overlay.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		str, ok := val.(string)
		if !ok {
			continue
		}
		parts := strings.Split(str, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
