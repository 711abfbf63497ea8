// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the refactoring server configuration.
//
// Values come from DefaultConfig, then an optional YAML file, then
// ALEUTIAN_REFACTOR_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ALEUTIAN_REFACTOR_"

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Workspace WorkspaceConfig  `yaml:"workspace"`
	Planning  PlanningConfig   `yaml:"planning"`
	Apply     ApplyConfig      `yaml:"apply"`
	Storage   StorageConfig    `yaml:"storage"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Logging   LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	// Address is the HTTP listen address.
	Address string `yaml:"address" validate:"required"`

	// Mode is the gin mode.
	Mode string `yaml:"mode" validate:"oneof=debug release test"`
}

type WorkspaceConfig struct {
	// Root is the default workspace root for requests that name none.
	Root string `yaml:"root"`

	// Exclude lists glob patterns skipped by reference scans.
	Exclude []string `yaml:"exclude"`

	// MaxFileSize is the largest file hashed or scanned, in bytes.
	MaxFileSize int64 `yaml:"max_file_size" validate:"gte=0"`
}

type PlanningConfig struct {
	// Concurrency bounds parallel file scanning and hashing.
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=256"`

	// ChecksumAlgorithm is sha256 or blake3.
	ChecksumAlgorithm string `yaml:"checksum_algorithm" validate:"oneof=sha256 blake3"`
}

type ApplyConfig struct {
	// ValidationTimeout applies to validation commands that set none.
	ValidationTimeout time.Duration `yaml:"validation_timeout" validate:"gt=0"`

	// MaxOutputBytes bounds captured validation output per stream.
	MaxOutputBytes int `yaml:"max_output_bytes" validate:"gt=0"`

	// JournalRetention expires revert journals. Zero keeps them.
	JournalRetention time.Duration `yaml:"journal_retention" validate:"gte=0"`
}

type StorageConfig struct {
	// Path is the badger directory. Empty with InMemory false disables
	// persistence of plans and journals.
	Path       string        `yaml:"path"`
	InMemory   bool          `yaml:"in_memory"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// Enabled reports whether a store should be opened.
func (s StorageConfig) Enabled() bool {
	return s.InMemory || s.Path != ""
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	storePath := ""
	if home, err := os.UserHomeDir(); err == nil {
		storePath = filepath.Join(home, ".aleutian", "refactor", "store")
	}
	return Config{
		Server: ServerConfig{
			Address: "127.0.0.1:12220",
			Mode:    "release",
		},
		Workspace: WorkspaceConfig{
			Exclude:     []string{".git", "node_modules", "vendor", "target", "dist", "__pycache__"},
			MaxFileSize: 50 * 1024 * 1024,
		},
		Planning: PlanningConfig{
			Concurrency:       8,
			ChecksumAlgorithm: "sha256",
		},
		Apply: ApplyConfig{
			ValidationTimeout: 60 * time.Second,
			MaxOutputBytes:    1 << 20,
			JournalRetention:  7 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			Path:       storePath,
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		},
		Telemetry: telemetry.DefaultConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path
// (skipped when path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *Config) error {
	cfg.Server.Address = getEnvOr(EnvPrefix+"ADDRESS", cfg.Server.Address)
	cfg.Server.Mode = getEnvOr(EnvPrefix+"MODE", cfg.Server.Mode)
	cfg.Workspace.Root = getEnvOr(EnvPrefix+"WORKSPACE_ROOT", cfg.Workspace.Root)
	cfg.Planning.ChecksumAlgorithm = getEnvOr(EnvPrefix+"CHECKSUM_ALGORITHM", cfg.Planning.ChecksumAlgorithm)
	cfg.Storage.Path = getEnvOr(EnvPrefix+"STORE_PATH", cfg.Storage.Path)
	cfg.Logging.Level = getEnvOr(EnvPrefix+"LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Dir = getEnvOr(EnvPrefix+"LOG_DIR", cfg.Logging.Dir)

	var err error
	if cfg.Planning.Concurrency, err = envInt(EnvPrefix+"CONCURRENCY", cfg.Planning.Concurrency); err != nil {
		return err
	}
	if cfg.Apply.ValidationTimeout, err = envDuration(EnvPrefix+"VALIDATION_TIMEOUT", cfg.Apply.ValidationTimeout); err != nil {
		return err
	}
	if cfg.Storage.InMemory, err = envBool(EnvPrefix+"STORE_IN_MEMORY", cfg.Storage.InMemory); err != nil {
		return err
	}
	if cfg.Logging.JSON, err = envBool(EnvPrefix+"LOG_JSON", cfg.Logging.JSON); err != nil {
		return err
	}
	return nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
