// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:12220", cfg.Server.Address)
	assert.Equal(t, "sha256", cfg.Planning.ChecksumAlgorithm)
	assert.Equal(t, 60*time.Second, cfg.Apply.ValidationTimeout)
	assert.Equal(t, "aleutian-refactor", cfg.Telemetry.ServiceName)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refactor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: 0.0.0.0:9000
planning:
  concurrency: 4
  checksum_algorithm: blake3
apply:
  validation_timeout: 90s
storage:
  in_memory: true
`), 0o644))
	t.Setenv(EnvPrefix+"CONCURRENCY", "2")
	t.Setenv(EnvPrefix+"LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address)
	assert.Equal(t, "blake3", cfg.Planning.ChecksumAlgorithm)
	assert.Equal(t, 2, cfg.Planning.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Apply.ValidationTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Storage.InMemory)
	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, "release", cfg.Server.Mode, "unset keys keep their defaults")
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "unknown key", yaml: "server:\n  port: 1\n"},
		{name: "bad algorithm", yaml: "planning:\n  checksum_algorithm: md5\n"},
		{name: "zero concurrency", yaml: "planning:\n  concurrency: 0\n"},
		{name: "bad log level", env: map[string]string{EnvPrefix + "LOG_LEVEL": "loud"}},
		{name: "bad duration", env: map[string]string{EnvPrefix + "VALIDATION_TIMEOUT": "soon"}},
		{name: "bad exporter", yaml: "telemetry:\n  service_name: x\n  trace_exporter: zipkin\n  metric_exporter: none\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.yaml != "" {
				path = filepath.Join(t.TempDir(), "c.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate_WrapsSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Address = ""
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "refactor.yaml")
	require.NoError(t, WriteDefault(path))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Apply, cfg.Apply)
}
