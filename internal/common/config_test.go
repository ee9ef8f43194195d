package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg := LoadConfig(v)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 5*time.Minute, cfg.LLM.Timeout)
	assert.Equal(t, 4096, cfg.LLM.NumCtx)
	assert.Equal(t, 5, cfg.Queue.CheckpointEvery)
	assert.Equal(t, 1, cfg.Queue.Workers)
	assert.Equal(t, BackendSQLite, cfg.Graph.Backend)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  workers: 3\ngraph:\n  backend: Memory\n"), 0o644))
	t.Setenv("CHECKPOINT_EVERY", "9")

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg := LoadConfig(v)

	assert.Equal(t, 3, cfg.Queue.Workers)
	assert.Equal(t, 9, cfg.Queue.CheckpointEvery)
	assert.Equal(t, BackendMemory, cfg.Graph.Backend)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		v := viper.New()
		SetDefaults(v)
		return LoadConfig(v)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero checkpoint interval", func(c *Config) { c.Queue.CheckpointEvery = 0 }},
		{"zero workers", func(c *Config) { c.Queue.Workers = 0 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }},
		{"no timeout", func(c *Config) { c.LLM.Timeout = 0 }},
		{"sqlite without dsn", func(c *Config) { c.Graph.DSN = "" }},
		{"unknown backend", func(c *Config) { c.Graph.Backend = "dynamo" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			var appErr *AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "CONFIG_ERROR", appErr.Code)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
