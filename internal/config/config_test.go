package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 50, cfg.Agent.MaxCalls)
	assert.Equal(t, 5, cfg.Agent.HistoryWindow)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
	assert.Equal(t, time.Second, cfg.LLM.Retry.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.Server.JoinTimeout)
	assert.True(t, filepath.IsAbs(cfg.Session.StorePath), "~ is expanded")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trailblaze.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: openai
  model: gpt-4o
  retry:
    max_retries: 1
agent:
  max_calls: 12
device:
  driver: mock
  classifiers: [android, phone]
`), 0o600))
	t.Setenv("TRAILBLAZE_AGENT_HISTORY_WINDOW", "9")

	cfg, err := Load(New(path))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 1, cfg.LLM.Retry.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.LLM.Retry.MaxDelay)
	assert.Equal(t, 12, cfg.Agent.MaxCalls)
	assert.Equal(t, 9, cfg.Agent.HistoryWindow)
	assert.Equal(t, []string{"android", "phone"}, cfg.Device.Classifiers)
}

func TestAPIKeyFollowsProvider(t *testing.T) {
	write := func(t *testing.T, body string) string {
		path := filepath.Join(t.TempDir(), "trailblaze.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("TRAILBLAZE_LLM_API_KEY", "")

	cfg, err := Load(New(write(t, "llm:\n  provider: openai\n  model: gpt-4o\n")))
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.LLM.APIKey)

	cfg, err = Load(New(write(t, "llm:\n  provider: openai\n  model: gpt-4o\n  api_key: sk-from-file\n")))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.LLM.APIKey, "vendor variables do not override the file")

	cfg, err = Load(New(write(t, "llm:\n  provider: groq\n  model: llama\n")))
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.APIKey, "other vendors' keys are never borrowed")

	t.Setenv("TRAILBLAZE_LLM_API_KEY", "sk-explicit")
	cfg, err = Load(New(write(t, "llm:\n  provider: openai\n  model: gpt-4o\n  api_key: sk-from-file\n")))
	require.NoError(t, err)
	assert.Equal(t, "sk-explicit", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"no model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"zero calls", func(c *Config) { c.Agent.MaxCalls = 0 }, "agent.max_calls"},
		{"web without url", func(c *Config) { c.Device.Driver = "web" }, "device.web_url"},
		{"bad driver", func(c *Config) { c.Device.Driver = "ios" }, "device.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestManagerSaveLoad(t *testing.T) {
	m := NewManagerAt(t.TempDir())
	assert.False(t, m.Exists())

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg.Agent.MaxCalls = 7
	cfg.Device.Driver = "mock"
	require.NoError(t, m.Save(cfg))
	assert.True(t, m.Exists())

	info, err := os.Stat(m.GetConfigPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Agent.MaxCalls)
	assert.Equal(t, "mock", loaded.Device.Driver)
	assert.Equal(t, cfg.LLM.Timeout, loaded.LLM.Timeout)
}
