package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Quiz.DefaultQuestions)
	assert.Equal(t, 30, cfg.Quiz.DefaultTimePerQuestion)
	assert.Equal(t, "medium", cfg.Quiz.DefaultDifficulty)
	assert.Equal(t, 50, cfg.Quiz.MaxQuestions)
	assert.Equal(t, "60s", cfg.Generator.Timeout)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
  allowed_origins: ["https://quiz.example.com"]
quiz:
  default_questions: 5
generator:
  url: http://gen.local/quiz
  cache_ttl: 15m
redis:
  addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv("GENERATOR_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://quiz.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5, cfg.Quiz.DefaultQuestions)
	assert.Equal(t, 30, cfg.Quiz.DefaultTimePerQuestion)
	assert.Equal(t, "http://gen.local/quiz", cfg.Generator.URL)
	assert.Equal(t, "secret", cfg.Generator.APIKey)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, 15*time.Second, TTLDuration("15s", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
}
