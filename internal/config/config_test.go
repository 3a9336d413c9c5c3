package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  host: "0.0.0.0"
database:
  url: "postgres://localhost/warmline_test"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "openrouter", cfg.AI.Provider)
	assert.Equal(t, 30, cfg.AI.TimeoutSeconds)
	assert.Equal(t, 5, cfg.Warmup.MinEmailsPerDay)
	assert.Equal(t, 100, cfg.Warmup.MaxEmailsPerDay)
	assert.Equal(t, 6, cfg.Warmup.DurationWeeks)
	assert.Equal(t, 3, cfg.Warmup.MaxBatchSize)
	assert.Equal(t, 120, cfg.Warmup.SlotDelayMinSeconds)
	assert.Equal(t, 600, cfg.Warmup.SlotDelayMaxSeconds)
	assert.Equal(t, 0.05, cfg.Warmup.MaxBounceRate)
	assert.True(t, cfg.Warmup.AutoPauseOnHighBounce)
	assert.Equal(t, 0.85, cfg.Response.ReplyProbability)
	assert.Equal(t, 60, cfg.Topics.RefreshMinutes)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
warmup:
  max_emails_per_day: 40
  max_bounce_rate: 0.02
  auto_pause_on_high_bounce: false
response:
  reply_probability: 0.5
topics:
  feeds:
    - "https://example.com/feed.xml"
  refresh_minutes: 15
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 40, cfg.Warmup.MaxEmailsPerDay)
	assert.Equal(t, 0.02, cfg.Warmup.MaxBounceRate)
	assert.False(t, cfg.Warmup.AutoPauseOnHighBounce)
	assert.Equal(t, 0.5, cfg.Response.ReplyProbability)
	assert.Equal(t, []string{"https://example.com/feed.xml"}, cfg.Topics.Feeds)
	assert.Equal(t, 15, cfg.Topics.RefreshMinutes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
database:
  url: "postgres://localhost/from_yaml"
`)

	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_URL", "postgres://localhost/from_env")
	t.Setenv("MAX_EMAILS_PER_DAY", "60")
	t.Setenv("MAX_BOUNCE_RATE", "0.03")
	t.Setenv("AUTO_PAUSE_ON_HIGH_BOUNCE", "false")
	t.Setenv("WARMUP_TOPIC_FEEDS", "https://a.example/f.xml, https://b.example/f.xml")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/from_env", cfg.Database.URL)
	assert.Equal(t, 60, cfg.Warmup.MaxEmailsPerDay)
	assert.Equal(t, 0.03, cfg.Warmup.MaxBounceRate)
	assert.False(t, cfg.Warmup.AutoPauseOnHighBounce)
	assert.Equal(t, []string{"https://a.example/f.xml", "https://b.example/f.xml"}, cfg.Topics.Feeds)
}

func TestLoadFromEnvBadValuesKeepDefaults(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 8081\n")

	t.Setenv("PORT", "not-a-number")
	t.Setenv("MAX_BOUNCE_RATE", "lots")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 0.05, cfg.Warmup.MaxBounceRate)
}

func TestDiscoverProviderKeys(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-real-key-1")
	t.Setenv("OPENROUTER_API_KEY_2", "sk-or-real-key-2")
	t.Setenv("GROQ_API_KEY", "gsk_real")
	t.Setenv("OPENAI_API_KEY", "sk-openai-real")

	keys := DiscoverProviderKeys()
	require.Len(t, keys, 4)

	assert.Equal(t, "openrouter_1", keys[0].ID)
	assert.Equal(t, "openrouter", keys[0].Provider)
	assert.Equal(t, "sk-or-real-key-1", keys[0].Secret)
	assert.Equal(t, "openrouter_2", keys[1].ID)
	assert.Equal(t, "groq_1", keys[2].ID)
	assert.Equal(t, "openai_1", keys[3].ID)
}

func TestDiscoverProviderKeysSkipsPlaceholders(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "your_openrouter_key_here")
	t.Setenv("OPENROUTER_API_KEY_2", "sk-or-real")
	t.Setenv("GROQ_API_KEY", "# gsk_commented_out")
	t.Setenv("OPENAI_API_KEY", "xxx")

	keys := DiscoverProviderKeys()
	require.Len(t, keys, 1)

	// The surviving key still gets index 1: placeholders do not
	// consume indices.
	assert.Equal(t, "openrouter_1", keys[0].ID)
	assert.Equal(t, "sk-or-real", keys[0].Secret)
}

func TestDiscoverProviderKeysEmpty(t *testing.T) {
	for _, name := range []string{"OPENROUTER_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY"} {
		t.Setenv(name, "")
	}

	keys := DiscoverProviderKeys()
	assert.Empty(t, keys)
}
