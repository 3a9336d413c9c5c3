// Package config loads application configuration from YAML with
// environment-variable overrides. All runtime knobs live here;
// components receive their slice of the config at construction.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the warm-up service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Vault    VaultConfig    `yaml:"vault"`
	Tracking TrackingConfig `yaml:"tracking"`
	AI       AIConfig       `yaml:"ai"`
	Warmup   WarmupConfig   `yaml:"warmup"`
	Response ResponseConfig `yaml:"response"`
	Topics   TopicsConfig   `yaml:"topics"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GetHost returns the bind host, defaulting to localhost.
func (s ServerConfig) GetHost() string {
	if s.Host == "" {
		return "localhost"
	}
	return s.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis endpoint used by the job broker, the
// distributed locks, and the shared rate ledger.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// VaultConfig holds the credential-vault key. When the key is empty the
// vault refuses to encrypt, so account creation fails rather than
// persisting a plaintext password.
type VaultConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

// TrackingConfig holds the open-pixel signing secret and the public URL
// prefix embedded in outgoing mail.
type TrackingConfig struct {
	SecretKey  string `yaml:"secret_key"`
	APIBaseURL string `yaml:"api_base_url"`
}

// AIConfig holds generator settings. Provider keys are not read from
// YAML; they are discovered from the environment (see DiscoverProviderKeys).
type AIConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// WarmupConfig holds the volume ramp and safety clamps.
type WarmupConfig struct {
	MinEmailsPerDay       int     `yaml:"min_emails_per_day"`
	MaxEmailsPerDay       int     `yaml:"max_emails_per_day"`
	DurationWeeks         int     `yaml:"duration_weeks"`
	MaxBatchSize          int     `yaml:"max_batch_size"`
	SlotDelayMinSeconds   int     `yaml:"slot_delay_min_seconds"`
	SlotDelayMaxSeconds   int     `yaml:"slot_delay_max_seconds"`
	MaxBounceRate         float64 `yaml:"max_bounce_rate"`
	AutoPauseOnHighBounce bool    `yaml:"auto_pause_on_high_bounce"`
	SignatureTemplate     string  `yaml:"signature_template"`
}

// ResponseConfig holds the conversation-engine reply policy.
type ResponseConfig struct {
	DelayMinHours    float64 `yaml:"delay_min_hours"`
	DelayMaxHours    float64 `yaml:"delay_max_hours"`
	ReplyProbability float64 `yaml:"reply_probability"`
}

// TopicsConfig holds optional RSS/Atom feeds whose recent headlines are
// blended into the AI prompt topic pool.
type TopicsConfig struct {
	Feeds          []string `yaml:"feeds"`
	RefreshMinutes int      `yaml:"refresh_minutes"`
}

// Load reads configuration from a YAML file and fills defaults.
func Load(path string) (*Config, error) {
	// Booleans that default to true must be seeded before unmarshal,
	// since a zero value is indistinguishable from an explicit false.
	cfg := Config{
		Warmup: WarmupConfig{AutoPauseOnHighBounce: true},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openrouter"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "meta-llama/llama-3.3-70b-instruct:free"
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.Warmup.MinEmailsPerDay == 0 {
		cfg.Warmup.MinEmailsPerDay = 5
	}
	if cfg.Warmup.MaxEmailsPerDay == 0 {
		cfg.Warmup.MaxEmailsPerDay = 100
	}
	if cfg.Warmup.DurationWeeks == 0 {
		cfg.Warmup.DurationWeeks = 6
	}
	if cfg.Warmup.MaxBatchSize == 0 {
		cfg.Warmup.MaxBatchSize = 3
	}
	if cfg.Warmup.SlotDelayMinSeconds == 0 {
		cfg.Warmup.SlotDelayMinSeconds = 120
	}
	if cfg.Warmup.SlotDelayMaxSeconds == 0 {
		cfg.Warmup.SlotDelayMaxSeconds = 600
	}
	if cfg.Warmup.MaxBounceRate == 0 {
		cfg.Warmup.MaxBounceRate = 0.05
	}
	if cfg.Response.DelayMinHours == 0 {
		cfg.Response.DelayMinHours = 1
	}
	if cfg.Response.DelayMaxHours == 0 {
		cfg.Response.DelayMaxHours = 6
	}
	if cfg.Response.ReplyProbability == 0 {
		cfg.Response.ReplyProbability = 0.85
	}
	if cfg.Topics.RefreshMinutes == 0 {
		cfg.Topics.RefreshMinutes = 60
	}

	return &cfg, nil
}

// LoadFromEnv loads the YAML config and then applies environment
// overrides. A .env file is honored when present.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = envInt(v, cfg.Server.Port)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		cfg.Vault.EncryptionKey = v
	}
	if v := os.Getenv("TRACKING_SECRET_KEY"); v != "" {
		cfg.Tracking.SecretKey = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.Tracking.APIBaseURL = v
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("MIN_EMAILS_PER_DAY"); v != "" {
		cfg.Warmup.MinEmailsPerDay = envInt(v, cfg.Warmup.MinEmailsPerDay)
	}
	if v := os.Getenv("MAX_EMAILS_PER_DAY"); v != "" {
		cfg.Warmup.MaxEmailsPerDay = envInt(v, cfg.Warmup.MaxEmailsPerDay)
	}
	if v := os.Getenv("WARMUP_DURATION_WEEKS"); v != "" {
		cfg.Warmup.DurationWeeks = envInt(v, cfg.Warmup.DurationWeeks)
	}
	if v := os.Getenv("MAX_BOUNCE_RATE"); v != "" {
		cfg.Warmup.MaxBounceRate = envFloat(v, cfg.Warmup.MaxBounceRate)
	}
	if v := os.Getenv("AUTO_PAUSE_ON_HIGH_BOUNCE"); v != "" {
		cfg.Warmup.AutoPauseOnHighBounce = envBool(v, cfg.Warmup.AutoPauseOnHighBounce)
	}
	if v := os.Getenv("WARMUP_SIGNATURE_TEMPLATE"); v != "" {
		cfg.Warmup.SignatureTemplate = v
	}
	if v := os.Getenv("RESPONSE_DELAY_MIN_HOURS"); v != "" {
		cfg.Response.DelayMinHours = envFloat(v, cfg.Response.DelayMinHours)
	}
	if v := os.Getenv("RESPONSE_DELAY_MAX_HOURS"); v != "" {
		cfg.Response.DelayMaxHours = envFloat(v, cfg.Response.DelayMaxHours)
	}
	if v := os.Getenv("WARMUP_TOPIC_FEEDS"); v != "" {
		cfg.Topics.Feeds = splitList(v)
	}

	return cfg, nil
}

func envInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(raw string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(raw string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ProviderKey is one chat-completion credential discovered from the
// environment. ID is "<provider>_<index>", 1-based, in priority order.
type ProviderKey struct {
	ID       string
	Provider string
	Secret   string
}

// providerEnvNames lists providers in priority order: OpenRouter keys
// first, then Groq, then OpenAI.
var providerEnvNames = []struct {
	provider string
	envName  string
}{
	{"openrouter", "OPENROUTER_API_KEY"},
	{"groq", "GROQ_API_KEY"},
	{"openai", "OPENAI_API_KEY"},
}

// placeholderMarkers are substrings that identify a key slot someone
// left unfilled (templates, docs examples, commented-out values).
var placeholderMarkers = []string{
	"your_", "insert_", "add_your_", "put_your_", "paste_your_",
	"enter_your_", "replace_with_", "example_", "test_key", "dummy_",
	"placeholder", "xxx", "yyy", "zzz",
}

// DiscoverProviderKeys reads provider credentials from the environment:
// NAME, then NAME_2 through NAME_9 for each provider. Placeholder-looking
// values are dropped.
func DiscoverProviderKeys() []ProviderKey {
	var keys []ProviderKey
	for _, p := range providerEnvNames {
		index := 1
		for i := 1; i <= 9; i++ {
			name := p.envName
			if i > 1 {
				name = fmt.Sprintf("%s_%d", p.envName, i)
			}
			val := strings.TrimSpace(os.Getenv(name))
			if val == "" || looksLikePlaceholder(val) {
				continue
			}
			keys = append(keys, ProviderKey{
				ID:       fmt.Sprintf("%s_%d", p.provider, index),
				Provider: p.provider,
				Secret:   val,
			})
			index++
		}
	}
	return keys
}

func looksLikePlaceholder(val string) bool {
	if strings.HasPrefix(val, "#") {
		return true
	}
	lower := strings.ToLower(val)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
