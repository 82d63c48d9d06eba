package config

import (
	"sort"
	"strings"
	"time"
)

// ServerConfig represents the HTTP gateway configuration
type ServerConfig struct {
	ListenAddress     string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IncludeReasons    bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// RedisConfig represents the Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig represents the key-value store configuration
type StoreConfig struct {
	Type                    string
	Timeout                 time.Duration
	CleanupFrequency        time.Duration
	Redis                   RedisConfig
	SQLitePath              string
	MySQLDSN                string
	FallbackEnabled         bool
	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration
}

// FormConfig holds fill-time bounds for one form
type FormConfig struct {
	MinimumTotalMs int64
	BotThresholdMs int64
}

// TimingConfig represents the form timing configuration
type TimingConfig struct {
	TokenTTL       time.Duration
	DefaultElapsed time.Duration
	Secret         string
	Forms          map[string]FormConfig
}

// AuditConfig represents the audit sink configuration
type AuditConfig struct {
	Enabled     bool
	Type        string
	BufferSize  int
	PostgresDSN string
}

// ReviewerConfig selects the advisory reviewer
type ReviewerConfig struct {
	Enabled  bool
	Provider string
	Timeout  time.Duration
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region        string
	ModelID       string
	MaxTokens     int
	Temperature   float32
	TopP          float32
	MaxPromptSize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey        string
	ModelName     string
	MaxTokens     int
	Temperature   float32
	TopP          float32
	MaxPromptSize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	ModelName     string
	MaxTokens     int
	Temperature   float32
	TopP          float32
	MaxPromptSize int
}

// MetricsConfig represents the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GetServer returns the server configuration
func (c *Config) GetServer() (ServerConfig, error) {
	s := ServerConfig{
		ListenAddress:     c.GetString("server.listen_address"),
		IncludeReasons:    c.GetBool("server.include_reasons"),
		RateLimitRequests: c.GetInt("server.rate_limit.requests"),
	}
	err := c.durations(map[string]*time.Duration{
		"server.read_timeout":      &s.ReadTimeout,
		"server.write_timeout":     &s.WriteTimeout,
		"server.rate_limit.window": &s.RateLimitWindow,
	})
	return s, err
}

// GetStore returns the store configuration
func (c *Config) GetStore() (StoreConfig, error) {
	s := StoreConfig{
		Type: strings.ToLower(c.GetString("store.type")),
		Redis: RedisConfig{
			Addr:     c.GetString("store.redis.addr"),
			Password: c.GetString("store.redis.password"),
			DB:       c.GetInt("store.redis.db"),
		},
		SQLitePath:              c.GetString("store.sqlite_path"),
		MySQLDSN:                c.GetString("store.mysql_dsn"),
		FallbackEnabled:         c.GetBool("store.fallback.enabled"),
		BreakerFailureThreshold: uint32(c.GetInt("store.breaker.failure_threshold")),
	}
	err := c.durations(map[string]*time.Duration{
		"store.timeout":              &s.Timeout,
		"store.cleanup_frequency":    &s.CleanupFrequency,
		"store.breaker.open_timeout": &s.BreakerOpenTimeout,
	})
	return s, err
}

// GetReputationTTL returns how long an idle reputation record is kept
func (c *Config) GetReputationTTL() (time.Duration, error) {
	return c.GetDuration("reputation.ttl")
}

// GetTiming returns the timing configuration. Forms are collected from every
// timing.forms.<name>.* key across defaults, file and environment.
func (c *Config) GetTiming() (TimingConfig, error) {
	t := TimingConfig{
		Secret: c.GetString("timing.secret"),
		Forms:  make(map[string]FormConfig),
	}
	for _, form := range c.formNames() {
		prefix := "timing.forms." + form + "."
		t.Forms[form] = FormConfig{
			MinimumTotalMs: c.GetInt64(prefix + "minimum_total_ms"),
			BotThresholdMs: c.GetInt64(prefix + "bot_threshold_ms"),
		}
	}
	err := c.durations(map[string]*time.Duration{
		"timing.token_ttl":       &t.TokenTTL,
		"timing.default_elapsed": &t.DefaultElapsed,
	})
	return t, err
}

func (c *Config) formNames() []string {
	const prefix = "timing.forms."
	seen := make(map[string]struct{})
	for _, key := range c.v.AllKeys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if i := strings.IndexByte(rest, '.'); i > 0 {
			seen[rest[:i]] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAudit returns the audit configuration
func (c *Config) GetAudit() AuditConfig {
	return AuditConfig{
		Enabled:     c.GetBool("audit.enabled"),
		Type:        strings.ToLower(c.GetString("audit.type")),
		BufferSize:  c.GetInt("audit.buffer_size"),
		PostgresDSN: c.GetString("audit.postgres_dsn"),
	}
}

// GetReviewer returns the reviewer selection
func (c *Config) GetReviewer() (ReviewerConfig, error) {
	r := ReviewerConfig{
		Enabled:  c.GetBool("reviewer.enabled"),
		Provider: strings.ToLower(c.GetString("reviewer.provider")),
	}
	var err error
	r.Timeout, err = c.GetDuration("reviewer.timeout")
	return r, err
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:        c.GetString("bedrock.region"),
		ModelID:       c.GetString("bedrock.model_id"),
		MaxTokens:     c.GetInt("bedrock.max_tokens"),
		Temperature:   float32(c.GetFloat64("bedrock.temperature")),
		TopP:          float32(c.GetFloat64("bedrock.top_p")),
		MaxPromptSize: c.GetInt("bedrock.max_prompt_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:        c.GetString("gemini.api_key"),
		ModelName:     c.GetString("gemini.model_name"),
		MaxTokens:     c.GetInt("gemini.max_tokens"),
		Temperature:   float32(c.GetFloat64("gemini.temperature")),
		TopP:          float32(c.GetFloat64("gemini.top_p")),
		MaxPromptSize: c.GetInt("gemini.max_prompt_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:        c.GetString("openai.api_key"),
		BaseURL:       c.GetString("openai.base_url"),
		ModelName:     c.GetString("openai.model_name"),
		MaxTokens:     c.GetInt("openai.max_tokens"),
		Temperature:   float32(c.GetFloat64("openai.temperature")),
		TopP:          float32(c.GetFloat64("openai.top_p")),
		MaxPromptSize: c.GetInt("openai.max_prompt_size"),
	}
}

// GetMetrics returns the metrics configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled: c.GetBool("metrics.enabled"),
		Path:    c.GetString("metrics.path"),
	}
}
