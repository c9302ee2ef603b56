package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Youssef2430/portfolio/internal/ai"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Chat       ChatConfig       `mapstructure:"chat"`
	RAG        RAGConfig        `mapstructure:"rag"`
	Supabase   SupabaseConfig   `mapstructure:"supabase"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Persona    PersonaConfig    `mapstructure:"persona"`
	Bot        BotConfig        `mapstructure:"bot"`
	Pricing    []PriceOverride  `mapstructure:"pricing"`
}

// PriceOverride adds or replaces one model's price, in USD per million tokens.
// A list rather than a map because model ids contain the key delimiter.
type PriceOverride struct {
	Model  string  `mapstructure:"model"`
	Input  float64 `mapstructure:"input"`
	Output float64 `mapstructure:"output"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ProviderConfig selects the chat-completion backend: openai, openrouter or gemini.
type ProviderConfig struct {
	Name       string `mapstructure:"name"`
	MaxRetries uint64 `mapstructure:"max_retries"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type OpenRouterConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Referer string `mapstructure:"referer"`
	Title   string `mapstructure:"title"`
}

type GeminiConfig struct {
	APIKey     string   `mapstructure:"api_key"`
	ChatModels []string `mapstructure:"chat_models"`
	RPMLimit   int      `mapstructure:"rpm_limit"`
}

// EmbeddingConfig selects the query embedder: openai or gemini.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

type ChatConfig struct {
	Name          string        `mapstructure:"name"`
	Model         string        `mapstructure:"model"`
	AllowedModels []string      `mapstructure:"allowed_models"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float32       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
}

// RAGConfig selects where context comes from. With Enabled false the static
// persona biography is used for every question.
type RAGConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Retriever     string  `mapstructure:"retriever"` // memory, supabase or chromem
	TopK          int     `mapstructure:"top_k"`
	MinSimilarity float32 `mapstructure:"min_similarity"`
	IndexFile     string  `mapstructure:"index_file"`
	VectorsDir    string  `mapstructure:"vectors_dir"`
	EagerLoad     bool    `mapstructure:"eager_load"`
}

type SupabaseConfig struct {
	URL           string        `mapstructure:"url"`
	ServiceKey    string        `mapstructure:"service_key"`
	MatchFunction string        `mapstructure:"match_function"`
	Table         string        `mapstructure:"table"`
	Threshold     float32       `mapstructure:"threshold"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type AnalyticsConfig struct {
	Sink      string        `mapstructure:"sink"` // none, posthog or redis
	QueueSize int           `mapstructure:"queue_size"`
	PostHog   PostHogConfig `mapstructure:"posthog"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

type PostHogConfig struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"api_key"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

type PersonaConfig struct {
	File string `mapstructure:"file"`
}

type BotConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	WSURL           string `mapstructure:"ws_url"`
	AccessToken     string `mapstructure:"access_token"`
	OwnerID         int64  `mapstructure:"owner_id"`
	MaxContextTurns int    `mapstructure:"max_context_turns"`
	SessionsDir     string `mapstructure:"sessions_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")

	v.SetDefault("provider.name", "openai")
	v.SetDefault("provider.max_retries", 2)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("gemini.chat_models", []string{"gemini-2.5-flash", "gemini-2.0-flash"})
	v.SetDefault("gemini.rpm_limit", 15)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.dimensions", 1536)

	v.SetDefault("chat.name", "Youssef")
	v.SetDefault("chat.max_tokens", 150)
	v.SetDefault("chat.temperature", 0.3)
	v.SetDefault("chat.timeout", 30*time.Second)
	v.SetDefault("chat.stream_timeout", 2*time.Minute)

	v.SetDefault("rag.enabled", true)
	v.SetDefault("rag.retriever", "memory")
	v.SetDefault("rag.top_k", 3)
	v.SetDefault("rag.min_similarity", 0.2)
	v.SetDefault("rag.index_file", "data/passages.db")
	v.SetDefault("rag.vectors_dir", "data/vectors")

	v.SetDefault("supabase.match_function", "match_documents")
	v.SetDefault("supabase.table", "documents")
	v.SetDefault("supabase.threshold", 0.2)
	v.SetDefault("supabase.timeout", 10*time.Second)

	v.SetDefault("analytics.sink", "none")
	v.SetDefault("analytics.queue_size", 256)
	v.SetDefault("analytics.posthog.host", "https://us.i.posthog.com")
	v.SetDefault("analytics.redis.addr", "localhost:6379")
	v.SetDefault("analytics.redis.stream", "portfolio:questions")
	v.SetDefault("analytics.redis.max_len", 10000)

	v.SetDefault("persona.file", "configs/persona.json")

	v.SetDefault("bot.max_context_turns", 10)
	v.SetDefault("bot.sessions_dir", "data/sessions")
}

// envOverrides maps the conventional variable names onto config keys.
var envOverrides = map[string]string{
	"OPENAI_API_KEY":            "openai.api_key",
	"OPENROUTER_API_KEY":        "openrouter.api_key",
	"GEMINI_API_KEY":            "gemini.api_key",
	"SUPABASE_URL":              "supabase.url",
	"SUPABASE_SERVICE_ROLE_KEY": "supabase.service_key",
	"POSTHOG_API_KEY":           "analytics.posthog.api_key",
	"USE_RAG":                   "rag.enabled",
	"NAPCAT_ACCESS_TOKEN":       "bot.access_token",
}

// Load reads the YAML file at path. A missing file is not an error: defaults
// and environment variables alone make a usable configuration.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Warn("config file not found, using defaults", "path", path)
	}

	for env, key := range envOverrides {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyProviderDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyProviderDefaults fills chat.model and embedding.model with a model the
// selected provider actually serves.
func (c *Config) applyProviderDefaults() {
	if c.Chat.Model == "" {
		switch c.Provider.Name {
		case "openai":
			c.Chat.Model = "gpt-4.1-nano"
		case "openrouter":
			c.Chat.Model = "openai/gpt-4.1-nano"
		case "gemini":
			if len(c.Gemini.ChatModels) > 0 {
				c.Chat.Model = c.Gemini.ChatModels[0]
			}
		}
	}
	if c.Embedding.Model == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.Model = "text-embedding-3-small"
		case "gemini":
			c.Embedding.Model = "gemini-embedding-001"
		}
	}
}

// servesModel reports whether a model id has the shape the provider accepts:
// gemini-* ids for Gemini, vendor/model ids for OpenRouter, bare ids for OpenAI.
func servesModel(provider, model string) bool {
	gemini := strings.HasPrefix(model, "gemini-")
	switch provider {
	case "gemini":
		return gemini
	case "openrouter":
		return strings.Contains(model, "/")
	case "openai":
		return !gemini && !strings.Contains(model, "/")
	}
	return false
}

// Validate checks that the selected providers have credentials.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return errors.New("openai.api_key is required (set in config or OPENAI_API_KEY env)")
		}
	case "openrouter":
		if c.OpenRouter.APIKey == "" {
			return errors.New("openrouter.api_key is required (set in config or OPENROUTER_API_KEY env)")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return errors.New("gemini.api_key is required (set in config or GEMINI_API_KEY env)")
		}
	default:
		return fmt.Errorf("unknown provider.name %q", c.Provider.Name)
	}

	if c.Chat.Model == "" {
		return fmt.Errorf("chat.model is required for provider %q", c.Provider.Name)
	}
	for _, m := range append([]string{c.Chat.Model}, c.Chat.AllowedModels...) {
		if !servesModel(c.Provider.Name, m) {
			return fmt.Errorf("model %q is not served by provider %q", m, c.Provider.Name)
		}
	}

	for _, o := range c.Server.AllowedOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("server.allowed_origins: %q must be \"*\" or start with http:// or https://", o)
		}
	}

	if c.RAG.Enabled {
		switch c.Embedding.Provider {
		case "openai":
			if c.OpenAI.APIKey == "" {
				return errors.New("openai.api_key is required for openai embeddings")
			}
		case "gemini":
			if c.Gemini.APIKey == "" {
				return errors.New("gemini.api_key is required for gemini embeddings")
			}
		default:
			return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
		}

		switch c.RAG.Retriever {
		case "memory", "chromem":
		case "supabase":
			if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
				return errors.New("supabase.url and supabase.service_key are required for the supabase retriever")
			}
		default:
			return fmt.Errorf("unknown rag.retriever %q", c.RAG.Retriever)
		}
	}

	switch c.Analytics.Sink {
	case "none", "redis":
	case "posthog":
		if c.Analytics.PostHog.APIKey == "" {
			return errors.New("analytics.posthog.api_key is required (set in config or POSTHOG_API_KEY env)")
		}
	default:
		return fmt.Errorf("unknown analytics.sink %q", c.Analytics.Sink)
	}
	return nil
}

// LogLevel parses log.level, falling back to info.
func (c *Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Prices is the default price table extended by the pricing section.
func (c *Config) Prices() ai.PriceTable {
	overrides := make(map[string]ai.Price, len(c.Pricing))
	for _, p := range c.Pricing {
		overrides[p.Model] = ai.Price{Input: p.Input, Output: p.Output}
	}
	return ai.DefaultPrices().With(overrides)
}
