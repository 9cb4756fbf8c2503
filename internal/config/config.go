// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// provider credentials, LLM backends, queueing, and the orchestration knobs
// of the conversation engine.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// TelegramConfig holds Telegram Bot API credentials.
type TelegramConfig struct {
	BotToken      string // TELEGRAM_BOT_TOKEN
	WebhookSecret string // TELEGRAM_WEBHOOK_SECRET (X-Telegram-Bot-Api-Secret-Token)
	BotUsername   string // TELEGRAM_BOT_USERNAME (mention gating in groups)
}

// WhatsAppConfig holds WhatsApp Cloud API credentials.
type WhatsAppConfig struct {
	AccessToken   string // WHATSAPP_ACCESS_TOKEN
	PhoneNumberID string // WHATSAPP_PHONE_NUMBER_ID
	AppSecret     string // WHATSAPP_APP_SECRET (HMAC-SHA256 signature)
	VerifyToken   string // WHATSAPP_VERIFY_TOKEN (hub.challenge handshake)
}

// EvolutionConfig holds credentials for the Evolution API WhatsApp backend.
type EvolutionConfig struct {
	BaseURL  string // EVOLUTION_BASE_URL
	APIKey   string // EVOLUTION_API_KEY
	Instance string // EVOLUTION_INSTANCE
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken  string // DISCORD_BOT_TOKEN
	PublicKey string // DISCORD_PUBLIC_KEY (ed25519 interaction signatures)
	BotUserID string // DISCORD_BOT_USER_ID (mention gating in guilds)
}

// LLMConfig selects and configures the language model backends.
type LLMConfig struct {
	// Gateway is an OpenAI-compatible chat-completions endpoint
	// (e.g. a Cloudflare AI Gateway route). Used when non-empty.
	GatewayURL   string        // LLM_GATEWAY_URL
	GatewayKey   string        // LLM_GATEWAY_KEY
	GatewayModel string        // LLM_GATEWAY_MODEL
	GeminiAPIKey string        // GEMINI_API_KEY (fallback backend)
	GeminiModel  string        // GEMINI_MODEL
	Timeout      time.Duration // LLM_TIMEOUT
}

// QueueConfig configures the durable inbound queue and worker pool.
type QueueConfig struct {
	RedisAddr     string // REDIS_ADDR ("" disables Redis, in-process queue)
	RedisPassword string // REDIS_PASSWORD
	RedisDB       int    // REDIS_DB
	StreamKey     string // QUEUE_STREAM_KEY
	Workers       int    // QUEUE_WORKERS
}

// AgentConfig holds the orchestration engine knobs.
type AgentConfig struct {
	MaxClarifyAttempts int           // MAX_CLARIFICATION_ATTEMPTS
	ConfidenceGate     float64       // INTENT_CONFIDENCE_GATE (fast-path accept)
	CandidateCap       int           // CANDIDATE_CAP (list size limit)
	AutoCloseDelay     time.Duration // AUTO_CLOSE_DELAY
	StaleAfter         time.Duration // CONVERSATION_STALE_AFTER
	ReprocessLimit     int           // REPROCESS_LIMIT (re-entrant guard)
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string

	// Logging
	LogLevel  string
	LogPretty bool

	// App
	DBPath      string
	AgentID     string  // stable identity used in session keys
	TMDBAPIKey  string  // enrichment lookups
	TMDBBaseURL string
	InsecureDev bool    // WEBHOOK_INSECURE_DEV: accept unsigned webhooks (never in prod)
	RateRPS     float64
	RateBurst   int

	Telegram  TelegramConfig
	WhatsApp  WhatsAppConfig
	Evolution EvolutionConfig
	Discord   DiscordConfig
	LLM       LLMConfig
	Queue     QueueConfig
	Agent     AgentConfig
	OTEL      OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:      getenv("DB_PATH", "nexo.db"),
		AgentID:     getenv("AGENT_ID", "nexo"),
		TMDBAPIKey:  getenv("TMDB_API_KEY", ""),
		TMDBBaseURL: getenv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		InsecureDev: getbool("WEBHOOK_INSECURE_DEV", false),
		RateRPS:     getfloat("RATE_RPS", 20.0),
		RateBurst:   getint("RATE_BURST", 40),

		Telegram: TelegramConfig{
			BotToken:      getenv("TELEGRAM_BOT_TOKEN", ""),
			WebhookSecret: getenv("TELEGRAM_WEBHOOK_SECRET", ""),
			BotUsername:   getenv("TELEGRAM_BOT_USERNAME", ""),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   getenv("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID: getenv("WHATSAPP_PHONE_NUMBER_ID", ""),
			AppSecret:     getenv("WHATSAPP_APP_SECRET", ""),
			VerifyToken:   getenv("WHATSAPP_VERIFY_TOKEN", ""),
		},
		Evolution: EvolutionConfig{
			BaseURL:  getenv("EVOLUTION_BASE_URL", ""),
			APIKey:   getenv("EVOLUTION_API_KEY", ""),
			Instance: getenv("EVOLUTION_INSTANCE", "nexo"),
		},
		Discord: DiscordConfig{
			BotToken:  getenv("DISCORD_BOT_TOKEN", ""),
			PublicKey: getenv("DISCORD_PUBLIC_KEY", ""),
			BotUserID: getenv("DISCORD_BOT_USER_ID", ""),
		},
		LLM: LLMConfig{
			GatewayURL:   getenv("LLM_GATEWAY_URL", ""),
			GatewayKey:   getenv("LLM_GATEWAY_KEY", ""),
			GatewayModel: getenv("LLM_GATEWAY_MODEL", "@cf/meta/llama-3.1-8b-instruct"),
			GeminiAPIKey: getenv("GEMINI_API_KEY", ""),
			GeminiModel:  getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout:      getdur("LLM_TIMEOUT", 30*time.Second),
		},
		Queue: QueueConfig{
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			StreamKey:     getenv("QUEUE_STREAM_KEY", "nexo:inbound"),
			Workers:       getint("QUEUE_WORKERS", 8),
		},
		Agent: AgentConfig{
			MaxClarifyAttempts: getint("MAX_CLARIFICATION_ATTEMPTS", 4),
			ConfidenceGate:     getfloat("INTENT_CONFIDENCE_GATE", 0.85),
			CandidateCap:       getint("CANDIDATE_CAP", 7),
			AutoCloseDelay:     getdur("AUTO_CLOSE_DELAY", 3*time.Minute),
			StaleAfter:         getdur("CONVERSATION_STALE_AFTER", 10*time.Minute),
			ReprocessLimit:     getint("REPROCESS_LIMIT", 3),
		},
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "nexo-assistant"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.AgentID) == "" {
		return cfg, errors.New("AGENT_ID must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Agent.MaxClarifyAttempts < 1 {
		return cfg, errors.New("MAX_CLARIFICATION_ATTEMPTS must be >= 1")
	}
	if cfg.Agent.ConfidenceGate < 0 || cfg.Agent.ConfidenceGate > 1 {
		return cfg, errors.New("INTENT_CONFIDENCE_GATE must be in [0,1]")
	}
	if cfg.Agent.CandidateCap < 1 {
		return cfg, errors.New("CANDIDATE_CAP must be >= 1")
	}
	if cfg.Agent.ReprocessLimit < 1 {
		return cfg, errors.New("REPROCESS_LIMIT must be >= 1")
	}
	if cfg.Queue.Workers < 1 {
		return cfg, errors.New("QUEUE_WORKERS must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
