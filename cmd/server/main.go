// Command server runs the multi-channel assistant: webhook ingestion over
// HTTP, a durable inbound queue with per-user serialized workers, and the
// conversation engine on top of SQLite.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/psousaj/nexo-ai-sub000/internal/agent"
	"github.com/psousaj/nexo-ai-sub000/internal/config"
	"github.com/psousaj/nexo-ai-sub000/internal/enrich"
	httpapi "github.com/psousaj/nexo-ai-sub000/internal/http"
	"github.com/psousaj/nexo-ai-sub000/internal/intent"
	"github.com/psousaj/nexo-ai-sub000/internal/llm"
	"github.com/psousaj/nexo-ai-sub000/internal/observability"
	"github.com/psousaj/nexo-ai-sub000/internal/provider"
	"github.com/psousaj/nexo-ai-sub000/internal/queue"
	"github.com/psousaj/nexo-ai-sub000/internal/repo"
	"github.com/psousaj/nexo-ai-sub000/internal/sysutil"
	"github.com/psousaj/nexo-ai-sub000/internal/tools"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	providers := buildProviders(cfg)
	if len(providers.Names()) == 0 {
		log.Warn().Msg("no messaging provider configured; webhooks will 404")
	}

	llmClient := buildLLM(ctx, cfg.LLM)
	classifier := intent.NewClassifier(nil, llmClient)
	classifier.ConfidenceGate = cfg.Agent.ConfidenceGate

	var searcher enrich.Searcher = enrich.Noop{}
	if cfg.TMDBAPIKey != "" {
		searcher = enrich.NewTMDB(cfg.TMDBAPIKey, cfg.TMDBBaseURL)
	}

	exec := tools.NewExecutor(db, tools.NewRegistry(), searcher, cfg.Agent.CandidateCap)
	engine := agent.New(db, providers, classifier, llmClient, exec, cfg.Agent, cfg.AgentID)
	defer engine.Closer().Stop()

	q := buildQueue(ctx, cfg.Queue)
	defer q.Close()

	dispatcher := queue.NewDispatcher(q, cfg.Queue.Workers, func(ctx context.Context, j queue.Job) {
		hctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := engine.ProcessMessage(hctx, j.Message); err != nil {
			log.Error().Err(err).Str("provider", j.Message.Provider).Msg("message processing failed")
		}
	})
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(ctx)
	}()

	router := gin.New()
	httpapi.RegisterRoutes(router, providers, q, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	select {
	case <-dispatcherDone:
	case <-sctx.Done():
		log.Warn().Msg("dispatcher drain timed out")
	}
	log.Info().Msg("bye")
}

// buildProviders registers every channel that has credentials configured.
func buildProviders(cfg config.Config) *provider.Registry {
	reg := provider.NewRegistry()
	if cfg.Telegram.BotToken != "" {
		reg.Register(provider.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.WebhookSecret, cfg.Telegram.BotUsername))
	}
	if cfg.WhatsApp.AccessToken != "" {
		reg.Register(provider.NewWhatsApp(cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.AppSecret))
	}
	if cfg.Evolution.BaseURL != "" {
		reg.Register(provider.NewEvolution(cfg.Evolution.BaseURL, cfg.Evolution.APIKey, cfg.Evolution.Instance))
	}
	if cfg.Discord.BotToken != "" {
		reg.Register(provider.NewDiscord(cfg.Discord.BotToken, cfg.Discord.PublicKey, cfg.Discord.BotUserID))
	}
	log.Info().Strs("providers", reg.Names()).Msg("messaging providers registered")
	return reg
}

// buildLLM prefers the OpenAI-compatible gateway, falls back to Gemini, and
// degrades to the rules-only stub when neither is configured.
func buildLLM(ctx context.Context, cfg config.LLMConfig) llm.Client {
	if cfg.GatewayURL != "" {
		log.Info().Str("model", cfg.GatewayModel).Msg("using gateway LLM backend")
		return llm.NewGateway(cfg.GatewayURL, cfg.GatewayKey, cfg.GatewayModel, cfg.Timeout)
	}
	if cfg.GeminiAPIKey != "" {
		g, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Error().Err(err).Msg("gemini init failed; running without LLM")
			return llm.Unavailable{}
		}
		log.Info().Str("model", cfg.GeminiModel).Msg("using gemini LLM backend")
		return g
	}
	log.Warn().Msg("no LLM backend configured; intent falls back to rules")
	return llm.Unavailable{}
}

// buildQueue uses Redis when configured, the in-process queue otherwise.
func buildQueue(ctx context.Context, cfg config.QueueConfig) queue.Queue {
	if cfg.RedisAddr == "" {
		log.Info().Msg("using in-process queue")
		return queue.NewMemory(1024)
	}
	q, err := queue.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StreamKey)
	if err != nil {
		log.Error().Err(err).Msg("redis unavailable; using in-process queue")
		return queue.NewMemory(1024)
	}
	log.Info().Str("addr", cfg.RedisAddr).Str("key", cfg.StreamKey).Msg("using redis queue")
	return q
}
