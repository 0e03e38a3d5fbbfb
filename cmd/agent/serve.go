package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/Samad191/agent/internal/classify"
	"github.com/Samad191/agent/internal/config"
	"github.com/Samad191/agent/internal/engine"
	"github.com/Samad191/agent/internal/gateway"
	"github.com/Samad191/agent/internal/gateway/httpapi"
	"github.com/Samad191/agent/internal/gateway/slack"
	"github.com/Samad191/agent/internal/history"
	"github.com/Samad191/agent/internal/llm/openai"
	"github.com/Samad191/agent/internal/observability"
	"github.com/Samad191/agent/internal/ratelimit"
	"github.com/Samad191/agent/internal/search"
	"github.com/Samad191/agent/internal/vectorstore"
)

var (
	serveConfigPath string
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (conversation endpoints and Slack events)",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `agent --config path` and `agent serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", os.Getenv("AGENT_CONFIG"), "path to config file")
		cmd.Flags().IntVar(&servePort, "port", 0, "override HTTP listen port")
	}
}

// runServe wires the engine and starts the HTTP gateway.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	logger.Info("starting", slog.Int("port", cfg.Server.ListenPort()))

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()

	var engineMetrics *engine.Metrics
	var searchMetrics *search.Metrics
	if obs != nil && obs.Metrics != nil {
		engineMetrics = engine.NewMetrics(obs.Metrics.Registry)
		searchMetrics = search.NewMetrics(obs.Metrics.Registry)
	}

	// Completion backend.
	var providerOpts []openai.Option
	if cfg.Providers.OpenAI.BaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(cfg.Providers.OpenAI.BaseURL))
	}
	provider := openai.NewClient(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.ModelName(), logger, providerOpts...)

	// Conversation history with optional idle-thread eviction.
	hist := history.NewInMemoryStore()
	if cfg.History.EvictionSchedule != "" && cfg.History.IdleTTL() > 0 {
		sweeper, err := history.NewSweeper(hist, history.SweeperConfig{
			Schedule: cfg.History.EvictionSchedule,
			IdleTTL:  cfg.History.IdleTTL(),
		}, logger)
		if err != nil {
			return fmt.Errorf("configuring history sweeper: %w", err)
		}
		cancelSweeper := sweeper.Start(ctx)
		defer cancelSweeper()
	}

	// Search provider and reducer.
	searchOpts := []search.SerpAPIOption{search.WithSerpAPIMetrics(searchMetrics)}
	if cfg.Search.SerpAPI.BaseURL != "" {
		searchOpts = append(searchOpts, search.WithSerpAPIBaseURL(cfg.Search.SerpAPI.BaseURL))
	}
	searcher := search.NewSerpAPIClient(cfg.Search.SerpAPI.APIKey, logger, searchOpts...)
	reducer := search.NewReducer(logger, searchMetrics)

	// Conversation engine.
	eng := engine.New(
		hist,
		classify.New(provider, logger),
		searcher,
		reducer,
		provider,
		engine.Config{HistoryBudget: cfg.History.MessageBudget()},
		engineMetrics,
		logger,
	)

	// Vector store startup probe; failure is logged, never fatal.
	if cfg.VectorStore != nil {
		qdrant := vectorstore.NewQdrantClient(cfg.VectorStore.Endpoint(), cfg.VectorStore.APIKey, logger)
		qdrant.Probe(ctx)
		if obs != nil && obs.Health != nil {
			obs.Health.AddCheck("vectorstore", qdrant.Ping)
		}
	}

	// Rate limiter shared across transports.
	var limiter *ratelimit.Limiter
	if cfg.RateLimit != nil {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.RateLimit.BurstSize,
		})
	}

	// HTTP gateway.
	httpCfg := httpapi.Config{
		ListenAddr: fmt.Sprintf(":%d", cfg.Server.ListenPort()),
	}
	if obs != nil {
		httpCfg.Metrics = obs.Metrics
		httpCfg.HealthChecker = obs.Health
		if obs.Metrics != nil {
			httpCfg.MetricsRegistry = obs.Metrics.Registry
		}
		var tracer trace.Tracer
		if obs.Tracer != nil {
			tracer = obs.Tracer.Tracer()
		}
		httpCfg.Tracer = tracer
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.MetricsPath()
		}
	}
	httpGW := httpapi.NewGateway(httpCfg, eng, limiter, logger)

	// Slack events handler mounted on the same listener.
	if cfg.Slack != nil && cfg.Slack.BotToken != "" {
		slackHandler := slack.NewHandler(slack.Config{
			SigningSecret: cfg.Slack.SigningSecret,
			BotToken:      cfg.Slack.BotToken,
		}, eng, limiter, logger)
		httpGW.WithHandler("POST", "/slack/events", slackHandler)
		logger.Info("slack events handler mounted", slog.String("path", "/slack/events"))
	}

	gateways := []gateway.Gateway{httpGW}

	// Run until signal or first gateway error.
	errs := make(chan error, len(gateways))
	for _, gw := range gateways {
		go func(g gateway.Gateway) {
			errs <- g.Start(ctx)
		}(gw)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := len(gateways) - 1; i >= 0; i-- {
		if err := gateways[i].Stop(shutdownCtx); err != nil {
			logger.Error("stopping gateway", slog.String("error", err.Error()))
		}
	}

	return nil
}
