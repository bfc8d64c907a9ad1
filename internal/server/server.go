package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/touchlinehq/touchline/config"
	"github.com/touchlinehq/touchline/internal/feeds"
	"github.com/touchlinehq/touchline/internal/index"
	"github.com/touchlinehq/touchline/internal/ingest"
	"github.com/touchlinehq/touchline/internal/rag"
	"github.com/touchlinehq/touchline/internal/stats"
	"github.com/touchlinehq/touchline/internal/telemetry"
	"github.com/touchlinehq/touchline/provider/openai"
	"github.com/touchlinehq/touchline/session"
	"github.com/touchlinehq/touchline/session/inmemory"
	redisstore "github.com/touchlinehq/touchline/session/redis"
)

// Server bundles the HTTP transport with the services behind it.
type Server struct {
	echo      *echo.Echo
	chat      ChatService
	pipeline  IngestService
	index     IndexStatus
	auth      *AuthHandler
	scheduler *Scheduler
	logger    *log.Logger
}

// New assembles the echo instance and routes around the given services.
func New(chat ChatService, pipeline IngestService, idx IndexStatus,
	auth *AuthHandler, scheduler *Scheduler, metricsEnabled bool) *Server {
	s := &Server{
		chat:      chat,
		pipeline:  pipeline,
		index:     idx,
		auth:      auth,
		scheduler: scheduler,
		logger:    log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	// Health and login stay reachable without a token.
	e.GET("/health", s.handleHealth)
	if auth != nil && auth.Enabled() {
		e.POST("/login", auth.Login)
	}
	if metricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	api := e.Group("")
	if auth != nil {
		api.Use(auth.Middleware())
	}
	api.POST("/chat", s.handleChat)
	api.POST("/ingest", s.handleIngest)
	api.GET("/status", s.handleStatus)

	s.echo = e
	return s
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run wires the full service from configuration and serves until SIGINT or
// SIGTERM, then drains in-flight requests.
func Run(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[TOUCHLINE] ", log.LstdFlags)
	logger.Printf("starting up...")

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	}

	idx := index.NewClient(cfg.Index.BaseURL, cfg.Index.Class, cfg.Index.Timeout, cfg.Index.MaxRetries)
	ctx := context.Background()
	if !idx.Ready(ctx) {
		return fmt.Errorf("vector index at %s is not ready", cfg.Index.BaseURL)
	}
	if err := idx.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring index schema: %w", err)
	}

	llm := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.CompletionModel,
		cfg.LLM.EmbeddingModel, cfg.LLM.Temperature, cfg.LLM.MaxTokens, cfg.LLM.Timeout)

	dedup := ingest.NewDedupStore()
	dedup.Warm(ctx, idx)

	sources := cfg.Feeds.Sources
	if len(sources) == 0 {
		sources = feeds.DefaultSources
	}
	fetcher := feeds.NewFetcher(sources, cfg.Ingest.SummaryCap, cfg.Feeds.Timeout)
	pipeline := ingest.NewPipeline(fetcher, llm, idx, dedup, metrics)

	// Seed the index before accepting traffic so first chats have context.
	logger.Printf("seeding index with latest news...")
	if _, err := pipeline.Run(ctx, false); err != nil {
		logger.Printf("seed ingestion failed, continuing with existing data: %v", err)
	}

	var history session.Store
	switch cfg.Session.Store {
	case "redis":
		history = redisstore.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Chat.MaxHistoryTurns, cfg.Session.TTL)
	default:
		history = inmemory.New(cfg.Chat.MaxHistoryTurns)
	}

	var dispatcher *rag.ToolDispatcher
	if cfg.Chat.ToolsEnabled && cfg.Stats.APIKey != "" {
		statsClient := stats.NewClient(cfg.Stats.APIKey, cfg.Stats.BaseURL,
			cfg.Stats.CacheTTL, cfg.Stats.Timeout)
		dispatcher = rag.NewToolDispatcher(statsClient, metrics)
		logger.Printf("live stats enabled (cache TTL %s)", cfg.Stats.CacheTTL)
	}

	retriever := rag.NewRetriever(llm, idx)
	engine := rag.NewEngine(retriever, llm, dispatcher, history, metrics, cfg.Chat.MaxContextDocs)

	scheduler, err := NewScheduler(pipeline, cfg.Ingest.CronSpec)
	if err != nil {
		return fmt.Errorf("parsing ingest.cron_spec: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	auth, err := NewAuthHandler(cfg.Server.Password, cfg.Server.JWTSecret)
	if err != nil {
		return err
	}

	srv := New(engine, pipeline, idx, auth, scheduler, cfg.Telemetry.Enabled)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.echo.Start(cfg.Server.Address)
	}()
	logger.Printf("listening on %s, ingestion on %q", cfg.Server.Address, cfg.Ingest.CronSpec)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.echo.Shutdown(shutdownCtx)
}
