package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/activities"
	"github.com/aesop-bio/aesop/internal/chat"
	"github.com/aesop-bio/aesop/internal/circuitbreaker"
	"github.com/aesop-bio/aesop/internal/config"
	"github.com/aesop-bio/aesop/internal/contextqa"
	"github.com/aesop-bio/aesop/internal/critic"
	"github.com/aesop-bio/aesop/internal/embeddings"
	"github.com/aesop-bio/aesop/internal/health"
	"github.com/aesop-bio/aesop/internal/httpapi"
	"github.com/aesop-bio/aesop/internal/intent"
	"github.com/aesop-bio/aesop/internal/llm"
	"github.com/aesop-bio/aesop/internal/memory"
	"github.com/aesop-bio/aesop/internal/orchestrator"
	"github.com/aesop-bio/aesop/internal/pubmed"
	"github.com/aesop-bio/aesop/internal/scout"
	"github.com/aesop-bio/aesop/internal/session"
	"github.com/aesop-bio/aesop/internal/synthesis"
	temporaladapter "github.com/aesop-bio/aesop/internal/temporal"
	"github.com/aesop-bio/aesop/internal/tracing"
	"github.com/aesop-bio/aesop/internal/utility"
	"github.com/aesop-bio/aesop/internal/workflows"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	configPath := os.Getenv("AESOP_CONFIG")
	if configPath == "" {
		configPath = "config/aesop.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("tracing initialization failed, continuing without", zap.Error(err))
	}
	circuitbreaker.StartMetricsCollection()

	// Shared stores.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	sessions := session.NewManager(redisClient, cfg.Pipeline.SessionTTL(), logger)

	pg, err := sqlx.Open("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	pg.SetMaxOpenConns(10)
	pg.SetMaxIdleConns(5)
	pg.SetConnMaxLifetime(30 * time.Minute)

	// External clients.
	limits, err := llm.LoadRateLimits(cfg.LLM.RateLimitsPath)
	if err != nil {
		logger.Warn("rate limits load failed, using defaults", zap.Error(err))
	}
	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Provider:    cfg.LLM.Provider,
		Timeout:     cfg.LLM.Timeout(),
		MaxAttempts: cfg.LLM.MaxAttempts,
		BaseDelay:   time.Second,
	}, limits, logger)

	embedCache := embeddings.NewRedisCache(redisClient,
		circuitbreaker.NewRedisWrapper(redisClient, "embeddings-redis", "embeddings", logger))
	embedder := embeddings.NewService(embeddings.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout(),
	}, embedCache, logger)

	pubmedClient := pubmed.NewClient(pubmed.Config{
		BaseURL: cfg.PubMed.BaseURL,
		APIKey:  cfg.PubMed.APIKey,
		Timeout: cfg.PubMed.Timeout(),
	}, logger)

	// Pipeline components.
	memStore := memory.NewStore(pg, embedder, logger)
	acts := activities.New(
		sessions,
		memStore,
		embedder,
		intent.NewClassifier(llmClient, logger),
		scout.New(llmClient, pubmedClient, cfg.PubMed.SearchRetMax, cfg.PubMed.FetchBatchSize, logger),
		critic.NewGrader(llmClient, logger),
		synthesis.New(llmClient, logger),
		contextqa.New(llmClient, logger),
		chat.New(llmClient, logger),
		utility.New(llmClient, logger),
		logger,
	)

	// Temporal worker.
	tClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporaladapter.NewZapAdapter(logger),
	})
	if err != nil {
		logger.Fatal("failed to connect to temporal", zap.Error(err))
	}
	defer tClient.Close()

	wk := worker.New(tClient, cfg.Temporal.TaskQueue, worker.Options{})
	wk.RegisterWorkflow(workflows.PipelineWorkflow)
	wk.RegisterActivity(acts)
	if err := wk.Start(); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}
	defer wk.Stop()

	// HTTP surfaces: public API plus an admin port for metrics.
	svc := orchestrator.NewService(tClient, cfg.Temporal.TaskQueue, logger)
	api := httpapi.NewServer(svc, sessions, logger)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      api.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}

	monitor := health.NewMonitor(logger)
	monitor.Register("redis", sessions.Ping)
	monitor.Register("postgres", pg.PingContext)
	monitor.Register("temporal", func(ctx context.Context) error {
		_, err := tClient.CheckHealth(ctx, &client.CheckHealthRequest{})
		return err
	})

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report := monitor.Report(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !report.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
	adminServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.AdminPort),
		Handler: adminMux,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("api server listening", zap.Int("port", cfg.HTTP.Port))
		errCh <- apiServer.ListenAndServe()
	}()
	go func() {
		logger.Info("admin server listening", zap.Int("port", cfg.HTTP.AdminPort))
		errCh <- adminServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
}
