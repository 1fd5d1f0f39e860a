package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/config"
	dbRedis "github.com/dockeep/dockeep/internal/db/redis"
	logpkg "github.com/dockeep/dockeep/internal/logger"
	"github.com/dockeep/dockeep/internal/metrics"
	catalogrepo "github.com/dockeep/dockeep/internal/repository/catalog"
	documentrepo "github.com/dockeep/dockeep/internal/repository/document"
	proclogrepo "github.com/dockeep/dockeep/internal/repository/proclog"
	"github.com/dockeep/dockeep/internal/retry"
	openaiTransport "github.com/dockeep/dockeep/internal/transport/openai"
	"github.com/dockeep/dockeep/internal/transport/pdftext"
	ingestuc "github.com/dockeep/dockeep/internal/usecase/ingest"
	searchuc "github.com/dockeep/dockeep/internal/usecase/search"
	"github.com/dockeep/dockeep/internal/vectorstore"
	"github.com/dockeep/dockeep/internal/version"
	"github.com/dockeep/dockeep/internal/watcher"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting dockeep",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("ops_port", cfg.Ops.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("inbox", cfg.Ingest.InboxDir),
		zap.Bool("ai_enabled", cfg.AI.Enabled()),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()
	metrics.RegisterAIMetrics()
	metrics.RegisterSearchMetrics()

	docRepo := documentrepo.New(store, cfg.Database.KeyPrefix)
	catRepo := catalogrepo.New(store, cfg.Database.KeyPrefix)
	logRepo := proclogrepo.New(store, cfg.Database.KeyPrefix)

	vectors := vectorstore.New(store, vectorstore.Config{
		IndexName:       cfg.Vector.IndexName,
		KeyPrefix:       cfg.Database.KeyPrefix,
		Dimensions:      cfg.AI.EmbeddingDimensions,
		HNSWM:           cfg.Vector.HNSWM,
		HNSWEFConstruct: cfg.Vector.HNSWEFConstruct,
	})

	// Pass nil interface (not typed nil pointer!) when AI is not configured.
	var ingestAI ingestuc.AIProvider
	var searchAI searchuc.AIProvider
	if cfg.AI.Enabled() {
		aiClient, err := openaiTransport.New(&openaiTransport.Config{
			APIKey:          cfg.AI.APIKey,
			BaseURL:         cfg.AI.BaseURL,
			ChatModel:       cfg.AI.ChatModel,
			EmbeddingModel:  cfg.AI.EmbeddingModel,
			Dimensions:      cfg.AI.EmbeddingDimensions,
			MaxConcurrent:   cfg.AI.MaxConcurrent,
			MinCallInterval: time.Duration(cfg.AI.MinCallIntervalMS) * time.Millisecond,
			Retry: retry.Policy{
				MaxAttempts: cfg.AI.MaxRetries,
				BaseDelay:   time.Duration(cfg.AI.RetryBaseDelaySec) * time.Second,
				MaxDelay:    time.Duration(cfg.AI.RetryMaxDelaySec) * time.Second,
				CallTimeout: time.Duration(cfg.AI.CallTimeoutSec) * time.Second,
			},
			Logger: logger,
		})
		if err != nil {
			logger.Fatal("Failed to create AI client", zap.Error(err))
		}
		defer aiClient.Close()
		ingestAI = aiClient
		searchAI = aiClient
		logger.Info("AI provider configured",
			zap.String("chat_model", cfg.AI.ChatModel),
			zap.String("embedding_model", cfg.AI.EmbeddingModel),
			zap.Int("dimensions", cfg.AI.EmbeddingDimensions),
		)
	} else {
		logger.Warn("No AI provider configured, metadata extraction and semantic search are disabled")
	}

	extractor := pdftext.New(logger)

	pipeline := ingestuc.New(ingestuc.Config{
		ArchiveDir:        cfg.Ingest.ArchiveDir,
		DuplicatesDir:     cfg.Ingest.DuplicatesDir,
		MaxFileSizeBytes:  int64(cfg.Ingest.MaxFileSizeMB) << 20,
		AllowedExtensions: cfg.Ingest.AllowedExtensions,
	}, docRepo, catRepo, logRepo, vectors, extractor, ingestAI, logger)

	engine := searchuc.New(searchuc.Config{
		DefaultPageSize:     cfg.Search.DefaultPageSize,
		MaxPageSize:         cfg.Search.MaxPageSize,
		VectorLimit:         cfg.Search.VectorLimit,
		MaxQueryVariants:    cfg.Search.MaxQueryVariants,
		MaxFullTextVariants: cfg.Search.MaxFullTextVariants,
		Budget:              time.Duration(cfg.Search.BudgetSec) * time.Second,
		BreakerThreshold:    cfg.Search.BreakerThreshold,
		BreakerCooldown:     time.Duration(cfg.Search.BreakerCooldownSec) * time.Second,
		MaxRAGDocuments:     cfg.Search.MaxRAGDocuments,
	}, docRepo, catRepo, vectors, searchAI, logger)

	watch, err := watcher.New(watcher.Config{
		StagingDir:        cfg.Ingest.InboxDir,
		Debounce:          time.Duration(cfg.Ingest.WatchDebounceSec) * time.Second,
		AllowedExtensions: cfg.Ingest.AllowedExtensions,
		Workers:           cfg.Ingest.Workers,
	}, pipeline, logger)
	if err != nil {
		logger.Fatal("Failed to create inbox watcher", zap.Error(err))
	}
	if err := watch.Start(ctx); err != nil {
		logger.Fatal("Failed to start inbox watcher", zap.Error(err))
	}
	defer watch.Close()

	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Get("/healthz", healthHandler(store))
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/debug", debugRoutes(engine, pipeline, watch, logger))

	addr := fmt.Sprintf(":%d", cfg.Ops.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Ops.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Ops.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting ops HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Ops HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Ops.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Stopped gracefully")
}

// healthHandler reports liveness plus database connectivity.
func healthHandler(store *dbRedis.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := store.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"version": version.Version,
		})
	}
}
