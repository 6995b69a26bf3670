package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskio/ticket-classifier/internal/api"
	"github.com/taskio/ticket-classifier/internal/cache"
	"github.com/taskio/ticket-classifier/internal/config"
	"github.com/taskio/ticket-classifier/internal/engine"
	"github.com/taskio/ticket-classifier/internal/llm"
	"github.com/taskio/ticket-classifier/internal/metrics"
	"github.com/taskio/ticket-classifier/internal/patterns"
	"github.com/taskio/ticket-classifier/internal/repo"
	"github.com/taskio/ticket-classifier/internal/services"
	"github.com/taskio/ticket-classifier/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting ticket-classifier", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		if cfg.Cache.Addr == "" {
			cacheProvider = cache.NewMemoryProvider()
			logger.Info("using in-process result cache")
		} else {
			provider, err := cache.NewRedisProvider(cache.RedisConfig{
				Addr:         cfg.Cache.Addr,
				Username:     cfg.Cache.Username,
				Password:     cfg.Cache.Password,
				DB:           cfg.Cache.DB,
				DialTimeout:  cfg.Cache.DialTimeout,
				ReadTimeout:  cfg.Cache.ReadTimeout,
				WriteTimeout: cfg.Cache.WriteTimeout,
				MaxRetries:   cfg.Cache.MaxRetries,
				TLS:          cfg.Cache.TLS,
			})
			if err != nil {
				logger.Warn("redis cache unavailable, degrading to no cache", slog.Any("error", err))
			} else {
				cacheProvider = provider
				defer provider.Close()
			}
		}
	}
	resultCache := cache.NewResultCache(cacheProvider, cfg.Cache.ResultTTL, logger)

	store, err := repo.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open ticket store", slog.Any("error", utils.NewAppError("boot", "open sqlite store", err)))
		os.Exit(1)
	}
	defer store.Close()

	var index *repo.ChromaIndex
	if cfg.Chroma.Endpoint != "" {
		index = repo.NewChromaIndex(cfg.Chroma.Endpoint, cfg.Chroma.Collection, cfg.Chroma.Timeout, logger)
	} else {
		logger.Warn("no chroma endpoint configured, similarity retrieval disabled")
	}

	var classifier engine.Classifier
	if cfg.LLM.APIKey != "" {
		classifier = llm.NewAnthropicClassifier(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout, logger)
	} else {
		logger.Warn("no API key configured, all requests take the keyword fallback path")
	}

	fallback, err := engine.NewKeywordClassifier(cfg.Fallback.KeywordsPath, logger)
	if err != nil {
		logger.Error("failed to load keyword rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	var pipelineIndex engine.SimilarityIndex
	if index != nil {
		pipelineIndex = index
	}
	pipeline := engine.NewPipeline(logger, resultCache, pipelineIndex, classifier, fallback, cfg.Chroma.TopK)

	miner := patterns.NewMiner(logger, patterns.SourceFunc(store.FeedbackEntries), 200)

	var serviceIndex services.SimilarityIndex
	if index != nil {
		serviceIndex = index
	}
	ticketService := services.NewTicketService(logger, pipeline, store, serviceIndex, resultCache, miner)

	server := api.NewServer(cfg.Server, api.NewHandlers(ticketService, logger), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := server.Stop(context.Background()); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("ticket-classifier stopped")
}
