// budgetd runs the whole pipeline in one process: the HTTP API, the
// background import workers and the extraction capability.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/openorcamento/budgetlens/internal/aggregate"
	"github.com/openorcamento/budgetlens/internal/async"
	"github.com/openorcamento/budgetlens/internal/common"
	"github.com/openorcamento/budgetlens/internal/export"
	"github.com/openorcamento/budgetlens/internal/extract"
	"github.com/openorcamento/budgetlens/internal/llm"
	"github.com/openorcamento/budgetlens/internal/llm/ollama"
	"github.com/openorcamento/budgetlens/internal/llm/openai"
	"github.com/openorcamento/budgetlens/internal/pipeline"
	"github.com/openorcamento/budgetlens/internal/repository"
	"github.com/openorcamento/budgetlens/internal/server"
	"github.com/openorcamento/budgetlens/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("budgetd exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer repository.Close(db, pool, logger)

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		return err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}

	store, err := storage.NewFSStore(cfg.Storage.Path, logger)
	if err != nil {
		return err
	}
	extractor := extract.NewExtractor(extract.Config{Pdftotext: cfg.Storage.Pdftotext}, logger)
	capability := buildCapability(cfg, logger)

	docs := repository.NewDocumentRepository(db, logger)
	pages := repository.NewPageRepository(db, logger)
	secs := repository.NewSectionRepository(db, logger)
	items := repository.NewItemRepository(db, logger)
	jobs := repository.NewJobRepository(db, logger)

	processor := pipeline.NewProcessor(
		logger, store, extractor, capability,
		docs, pages, secs, items, jobs,
		pipeline.RetryPolicy{
			MaxAttempts: cfg.Worker.MaxAttempts,
			BaseDelay:   cfg.Worker.RetryBaseDelay,
		},
		cfg.Worker.SectionConcurrency,
	)
	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithJobTimeout(cfg.Worker.JobTimeout),
	)

	aggregator := aggregate.NewService(items, logger)
	exporter := export.NewService(items, aggregator, logger)

	api := server.New(logger, store, docs, pages, items, jobs,
		aggregator, exporter, queue, cfg.Server.MaxUploadBytes)

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.Router(),
	}
	go func() {
		logger.Info("http listening", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	// Let in-flight imports land in a terminal state before the DB closes.
	queue.Shutdown(shutdownCtx)

	logger.Info("stopped")
	return nil
}

func buildCapability(cfg *common.Config, logger *slog.Logger) llm.ItemExtractor {
	if cfg.LLM.Disabled || cfg.LLM.Provider == "disabled" {
		return llm.NewDisabled(logger)
	}
	switch cfg.LLM.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.OpenAIKey,
			BaseURL:     cfg.LLM.OpenAIBaseURL,
			Model:       cfg.LLM.OpenAIModel,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
	default:
		return ollama.NewClient(ollama.Config{
			BaseURL: cfg.LLM.OllamaBaseURL,
			Model:   cfg.LLM.OllamaModel,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	}
}
