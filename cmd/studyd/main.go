package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-study/internal/api/http"
	"github.com/mind-engage/mindengage-study/internal/config"
	"github.com/mind-engage/mindengage-study/internal/db"
	"github.com/mind-engage/mindengage-study/internal/exam"
	"github.com/mind-engage/mindengage-study/internal/genai"
	"github.com/mind-engage/mindengage-study/internal/logging"
	"github.com/mind-engage/mindengage-study/internal/material"
	"github.com/mind-engage/mindengage-study/internal/metrics"
	"github.com/mind-engage/mindengage-study/internal/session"
	"github.com/mind-engage/mindengage-study/internal/storage"
)

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("studyd exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// --- Attempt store ---
	store, dbh, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if dbh != nil {
		defer dbh.Close()
	}

	// --- LLM ---
	factory := genai.NewFactory(genai.ProviderConfig{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
	}, genai.Options{
		RateLimit: cfg.LLMRateLimit,
		Burst:     cfg.LLMBurst,
		Logger:    logger.Named("genai"),
		Observer:  m,
	})
	generators := func(key string) (api.Generator, error) {
		if key == "" {
			return factory.Default()
		}
		return factory.ForKey(key)
	}
	if cfg.LLMAPIKey == "" {
		logger.Warn("LLM_API_KEY not set; sessions need a caller-supplied key", zap.Bool("allow_byok", cfg.AllowBYOK))
	}

	// --- Material cache ---
	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	extractor := material.NewExtractor(blobs, nil, logger.Named("material"))

	issuer := session.NewIssuer(cfg.SessionSecret, cfg.SessionTTL)
	sessions := api.NewSessions(api.SessionOptions{
		Store:      store,
		Generators: generators,
		Issuer:     issuer,
		TTL:        cfg.SessionTTL,
		Timeout:    cfg.GenerationTimeout,
		AllowBYOK:  cfg.AllowBYOK,
		Recorder:   m,
		Gauge:      m,
		Logger:     logger.Named("session"),
	})
	go sessions.RunSweeper(ctx, time.Minute)

	r := api.NewRouter(api.RouterDeps{
		Sessions:       sessions,
		Issuer:         issuer,
		Extractor:      extractor,
		Blobs:          blobs,
		Limits:         api.Limits{DefaultQuestionCount: cfg.DefaultQuestionCount, MaxQuestionCount: cfg.MaxQuestionCount},
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
		Metrics:        m.Handler(),
		Ready: func(ctx context.Context) error {
			if dbh == nil {
				return nil
			}
			return dbh.PingContext(ctx)
		},
		RequestTimeout: cfg.GenerationTimeout + 30*time.Second,
		Logger:         logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("db", cfg.DBDriver),
			zap.String("llm_provider", cfg.LLMProvider),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config) (exam.AttemptStore, *sql.DB, error) {
	if cfg.DBDriver == "memory" {
		return exam.NewMemoryStore(), nil, nil
	}
	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(octx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open failed: %w", err)
	}
	return exam.NewSQLStore(dbh, cfg.StoreKey, cfg.StoreMaxBytes), dbh, nil
}
