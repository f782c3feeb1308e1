// Package main wires together the scraper service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/omnicore/content-scraper/internal/api"
	"github.com/omnicore/content-scraper/internal/batch"
	"github.com/omnicore/content-scraper/internal/clock/system"
	"github.com/omnicore/content-scraper/internal/config"
	"github.com/omnicore/content-scraper/internal/executor"
	"github.com/omnicore/content-scraper/internal/extract"
	"github.com/omnicore/content-scraper/internal/id/uuid"
	"github.com/omnicore/content-scraper/internal/logging"
	"github.com/omnicore/content-scraper/internal/metrics"
	"github.com/omnicore/content-scraper/internal/orchestrator"
	"github.com/omnicore/content-scraper/internal/scraper"
	"github.com/omnicore/content-scraper/internal/session"
	memorystore "github.com/omnicore/content-scraper/internal/store/memory"
	postgresstore "github.com/omnicore/content-scraper/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	validator := scraper.NewURLValidator(cfg.Security.AllowedDomains)

	var store scraper.JobStore
	if cfg.DB.DSN != "" {
		pgStore, err := postgresstore.NewJobStore(ctx, postgresstore.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
		})
		if err != nil {
			logger.Fatal("connect job store", zap.Error(err))
		}
		defer pgStore.Close()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatal("ensure job store schema", zap.Error(err))
		}
		store = pgStore
		logger.Info("using postgres job store")
	} else {
		store = memorystore.NewJobStore()
		logger.Info("using in-memory job store")
	}

	var engine executor.BrowserEngine
	if cfg.Headless.Enabled {
		browser := session.NewEngine(session.Config{NavigationTimeout: cfg.NavTimeout()})
		defer browser.Close()
		engine = executor.NewChromeEngine(browser)
		logger.Info("headless browser engine ready",
			zap.Duration("nav_timeout", cfg.NavTimeout()))
	} else {
		engine = executor.NewHTTPEngine(executor.HTTPEngineConfig{
			RequestTimeout: cfg.NavTimeout(),
		}, logging.Component(logger, "fetch"))
		logger.Info("plain http engine ready")
	}

	chain := extract.NewChain(logging.Component(logger, "extract"))
	exec := executor.New(engine, validator, chain, executor.Config{
		MaxImages: cfg.Scraper.MaxImages,
		MaxLinks:  cfg.Scraper.MaxLinks,
	}, logging.Component(logger, "executor"))
	runner := batch.NewRunner(exec, batch.Config{
		MaxConcurrent: cfg.Scraper.MaxConcurrent,
	}, logging.Component(logger, "batch"))

	orch := orchestrator.New(store, runner, system.New(), uuid.New(), logging.Component(logger, "orchestrator"))
	defer orch.Close()

	apiServer := api.NewServer(store, orch, validator, metrics.Handler(), cfg, logging.Component(logger, "api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
