// Package main is the entry point for the linkarchive server: the RSS/
// submission ingest, the archive worker pool, and the query API run in one
// process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/XertroV/linkarchive/internal/archiver"
	"github.com/XertroV/linkarchive/internal/config"
	"github.com/XertroV/linkarchive/internal/database"
	"github.com/XertroV/linkarchive/internal/http/handlers"
	"github.com/XertroV/linkarchive/internal/logging"
	"github.com/XertroV/linkarchive/internal/repository"
	"github.com/XertroV/linkarchive/internal/service"
	"github.com/XertroV/linkarchive/internal/storage"
	"github.com/XertroV/linkarchive/internal/version"
	"github.com/XertroV/linkarchive/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting linkarchive",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if err := database.VerifyWritable(db); err != nil {
		logger.Error("database is not writable", "error", err)
		os.Exit(1)
	}

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	repos := repository.NewRepositories(db)

	// Repair state left over from an unclean shutdown before anything runs.
	if err := service.RunRecovery(context.Background(), cfg, repos, logger); err != nil {
		logger.Error("startup recovery failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize object store", "error", err)
		os.Exit(1)
	}

	registry := archiver.NewRegistry(cfg.FetchTimeout, cfg.CookieFiles)
	archiveSvc := service.NewArchiveService(cfg, repos, registry, store, logger)
	submissionSvc := service.NewSubmissionService(cfg, repos, archiveSvc, logger)

	ctx, cancel := context.WithCancel(context.Background())

	pool := worker.NewPool(cfg, archiveSvc, logger)
	pool.Start(ctx)

	submissionSvc.Start(ctx)

	var feedSvc *service.FeedService
	if cfg.FeedEnabled {
		feedSvc = service.NewFeedService(cfg, repos, archiveSvc, logger)
		feedSvc.Start(ctx)
		logger.Info("feed polling enabled", "url", cfg.FeedURL, "interval", cfg.FeedPollInterval.String())
	}

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(handlers.ClientIPMiddleware)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Request size limit; submissions are a URL, not a payload.
	router.Use(middleware.RequestSize(64 * 1024))

	// Coarse per-IP limit ahead of the submission service's own accounting.
	router.Use(httprate.LimitByIP(120, time.Minute))

	humaConfig := huma.DefaultConfig("Link Archive API", v.Version)
	humaConfig.Info.Description = "Archives outbound forum links: pages, videos, images and threads, with content-addressed dedup."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	api := humachi.New(router, humaConfig)

	// Probes stay out of the docs.
	hiddenConfig := huma.DefaultConfig("Link Archive API", v.Version)
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)

	huma.Get(api, "/api/v1/health", handlers.HealthCheck)
	huma.Get(hiddenAPI, "/healthz", handlers.Livez)
	huma.Get(hiddenAPI, "/readyz", handlers.NewReadyzHandler(db).Readyz)

	submissionHandler := handlers.NewSubmissionHandler(submissionSvc)
	huma.Post(api, "/api/v1/submissions", submissionHandler.Submit)
	huma.Get(api, "/api/v1/submissions/{id}", submissionHandler.GetSubmission)

	archiveHandler := handlers.NewArchiveHandler(archiveSvc)
	huma.Get(api, "/api/v1/archives", archiveHandler.ListArchives)
	huma.Get(api, "/api/v1/archives/search", archiveHandler.SearchArchives)
	huma.Get(api, "/api/v1/archives/stats", archiveHandler.GetStats)
	huma.Get(api, "/api/v1/archives/{id}", archiveHandler.GetArchive)
	huma.Post(api, "/api/v1/archives/{id}/retry", archiveHandler.RetryArchive)
	huma.Post(api, "/api/v1/archives/{id}/rearchive", archiveHandler.Rearchive)
	huma.Delete(api, "/api/v1/archives/{id}", archiveHandler.DeleteArchive)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down")

		cancel()
		pool.Stop()
		submissionSvc.Stop()
		if feedSvc != nil {
			feedSvc.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
