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

	"github.com/rpattn/clinicleads/internal/apiclient"
	"github.com/rpattn/clinicleads/internal/archive"
	"github.com/rpattn/clinicleads/internal/config"
	"github.com/rpattn/clinicleads/internal/db"
	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/export"
	"github.com/rpattn/clinicleads/internal/ingestion"
	"github.com/rpattn/clinicleads/internal/logger"
	"github.com/rpattn/clinicleads/internal/middleware"
	"github.com/rpattn/clinicleads/internal/recordcache"
	"github.com/rpattn/clinicleads/internal/repository"
	"github.com/rpattn/clinicleads/internal/submission"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "directory containing config.yaml")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log)
	if cfg.ConfigFile != "" {
		slog.Info("loaded config", "file", cfg.ConfigFile)
	} else {
		slog.Info("no config.yaml found, using defaults and env vars")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var importOpts []ingestion.Option
	if cfg.Database.Enabled {
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		if err := db.RunMigrations(cfg.Database); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		importOpts = append(importOpts, ingestion.WithImportLog(repository.NewImportLogRepository(conn.Pool)))
		slog.Info("import audit log enabled", "host", cfg.Database.Host, "db", cfg.Database.DBName)
	}

	if cfg.Archive.Active() {
		store, err := archive.New(cfg.Archive)
		if err != nil {
			slog.Error("failed to configure upload archive", "error", err)
			os.Exit(1)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			slog.Error("failed to prepare archive bucket", "error", err)
			os.Exit(1)
		}
		importOpts = append(importOpts, ingestion.WithArchive(store))
		slog.Info("upload archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	client := apiclient.NewClient(apiclient.Config{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
	})
	cache := recordcache.New(client,
		recordcache.WithDefaultToken(cfg.API.Token),
		recordcache.WithTTL(cfg.API.CacheTTL),
	)

	strategy, err := submission.NewStrategy(cfg.Import.SubmissionMode, client)
	if err != nil {
		slog.Error("invalid submission mode", "error", err)
		os.Exit(1)
	}
	driver := submission.NewDriver(strategy, cache)

	importOpts = append(importOpts,
		ingestion.WithMaxUploadBytes(cfg.Import.MaxUploadBytes),
		ingestion.WithPipelineConfig(cfg.Import.PipelineConfig(domain.PipelineAppointments)),
		ingestion.WithPipelineConfig(cfg.Import.PipelineConfig(domain.PipelineInquiries)),
	)
	importService := ingestion.NewService(client, driver, importOpts...)
	exportService := export.NewService(cache, export.WithLocation(cfg.Import.Location))

	mux := http.NewServeMux()
	mux.Handle("/imports/", ingestion.NewHTTPHandler(importService))
	mux.Handle("/exports/", export.NewHTTPHandler(exportService))
	mux.Handle("/templates/", export.NewTemplateHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.ClinicIDHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", middleware.RequestIDHeader},
	})

	handler := corsHandler.Handler(
		middleware.RecoveryMiddleware(
			middleware.RequestIDMiddleware(
				middleware.LoggingMiddleware(
					middleware.ClinicScopeMiddleware(mux),
				),
			),
		),
	)

	// Per-record imports make one API call per row, hence the long write timeout.
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.Addr,
			"api", cfg.API.BaseURL,
			"submission_mode", cfg.Import.SubmissionMode,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return
	}

	slog.Info("server exited")
}
