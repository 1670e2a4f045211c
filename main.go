package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fmuoria/resume-screener/internal/agent"
	"github.com/fmuoria/resume-screener/internal/api"
	"github.com/fmuoria/resume-screener/internal/cache"
	"github.com/fmuoria/resume-screener/internal/config"
	"github.com/fmuoria/resume-screener/internal/dataset"
	"github.com/fmuoria/resume-screener/internal/export"
	"github.com/fmuoria/resume-screener/internal/ingestion"
	"github.com/fmuoria/resume-screener/internal/llm"
	"github.com/fmuoria/resume-screener/internal/logger"
	"github.com/fmuoria/resume-screener/internal/scoring"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (.json, .yaml); defaults to the user config directory")
		envFile    = flag.String("env", ".env", "dotenv file loaded before the config")
		initConfig = flag.Bool("init-config", false, "write the effective config to the config path and exit")
		exportPath = flag.String("export", "", "write the filtered rows to this .xlsx file and exit")
		jobTitle   = flag.String("job-title", "", "job title filter for -export")
		recruiter  = flag.String("recruiter", "", "recruiter filter for -export")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *initConfig {
		if err := saveConfig(cfg, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log := logger.Setup(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	cfg.ApplyToEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	screener, closeFn, err := build(ctx, cfg)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	if *exportPath != "" {
		if err := exportRows(ctx, screener, dataset.Filter{JobTitle: *jobTitle, Recruiter: *recruiter}, *exportPath); err != nil {
			log.Error("export failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, screener); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}

func saveConfig(cfg *config.Config, path string) error {
	if path == "" {
		return cfg.Save()
	}
	return cfg.SaveTo(path)
}

// build wires the dataset pipeline, the model clients and the agent. The
// returned function releases the model clients.
func build(ctx context.Context, cfg *config.Config) (*agent.Agent, func(), error) {
	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	maxAge, err := cfg.CacheMaxAge()
	if err != nil {
		return nil, nil, err
	}
	store := cache.New(cfg.CachePath(), maxAge)
	loader := dataset.NewLoader(dataset.NewAcquirer(cfg.DataDir, fetcher), cfg.Source.Datasets, store,
		dataset.WithMaxAge(maxAge))

	closeFn := func() {}
	var generator scoring.Generator
	if cfg.GenerativeEnabled() {
		client, err := llm.NewVertexAIClient(ctx, cfg.GoogleCloudProject, cfg.GoogleCloudLocation, cfg.GenerativeModel)
		if err != nil {
			return nil, nil, err
		}
		generator = client
		closeFn = func() { client.Close() }
		slog.Info("generative reports enabled", "model", client.Model())
	} else {
		slog.Warn("GOOGLE_CLOUD_PROJECT not set, evaluations will carry no report")
	}

	var embedder scoring.Embedder
	if cfg.EmbeddingsEnabled() {
		client, err := llm.NewEmbeddingClient(ctx, llm.EmbeddingConfig{
			APIKey:   cfg.GeminiAPIKey,
			Project:  cfg.GoogleCloudProject,
			Location: cfg.GoogleCloudLocation,
			Model:    cfg.EmbeddingModel,
		})
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		embedder = client
	} else {
		slog.Warn("no embeddings backend configured, evaluations will carry no similarity")
	}

	a := agent.New(loader, scoring.NewScorer(generator, embedder), agent.Options{
		FileHandler:   ingestion.NewFileHandler(cfg.UploadsDir),
		Cache:         store,
		RatePerSecond: cfg.Scoring.RatePerSecond,
		Burst:         cfg.Scoring.Burst,
		MaxRows:       cfg.Scoring.MaxRows,
	})
	a.SetProgressCallback(func(current, total int, message string) {
		slog.Debug("scoring progress", "current", current, "total", total, "message", message)
	})
	return a, closeFn, nil
}

func newFetcher(ctx context.Context, cfg *config.Config) (dataset.Fetcher, error) {
	switch cfg.Source.Kind {
	case config.SourceDrive:
		return dataset.NewDriveFetcher(ctx, cfg.GoogleCredentialsPath, cfg.Source.DriveTokenPath)
	case config.SourceS3:
		return dataset.NewS3Fetcher(ctx, cfg.Source.S3)
	default:
		return dataset.NewPublicDriveFetcher(), nil
	}
}

func exportRows(ctx context.Context, a *agent.Agent, filter dataset.Filter, path string) error {
	rows, err := a.Dataset(ctx, filter)
	if err != nil {
		return err
	}
	if err := export.ExportToExcel(export.Report{Filter: filter, Rows: rows}, path); err != nil {
		return err
	}
	slog.Info("rows exported", "rows", rows.Len(), "path", path)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, a *agent.Agent) error {
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(a).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// bulk scoring runs inside the request
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting resume screener", "port", cfg.Port, "source", cfg.Source.Kind)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
