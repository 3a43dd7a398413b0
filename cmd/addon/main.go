package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/sonsuzanime/stremio-deepl-translate/internal/config"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/httpapi"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/opensubtitles"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/persistence"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/pipeline"
	"github.com/sonsuzanime/stremio-deepl-translate/pkg/icron"
	"github.com/sonsuzanime/stremio-deepl-translate/pkg/log"
)

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type drainer interface {
	Drain(ctx context.Context) error
}

func main() {
	// optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	store, err := persistence.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open database: %v", err)
	}
	defer store.Close()

	if err := httpapi.EnsureSentinelFiles(cfg.Storage.SubtitleDir); err != nil {
		log.Fatal("Failed to write message subtitles: %v", err)
	}

	source := opensubtitles.NewClient(cfg.OpenSubtitles.BaseURL, cfg.Storage.SubtitleDir)
	coordinator := pipeline.NewCoordinator(store, source, cfg.Storage.SubtitleDir,
		cfg.DeepL.APIURL, cfg.DeepL.PollInterval)
	dispatcher := pipeline.NewDispatcher()

	c := cron.New()
	if _, err := c.AddFunc(cfg.System.DBProbeSchedule, store.Probe); err != nil {
		log.Fatal("Failed to schedule database probe: %v", err)
	}
	if info, err := icron.GetTriggerInfo(cfg.System.DBProbeSchedule, time.Now()); err == nil {
		log.Info("Database probe scheduled, next run in %s", info.TimeUntilNext.Round(time.Second))
	}

	server := httpapi.NewServer(store, source, coordinator, dispatcher,
		cfg.Storage.SubtitleDir, cfg.Server.PublicBaseURL, cfg.DeepL.APIURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWithComponents(ctx, cfg, c, server, dispatcher); err != nil {
		log.Fatal("Server error: %v", err)
	}
}

// runWithComponents runs the addon until ctx is cancelled or the HTTP
// server fails, then shuts everything down in order: stop accepting
// requests, wait for in-flight translations, stop the cron engine.
func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	cronEngine cronEngine,
	httpSrv httpServer,
	dispatcher drainer,
) error {
	cronEngine.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Addon listening on %s", cfg.Server.ListenAddr())
		errCh <- httpSrv.ListenAndServe(cfg.Server.ListenAddr())
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error: %v", err)
	}
	if err := dispatcher.Drain(shutdownCtx); err != nil {
		log.Warn("Gave up waiting for in-flight translations: %v", err)
	}
	<-cronEngine.Stop().Done()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
