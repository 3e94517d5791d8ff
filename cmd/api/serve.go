package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/metrics"
	"github.com/udaypartap979/cal2/internal/pipeline"
	"github.com/udaypartap979/cal2/internal/server"
	"github.com/udaypartap979/cal2/internal/store"
	"github.com/udaypartap979/cal2/internal/whatsapp"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver and analysis API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				log.Fatalf("invalid config: %v", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("storage open failed driver=%s: %v", cfg.StorageDriver, err)
	}
	defer closeStore()

	m := metrics.New()
	archive := pipeline.NewFileArchiveFromConfig(cfg)
	scheduler, err := archive.SchedulePrune(cfg.DebugAudioPruneSchedule)
	if err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	orchestrator, err := buildOrchestrator(ctx, cfg, orchestratorParts{
		logger:    logger,
		metrics:   m,
		messenger: whatsapp.NewClient(cfg),
		fallback:  pipeline.NewHTTPFallback(cfg),
		archive:   archive,
	})
	if err != nil {
		return err
	}

	app := server.New(cfg, orchestrator, logger, m)
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("cal2 api listening on http://localhost:%s storage=%s ai=%s", cfg.AppPort, cfg.StorageDriver, cfg.AIProvider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	app.Wait()
	return nil
}
