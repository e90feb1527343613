package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jbgab/klartext/internal/api"
	"github.com/jbgab/klartext/internal/artifact"
	"github.com/jbgab/klartext/internal/config"
	"github.com/jbgab/klartext/internal/pipeline"
	"github.com/jbgab/klartext/internal/suggest"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy, err := suggest.LoadPolicy(cfg.PolicyFile, "")
	if err != nil {
		log.Error("failed to load policy", "file", cfg.PolicyFile, "error", err)
		os.Exit(1)
	}

	store, err := artifact.NewStore(cfg.ArtifactDir, cfg.ArtifactTTL)
	if err != nil {
		log.Error("failed to open artifact store", "dir", cfg.ArtifactDir, "error", err)
		os.Exit(1)
	}

	llm := suggest.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)

	orch := pipeline.NewOrchestrator(cfg, llm, store, policy, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, llm, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		llm.Close()
	}()

	log.Info("starting klartext", "port", cfg.Port, "model", cfg.OpenAIModel)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
