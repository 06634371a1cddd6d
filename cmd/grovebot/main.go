package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovestreet/grovebot/internal/bot"
	"github.com/grovestreet/grovebot/internal/config"
	"github.com/grovestreet/grovebot/internal/control"
	"github.com/grovestreet/grovebot/internal/events"
	"github.com/grovestreet/grovebot/internal/httpapi"
	"github.com/grovestreet/grovebot/internal/observability"
	"github.com/grovestreet/grovebot/internal/openai"
	"github.com/grovestreet/grovebot/internal/persona"
	"github.com/grovestreet/grovebot/internal/relay"
	"github.com/grovestreet/grovebot/internal/session"
	"github.com/grovestreet/grovebot/internal/telegram"
)

func main() {
	log := observability.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config error", "error", err)
		os.Exit(1)
	}

	var journal *events.Log
	if cfg.DBPath != "" {
		journal, err = events.Open(cfg.DBPath)
		if err != nil {
			log.Error("event journal init failed", "error", err)
			os.Exit(1)
		}
		defer journal.Close()
	}
	journal.Record(nil, events.EventProcessStarted, map[string]any{
		"pid":        os.Getpid(),
		"deployment": cfg.DeploymentName,
	})

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	store := session.NewStore(cfg.MaxHistory)

	personaText := cfg.Persona
	if personaText == "" {
		personaText = persona.Default
	}

	completer := openai.NewClient(
		cfg.OpenAIAPIBase,
		cfg.OpenAIAPIKey,
		cfg.OpenAIAPIVersion,
		cfg.DeploymentName,
		time.Duration(cfg.CompletionTimeoutSeconds)*time.Second,
	)
	breaker := control.NewCircuitBreaker(
		cfg.BreakerThreshold,
		time.Duration(cfg.BreakerCooldownSeconds)*time.Second,
	)
	orchestrator := relay.New(store, completer, breaker, personaText, journal, metrics)

	// Long polls block up to PollTimeout server-side; pad the client timeout.
	transport := telegram.NewClient(cfg.TelegramAPIBase, time.Duration(cfg.PollTimeout+20)*time.Second)
	b := bot.New(transport, orchestrator, journal, log, bot.Options{
		PollTimeout:          cfg.PollTimeout,
		SleepSeconds:         cfg.SleepSeconds,
		DropPending:          cfg.DropPending,
		PendingWindowSeconds: cfg.PendingWindowSeconds,
		PendingMaxMessages:   cfg.PendingMaxMessages,
	})

	ops := &http.Server{Addr: cfg.BindAddr, Handler: httpapi.New(store).Router()}
	go func() {
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("grovebot running",
		"deployment", cfg.DeploymentName,
		"max_history", cfg.MaxHistory,
		"bind_addr", cfg.BindAddr,
	)
	b.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ops.Shutdown(shutdownCtx)
	log.Info("grovebot stopped")
}
