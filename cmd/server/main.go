package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pulseboard/internal/alert"
	"pulseboard/internal/api"
	"pulseboard/internal/bus"
	"pulseboard/internal/cache"
	"pulseboard/internal/config"
	"pulseboard/internal/notify"
	"pulseboard/internal/source"
	"pulseboard/internal/stats"
	"pulseboard/internal/storage"
	"pulseboard/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to db", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()
	repo := storage.NewRepository(store)

	live := source.NewPrometheusSource(cfg.PrometheusURL, cfg.QueryTimeout())
	archive := source.NewPostgresAggregateSource(store.Pool)
	blender := stats.NewBlender(live, archive, cfg.Retention(), logger)

	dispatcher := notify.NewDispatcher(logger)
	if cfg.Notifications.SlackWebhookURL != "" {
		dispatcher.Register(alert.NotifySlack, notify.NewSlackSender(cfg.Notifications.SlackWebhookURL, 10*time.Second))
	}
	if cfg.Notifications.SendGridAPIKey != "" && cfg.Notifications.AlertEmailTo != "" {
		dispatcher.Register(alert.NotifyEmail, notify.NewEmailSender(
			cfg.Notifications.SendGridAPIKey,
			cfg.Notifications.AlertEmailFrom,
			cfg.Notifications.AlertEmailTo))
	}

	evaluator := alert.NewEvaluator(live)
	scheduler := alert.NewScheduler(repo, evaluator, dispatcher, cfg.PollInterval(), logger)
	scheduler.Cooldown = cfg.Cooldown()

	if cfg.Redis.Addr != "" {
		snapshotCache, err := cache.NewSnapshotCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.SnapshotTTL())
		if err != nil {
			logger.Warn("redis unavailable, running without snapshot cache", slog.String("error", err.Error()))
		} else {
			defer snapshotCache.Close()
			scheduler.Cache = snapshotCache
		}
	}

	var ruleBus *bus.Bus
	if cfg.NATSURL != "" {
		ruleBus, err = bus.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("nats unavailable, rule events disabled", slog.String("error", err.Error()))
			ruleBus = nil
		} else {
			defer ruleBus.Close()
			subscribeRuleEvents(ruleBus, evaluator, logger)
		}
	}

	scheduler.Start()
	defer scheduler.Stop()
	logger.Info("alert scheduler started",
		slog.Duration("interval", cfg.PollInterval()),
		slog.Duration("cooldown", cfg.Cooldown()))

	handler := &api.Handler{
		Repo:    repo,
		Blender: blender,
		Bus:     ruleBus,
		Timeout: cfg.QueryTimeout(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	handler.RegisterRoutes(r)
	r.Handle("/metrics", telemetry.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("pulseboard listening", slog.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("error", err.Error()))
	}
}

// Rule edits invalidate the evaluator's sustained-condition state so a
// changed threshold or duration starts a fresh observation window.
func subscribeRuleEvents(ruleBus *bus.Bus, evaluator *alert.Evaluator, logger *slog.Logger) {
	for _, subject := range []string{bus.SubjectRuleUpdated, bus.SubjectRuleToggled, bus.SubjectRuleDeleted} {
		if _, err := ruleBus.Subscribe(subject, func(evt bus.Event) {
			evaluator.Reset(evt.RuleID)
		}); err != nil {
			logger.Warn("failed to subscribe", slog.String("subject", subject), slog.String("error", err.Error()))
		}
	}
}
