package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Guizzs26/live_polling_system/internal/auth"
	"github.com/Guizzs26/live_polling_system/internal/config"
	"github.com/Guizzs26/live_polling_system/internal/event"
	"github.com/Guizzs26/live_polling_system/internal/metrics"
	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/profanity"
	"github.com/Guizzs26/live_polling_system/internal/server"
	"github.com/Guizzs26/live_polling_system/internal/session"
	"github.com/Guizzs26/live_polling_system/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("storage unavailable", "type", cfg.DatabaseType, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := seedGroups(ctx, st, cfg.SeedGroups); err != nil {
		logger.Error("seeding groups failed", "error", err)
		os.Exit(1)
	}

	deps := session.Deps{
		Store:          st,
		Metrics:        metrics.NewSessionMetrics(prometheus.DefaultRegisterer, "polling"),
		Logger:         logger,
		PersistTimeout: cfg.PersistTimeout,
	}

	if cfg.RedisURL != "" {
		live, err := store.NewRedisLiveStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		defer live.Close()
		deps.Live = live
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp, err := event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Error("failed to create kafka publisher", "error", err)
			os.Exit(1)
		}
		defer kp.Close()
		deps.Publisher = kp
		logger.Info("publishing poll events", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	if cfg.BannedWordsFile != "" {
		filter, err := profanity.LoadFile(cfg.BannedWordsFile)
		if err != nil {
			logger.Error("failed to load banned words", "file", cfg.BannedWordsFile, "error", err)
			os.Exit(1)
		}
		deps.Filter = filter
	}

	mgr := session.NewManager(deps)

	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Port),
		Handler: server.NewRouter(server.Options{
			Manager:        mgr,
			Groups:         st,
			Verifier:       auth.NewVerifier(cfg.TokenSecret),
			Gatherer:       prometheus.DefaultGatherer,
			Logger:         logger,
			OriginPatterns: cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, ending group sessions...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		mgr.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("Listening", "port", cfg.Port, "storage", cfg.DatabaseType)
	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server closed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server closed")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.DatabaseType == "memory" {
		return store.NewMemoryStore(), nil
	}

	st, err := store.NewSQLStore(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.WaitForDB(ctx, 30*time.Second); err != nil {
		st.Close()
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)
	return st, nil
}

func seedGroups(ctx context.Context, st store.Store, seeds []config.SeedGroup) error {
	for _, sg := range seeds {
		g, err := st.FindGroup(ctx, sg.Code)
		if errors.Is(err, store.ErrNotFound) {
			g, err = st.CreateGroup(ctx, model.Group{Code: sg.Code, Name: sg.Code})
		}
		if err != nil {
			return err
		}
		if err := st.AddMember(ctx, g.ID, sg.AdminID, model.RoleAdmin); err != nil {
			return err
		}
		slog.Info("group ready", "group", g.Code, "admin", sg.AdminID)
	}
	return nil
}
