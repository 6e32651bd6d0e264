package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/velora-notify/internal/engine"
	"github.com/angelmondragon/velora-notify/internal/ingest"
	"github.com/angelmondragon/velora-notify/internal/notifications"
	"github.com/angelmondragon/velora-notify/internal/preferences"
	"github.com/angelmondragon/velora-notify/pkg/config"
	"github.com/angelmondragon/velora-notify/pkg/db"
	"github.com/angelmondragon/velora-notify/pkg/logger"
	"github.com/angelmondragon/velora-notify/pkg/metrics"
	"github.com/angelmondragon/velora-notify/pkg/migrate"
	pkgpubsub "github.com/angelmondragon/velora-notify/pkg/pubsub"
	"github.com/angelmondragon/velora-notify/pkg/redis"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "notifier"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "notifier",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	userID, err := uuid.Parse(os.Getenv("VELORA_USER_ID"))
	if err != nil {
		logg.Error(context.Background(), "VELORA_USER_ID must be a valid uuid", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingers := map[string]pinger{}

	var repo notifications.Repository
	if cfg.DB.DSN != "" {
		dbClient, err := db.New(ctx, cfg.DB)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap database", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		}()
		if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
			logg.Error(ctx, "failed to run dev migrations", err)
			os.Exit(1)
		}
		repo = notifications.NewRepository(dbClient.DB())
		pingers["database"] = dbClient
	} else {
		logg.Warn(ctx, "no database configured, notifications will not survive restarts")
	}

	var prefStore *preferences.RedisStore
	var readQueue *notifications.ReadQueue
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		prefStore, err = preferences.NewRedisStore(redisClient)
		if err != nil {
			logg.Error(ctx, "failed to create preference store", err)
			os.Exit(1)
		}
		readQueue, err = notifications.NewReadQueue(redisClient)
		if err != nil {
			logg.Error(ctx, "failed to create read queue", err)
			os.Exit(1)
		}
		pingers["redis"] = redisClient
	} else {
		logg.Warn(ctx, "no redis configured, preferences will not persist")
	}

	var sources []ingest.Source
	if cfg.GCP.ProjectID != "" {
		psClient, err := pkgpubsub.NewClient(ctx, cfg.GCP, cfg.PubSub)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		sources, err = ingest.PubSubSources(psClient)
		if err != nil {
			logg.Error(ctx, "failed to build event sources", err)
			os.Exit(1)
		}
		pingers["pubsub"] = psClient
	} else {
		logg.Warn(ctx, "no gcp project configured, running without live event sources")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	engineMetrics := metrics.NewEngineMetrics(registry)

	session, err := engine.NewSession(engine.Deps{
		Config:    cfg.Engine,
		Logger:    logg,
		Metrics:   engineMetrics,
		Repo:      repo,
		Prefs:     prefLoaderOrNil(prefStore),
		ReadQueue: readQueue,
		Sources:   sources,
	})
	if err != nil {
		logg.Error(ctx, "failed to create session", err)
		os.Exit(1)
	}

	if err := session.Start(ctx, userID); err != nil {
		logg.Error(ctx, "failed to start session", err)
		os.Exit(1)
	}

	svc := &service{
		logg:     logg,
		session:  session,
		prefs:    prefStore,
		userID:   userID.String(),
		registry: registry,
		pingers:  pingers,
	}

	addr := ":" + cfg.Ops.Port
	server := &http.Server{Addr: addr, Handler: svc.router()}

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"user_id": userID.String(),
		"sources": len(sources),
	})
	logg.Info(runCtx, "starting notifier")

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "ops server stopped unexpectedly", err)
			stop()
		}
	}()

	<-ctx.Done()
	logg.Info(runCtx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(runCtx, "ops server shutdown", err)
	}
	if err := session.Stop(); err != nil {
		logg.Error(runCtx, "session stopped with degraded sources", err)
	}
	logg.Info(runCtx, "notifier shut down gracefully")
}

// prefLoaderOrNil keeps the session's optional dependency truly nil when no
// preference store exists, instead of a typed nil inside an interface.
func prefLoaderOrNil(store *preferences.RedisStore) engine.PreferenceLoader {
	if store == nil {
		return nil
	}
	return store
}
