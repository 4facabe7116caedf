package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/auth"
	"github.com/ukydev/fleet-logbook/internal/cache"
	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/config"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/handlers"
	"github.com/ukydev/fleet-logbook/internal/logging"
	"github.com/ukydev/fleet-logbook/internal/middleware"
	"github.com/ukydev/fleet-logbook/internal/report"
	"github.com/ukydev/fleet-logbook/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI, 10*time.Second)
	if err != nil {
		return err
	}
	store, err := db.NewStore(client, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()
	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	logger.WithField("database", cfg.Mongo.Database).Info("connected to MongoDB")

	checks := map[string]handlers.Pinger{"mongo": store}

	backend, closeBackend, err := openCacheBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()
	if p, ok := backend.(handlers.Pinger); ok {
		checks["redis"] = p
	}
	historyCache := cache.NewNamespace("history", backend, cfg.Cache.HistoryTTL, logger)
	dashboardCache := cache.NewNamespace("dashboard", backend, cfg.Cache.DashboardTTL, logger)

	sinks := []audit.Sink{audit.MongoSink{Collection: store.Audit}}
	if cfg.MQTT.Broker != "" {
		mq, err := audit.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.Username, cfg.MQTT.Password, 10*time.Second)
		if err != nil {
			logger.WithError(err).Warn("MQTT unavailable, audit events stay in MongoDB only")
		} else {
			defer mq.Disconnect(250)
			sinks = append(sinks, audit.MQTTSink{Client: mq, Prefix: cfg.MQTT.TopicPrefix, QoS: 1})
		}
	}
	recorder := audit.NewRecorder(logger, cfg.AuditBuffer, sinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("audit queue not drained")
		}
	}()

	authService, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	zone := clock.Zone{Loc: cfg.Location}
	systemClock := clock.System{}
	settings := service.DefaultSettings()
	settings.HistoryPageSize = cfg.HistoryPageSize
	settings.HistoryTTL = cfg.Cache.HistoryTTL
	settings.DashboardTTL = cfg.Cache.DashboardTTL
	settings.DashboardCurrentTTL = cfg.Cache.DashboardCurrentTTL
	settings.DashboardPeriodCap = cfg.DashboardPeriodCap
	settings.DashboardRecentLimit = cfg.DashboardRecentLimit

	deps := service.Deps{
		Trips:    store.Trips,
		Drivers:  store.Drivers,
		Vehicles: store.Vehicles,
		Refills:  store.Refills,
		AuditLog: store.Audit,
		Blobs:    store.Blobs,
		Audit:    recorder,
		Caches:   cache.Group{historyCache, dashboardCache},
		Clock:    systemClock,
		Zone:     zone,
		Log:      logger,
		Settings: settings,
	}
	history := service.NewHistoryService(deps, historyCache)

	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, 10*time.Minute)
	limiter.StartJanitor(ctx, time.Minute)

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:          handlers.NewAuthHandler(authService, store.Users, recorder, systemClock, logger),
		Trips:         handlers.NewTripHandler(service.NewTripService(deps), history, logger),
		Refills:       handlers.NewRefillHandler(service.NewRefillService(deps), service.NewMetricsService(deps), logger),
		Registry:      handlers.NewRegistryHandler(service.NewRegistryService(deps), logger),
		Dashboard:     handlers.NewDashboardHandler(service.NewDashboardService(deps, dashboardCache), service.NewAuditService(deps), logger),
		Reports:       handlers.NewReportHandler(service.NewReportService(deps, history, report.NewGenerator(zone, systemClock.Now)), systemClock, logger),
		Authenticator: middleware.NewAuthMiddleware(authService),
		Limiter:       limiter,
		Health:        checks,
		Log:           logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{"addr": cfg.HTTP.Addr, "cache": cfg.Cache.Backend, "tz": cfg.LocalTZ}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openCacheBackend returns the configured backend and a cleanup func.
func openCacheBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (cache.Backend, func(), error) {
	if cfg.Cache.Backend == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		backend := cache.NewRedisBackend(rdb)
		if err := backend.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Cache.RedisAddr, err)
		}
		logger.WithField("addr", cfg.Cache.RedisAddr).Info("using Redis cache")
		return backend, func() { _ = rdb.Close() }, nil
	}

	backend := cache.NewMemoryBackend()
	backend.StartJanitor(ctx, time.Minute)
	return backend, func() {}, nil
}
