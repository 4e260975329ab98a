package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/api"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/events"
	"github.com/hackgods/clinic-appointments/internal/lock"
	"github.com/hackgods/clinic-appointments/internal/logging"
	"github.com/hackgods/clinic-appointments/internal/patient"
	"github.com/hackgods/clinic-appointments/internal/practitioner"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
	"github.com/hackgods/clinic-appointments/internal/store"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("lock", cfg.LockDriver),
		zap.Stringer("timezone", cfg.Timezone))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connCtx, cancelConn := context.WithTimeout(rootCtx, 10*time.Second)
	stores, err := store.Open(connCtx, cfg, logger)
	cancelConn()
	if err != nil {
		logger.Fatal("store connection error", zap.Error(err))
	}
	defer stores.Close()

	deps := []api.Dependency{{Name: cfg.StoreDriver, Critical: true, Ping: stores.Ping}}

	var locker lock.Locker = lock.NewLocal(cfg.LockWait)
	if cfg.LockDriver == config.DriverRedis {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		locker = redisclient.NewLocker(rdb, cfg.LockTTL, cfg.LockWait, logger)
		deps = append(deps, api.Dependency{
			Name:     "redis",
			Critical: true,
			Ping:     func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	sinks := events.Multi{events.NewLogSink(logger)}
	if stores.EventLog != nil {
		sinks = append(sinks, stores.EventLog)
	}
	if cfg.AMQPURL != "" {
		conn, ch, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal("amqp connection error", zap.Error(err))
		}
		defer func() {
			_ = ch.Close()
			_ = conn.Close()
		}()
		logger.Info("publishing events to amqp", zap.String("exchange", cfg.AMQPExchange))
		sinks = append(sinks, events.NewAMQPSink(ch, cfg.AMQPExchange))
		deps = append(deps, api.Dependency{
			Name: "amqp",
			Ping: func(context.Context) error {
				if conn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			},
		})
	}

	practitioners := practitioner.NewRegistry(stores.Practitioners, stores.Appointments, locker, logger,
		practitioner.WithLocation(cfg.Timezone))
	patients := patient.NewRegistry(stores.Patients, stores.Appointments, locker, logger)
	ledger := appointment.NewService(stores.Practitioners, stores.Patients, stores.Appointments, locker, sinks, logger,
		appointment.WithLocation(cfg.Timezone))

	router := api.NewRouter(api.RouterConfig{
		Practitioners: practitioners,
		Patients:      patients,
		Appointments:  ledger,
		Dependencies:  deps,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
		RateLimitRPS:  cfg.RateLimitRPS,
		CORSOrigins:   cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
	case <-rootCtx.Done():
	}

	logger.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
