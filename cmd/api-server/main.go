package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/api"
	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/auth"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/config"
	"github.com/hackgods/clinic-portal/internal/db"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
	"github.com/hackgods/clinic-portal/internal/logging"
	redisclient "github.com/hackgods/clinic-portal/internal/redis"
	"github.com/hackgods/clinic-portal/internal/referral"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}

	log := logging.New(cfg.Env)
	log.WithFields(logrus.Fields{
		"env":     cfg.Env,
		"port":    cfg.HTTPPort,
		"backend": cfg.StoreBackend,
	}).Info("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pgPool      *pgxpool.Pool
		apptRepo    appointment.Repository
		recordRepo  healthrecord.Repository
		letterStore referral.Store
	)

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if cfg.MigrateOnStart {
			if err := db.Migrate(cfg.PostgresDSN, log); err != nil {
				log.Fatalf("migration error: %v", err)
			}
		}

		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()

		apptRepo = appointment.NewPgRepository(pgPool)
		recordRepo = healthrecord.NewPgRepository(pgPool)
		letterStore = referral.NewPgStore(pgPool)
	default:
		log.Warn("using in-memory store, data is lost on restart")
		apptRepo = appointment.NewMemoryRepository(appointment.DefaultDepartments...)
		recordRepo = healthrecord.NewMemoryRepository()
		letterStore = referral.NewMemoryStore()
	}

	// Redis is optional; without it slot locks are process-local.
	var (
		rdb    *redis.Client
		locker redisclient.Locker
	)
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.WithError(err).Warn("redis unavailable, falling back to local slot locks")
			rdb = nil
		}
	}
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Error("error closing redis")
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		log.Info("connected to Redis")
	} else {
		locker = redisclient.NewLocalSlotLocker()
	}

	handler := api.NewRouter(api.RouterConfig{
		Appointments:   appointment.NewService(apptRepo, locker, calendar.Default(), log),
		HealthRecords:  healthrecord.NewService(recordRepo, log),
		Referrals:      referral.NewService(letterStore, cfg.ReferralMaxBytes),
		Tokens:         auth.NewTokens(cfg.JWTSecret),
		Log:            log,
		MaxUploadBytes: cfg.ReferralMaxBytes,
		PgPool:         pgPool,
		Redis:          rdb,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return rootCtx },
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatalf("http server error: %v", err)
		}
	case <-rootCtx.Done():
	}

	log.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
