package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/config"
	"github.com/hackgods/clinic-portal/internal/db"
	"github.com/hackgods/clinic-portal/internal/logging"
	redisclient "github.com/hackgods/clinic-portal/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}

	log := logging.New(cfg.Env)
	if cfg.StoreBackend != config.BackendPostgres {
		log.Fatalf("completion-worker requires STORE_BACKEND=%s", config.BackendPostgres)
	}
	log.WithFields(logrus.Fields{"env": cfg.Env, "interval": cfg.WorkerInterval}).Info("completion-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()

	// The worker never books, so a local locker is enough.
	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, redisclient.NewLocalSlotLocker(), calendar.Default(), log)

	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log logrus.FieldLogger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompletePastAppointments(runCtx)
	if err != nil {
		log.WithError(err).Error("completion run failed")
		return
	}
	log.WithFields(logrus.Fields{"completed": n, "took": time.Since(start)}).Info("completion run complete")
}
