package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduling/internal/config"
	"github.com/clinicore/clinic-scheduling/internal/db"
	"github.com/clinicore/clinic-scheduling/internal/logging"
	"github.com/clinicore/clinic-scheduling/internal/metrics"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString("logger setup error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("noshow-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("grace", cfg.NoShowGrace))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisBookingLocker(rdb, cfg.LockTTL)
	svc := scheduling.NewService(repo, locker, scheduling.ServiceConfig{
		SlotDuration: cfg.SlotDuration,
		Location:     cfg.Location(),
	}, log)

	collector := metrics.NewCollector("clinic_scheduling_worker")

	// Run once at startup
	runOnce(rootCtx, svc, collector, cfg.NoShowGrace, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping noshow worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, collector, cfg.NoShowGrace, log)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.Service, collector *metrics.Collector, grace time.Duration, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := svc.SweepNoShows(runCtx, grace)
	if err != nil {
		log.Error("no-show sweep error", zap.Error(err))
		return
	}
	collector.NoShowsSweptTotal.Add(float64(marked))
	log.Info("no-show sweep complete",
		zap.Int("marked", marked),
		zap.Duration("took", time.Since(start)))
}
