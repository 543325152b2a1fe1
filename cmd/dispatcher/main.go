package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voiceref/internal/audit"
	"voiceref/internal/calls"
	"voiceref/internal/checks"
	"voiceref/internal/config"
	"voiceref/internal/questions"
	"voiceref/internal/telemetry"
	"voiceref/internal/voice"
	"voiceref/pkg/logger"
	"voiceref/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// The dispatcher runs one scan per CRON_INTERVAL. It is an alternative to an external
// scheduler hitting /internal/cron/dispatch; both may run since scans are claim-guarded.
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "dispatcher")
	slog.SetDefault(log)

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 5, MaxIdleConns: 2})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var locker calls.Locker
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: addr})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		locker = utils.NewRedisLocker(rdb)
	}

	platform, err := voice.NewVapiClient(voice.VapiConfig{
		APIKey:        cfg.Voice.APIKey,
		BaseURL:       cfg.Voice.BaseURL,
		PhoneNumberID: cfg.Voice.PhoneNumberID,
		Timeout:       cfg.Voice.Timeout,
	})
	if err != nil {
		log.Error("voice platform init failed", "err", err)
		os.Exit(1)
	}

	auditSvc := audit.NewService(audit.NewPostgresRepo(db), log)
	// Only check and contact reads plus outcome recording are used here, so links and mail stay unset.
	checkSvc := checks.NewService(checks.NewPostgresRepo(db),
		questions.NewService(questions.NewPostgresRepo(db), questions.NewBuilder(nil, log)),
		nil, nil, auditSvc, checks.ServiceConfig{}, log)

	dispatcher := calls.NewDispatcher(calls.NewPostgresRepo(db), checkSvc, platform, locker, auditSvc, calls.DispatcherConfig{
		Lookahead:   cfg.Cron.Lookahead,
		BatchSize:   cfg.Cron.BatchSize,
		Concurrency: cfg.Cron.Concurrency,
		LockTTL:     cfg.Cron.LockTTL,
	}, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	metricsSrv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("dispatcher metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "err", err)
			stop()
		}
	}()

	ticker := time.NewTicker(cfg.Cron.Interval)
	defer ticker.Stop()

	log.Info("dispatcher started", "interval", cfg.Cron.Interval, "lookahead", cfg.Cron.Lookahead)
	runScan(rootCtx, dispatcher, cfg.Cron.Interval, log)
	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown initiated")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				log.Error("metrics shutdown failed", "err", err)
			}
			cancel()
			return
		case <-ticker.C:
			runScan(rootCtx, dispatcher, cfg.Cron.Interval, log)
		}
	}
}

// runScan bounds one scan by the interval so a slow provider cannot stack scans.
func runScan(ctx context.Context, d *calls.Dispatcher, interval time.Duration, log *slog.Logger) {
	scanCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()
	if _, err := d.RunOnce(scanCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("dispatch scan failed", "err", err)
	}
}
