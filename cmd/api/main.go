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

	"voiceref/internal/archive"
	"voiceref/internal/audit"
	"voiceref/internal/calls"
	"voiceref/internal/checks"
	"voiceref/internal/config"
	"voiceref/internal/invite"
	"voiceref/internal/llm"
	"voiceref/internal/notify"
	"voiceref/internal/questions"
	"voiceref/internal/reporting"
	"voiceref/internal/storage"
	"voiceref/internal/transcript"
	"voiceref/internal/voice"
	"voiceref/pkg/logger"
	"voiceref/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "api")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.Migrate(rootCtx, db, log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	// Redis only serializes dispatcher scans; without it the conditional claim still
	// prevents double dispatch.
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

	sender, err := notify.NewResendSender(notify.ResendConfig{
		APIKey:  cfg.Email.APIKey,
		BaseURL: cfg.Email.BaseURL,
		Timeout: cfg.Email.Timeout,
	})
	if err != nil {
		log.Error("email sender init failed", "err", err)
		os.Exit(1)
	}

	links, err := invite.NewManager(cfg.Invite.Secret, cfg.Invite.LinkTTL)
	if err != nil {
		log.Error("invite links init failed", "err", err)
		os.Exit(1)
	}

	var (
		generator questions.Generator
		formatter transcript.Formatter
	)
	if cfg.LLM.APIKey != "" {
		llmClient := llm.NewClient(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
		generator = questions.NewLLMGenerator(llmClient)
		formatter = transcript.NewLLMFormatter(llmClient)
	} else {
		log.Warn("LLM_API_KEY not set: using fallback questions and raw transcripts")
	}

	var store archive.Store = archive.NoopStore{}
	if cfg.Archive.Bucket != "" {
		s3Store, err := archive.NewS3Store(rootCtx, archive.S3Config{
			Bucket:   cfg.Archive.Bucket,
			Region:   cfg.Archive.Region,
			Prefix:   cfg.Archive.Prefix,
			Endpoint: cfg.Archive.Endpoint,
		})
		if err != nil {
			log.Error("transcript archive init failed", "err", err)
			os.Exit(1)
		}
		store = s3Store
	}

	auditSvc := audit.NewService(audit.NewPostgresRepo(db), log)
	questionSvc := questions.NewService(questions.NewPostgresRepo(db), questions.NewBuilder(generator, log))
	checkSvc := checks.NewService(checks.NewPostgresRepo(db), questionSvc, links, sender, auditSvc, checks.ServiceConfig{
		BaseURL:  cfg.App.BaseURL,
		MailFrom: cfg.Email.From,
	}, log)

	callRepo := calls.NewPostgresRepo(db)
	deps := routeDeps{
		Checks:    checkSvc,
		Questions: questionSvc,
		Scheduler: calls.NewScheduler(callRepo, checkSvc, platform, auditSvc, calls.SchedulerConfig{
			Model:         cfg.Voice.Model,
			VoiceID:       cfg.Voice.VoiceID,
			WebhookURL:    cfg.Voice.WebhookURL,
			WebhookSecret: cfg.Voice.WebhookSecret,
			DefaultRegion: cfg.Phone.DefaultRegion,
		}, log),
		Dispatcher: calls.NewDispatcher(callRepo, checkSvc, platform, locker, auditSvc, calls.DispatcherConfig{
			Lookahead:   cfg.Cron.Lookahead,
			BatchSize:   cfg.Cron.BatchSize,
			Concurrency: cfg.Cron.Concurrency,
			LockTTL:     cfg.Cron.LockTTL,
		}, log),
		Tracker: calls.NewTracker(calls.TrackerDeps{
			Repo:      callRepo,
			Platform:  platform,
			Formatter: formatter,
			Sender:    sender,
			Archive:   store,
			Checks:    checkSvc,
			Audit:     auditSvc,
		}, calls.TrackerConfig{
			NotifyTo: cfg.Email.NotifyTo,
			MailFrom: cfg.Email.From,
		}, log),
		Reporting:     reporting.NewService(callRepo),
		CronSecret:    cfg.Cron.Secret,
		WebhookSecret: cfg.Voice.WebhookSecret,
		Health: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, db, 2*time.Second)
		},
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/metrics"))
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
