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

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"agentsflow-voice/internal/activity"
	"agentsflow-voice/internal/auth"
	"agentsflow-voice/internal/callsession"
	"agentsflow-voice/internal/config"
	"agentsflow-voice/internal/generator"
	"agentsflow-voice/internal/httpapi"
	"agentsflow-voice/internal/telephony"
	"agentsflow-voice/pkg/logger"
	"agentsflow-voice/pkg/utils"
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

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	gen, err := generator.NewOpenAIGenerator(generator.OpenAIConfig{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		BaseURL:        cfg.OpenAI.BaseURL,
		RequestTimeout: cfg.OpenAI.RequestTimeout,
	})
	if err != nil {
		log.Error("generator init failed", "err", err)
		os.Exit(1)
	}

	calls := callsession.NewService(
		callsession.NewPostgresStore(db),
		gen,
		activity.NewService(activity.NewPostgresRepo(db)),
		callsession.NewRedisLocker(rdb, 0),
		callsession.ServiceConfig{
			Prompts: callsession.Prompts{
				Greeting:        cfg.Voice.Greeting,
				RePrompt:        cfg.Voice.RePrompt,
				Goodbye:         cfg.Voice.Goodbye,
				VoicemailPrompt: cfg.Voice.VoicemailPrompt,
			},
			VoicemailMode: cfg.Voice.VoicemailMode,
		},
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:  cfg,
		db:   db,
		rdb:  rdb,
		auth: authManager,
		hooks: telephony.WebhookHandler{
			Calls: calls,
		},
		api: httpapi.Handlers{Calls: calls},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
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
