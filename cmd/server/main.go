package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/auth"
	"github.com/themadorg/mailaggregator/internal/cipher"
	"github.com/themadorg/mailaggregator/internal/config"
	"github.com/themadorg/mailaggregator/internal/core"
	"github.com/themadorg/mailaggregator/internal/delivery"
	"github.com/themadorg/mailaggregator/internal/fetcher"
	"github.com/themadorg/mailaggregator/internal/http-server/api"
	"github.com/themadorg/mailaggregator/internal/pollstatus"
	"github.com/themadorg/mailaggregator/internal/retention"
	"github.com/themadorg/mailaggregator/internal/scheduler"
	"github.com/themadorg/mailaggregator/internal/store"
	"github.com/themadorg/mailaggregator/lib/logger"
	"github.com/themadorg/mailaggregator/lib/sl"
)

const shutdownGrace = 30 * time.Second

func main() {
	logPath := flag.String("log", "/var/log/", "path to log file directory, used outside env=local")
	archiveDir := flag.String("archive-dir", "./archives", "directory for retention archive files")
	flag.Parse()

	conf := config.MustLoad()
	baseLogger := logger.SetupLogger(conf.Env, *logPath)
	baseLogger.Info("starting mailaggregator", slog.String("env", conf.Env))

	st, err := store.Open(conf.DatabaseURL, baseLogger)
	if err != nil {
		baseLogger.Error("open store", sl.Err(err))
		return
	}
	defer st.Close()

	if err := st.SeedDefaults(entity.Settings{
		TelegramBotToken:    conf.TelegramBotToken,
		TelegramChatId:      conf.TelegramChatId,
		PollIntervalSeconds: conf.PollIntervalSeconds,
		WebhookURL:          conf.WebhookURL,
		APIToken:            conf.APIToken,
		MirrorReadToServer:  true,
	}); err != nil {
		baseLogger.Error("seed settings defaults", sl.Err(err))
		return
	}

	fanout := delivery.NewFanout(st, baseLogger)

	log := slog.New(logger.NewTelegramHandler(baseLogger.Handler(), fanout, slog.LevelWarn))

	ciph, err := cipher.New(conf.EncryptionKey)
	if err != nil {
		log.Error("init cipher", sl.Err(err))
		return
	}

	authService := auth.New(st, conf.AdminResetToken, log)
	if err := authService.Bootstrap(conf.AdminUsername, conf.AdminPassword); err != nil {
		log.Error("bootstrap admin user", sl.Err(err))
		return
	}

	fet := fetcher.New(st, fanout, ciph, log)
	sched := scheduler.New(st, fet, log)
	pollCache := pollstatus.New(st)
	sweeper := retention.New(st, *archiveDir, log)

	facade := core.New(st, sched, fet, fanout, pollCache, ciph, authService, sweeper, log)

	activeAccounts, err := st.ListAccounts(true)
	if err != nil {
		log.Error("list active accounts", sl.Err(err))
		return
	}
	ids := make([]int64, len(activeAccounts))
	for i, a := range activeAccounts {
		ids[i] = a.Id
	}
	sched.Start(ids)

	server, err := api.New(conf, log, facade)
	if err != nil {
		log.Error("start api server", sl.Err(err))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutdown signal received")

	sched.StopAll(shutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("api shutdown", sl.Err(err))
	}
}
