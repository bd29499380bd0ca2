package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"examdesk/internal/config"
	"examdesk/internal/exam"
	"examdesk/internal/media"
	"examdesk/internal/notify"
	"examdesk/internal/recipients"
	"examdesk/internal/server"
	"examdesk/internal/storage"
	"examdesk/internal/telegram"
	"examdesk/internal/transcode"
	"examdesk/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	// Optional .env next to the binary; missing file is fine.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	if err := config.WriteExample(cfgPath); err != nil {
		return err
	}

	mgr := config.NewManager(cfgPath)
	raw, err := mgr.Load()
	if err != nil {
		return err
	}
	if err := raw.Validate(); err != nil {
		return err
	}
	cfg := raw.Normalized()

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()
	mgr.SetLogger(log)
	mgr.SetValidator(func(_ context.Context, c *config.Config) error { return c.Validate() })

	busyTimeout, err := cfg.StorageBusyTimeout()
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		return err
	}
	defer store.Close()

	timeout, err := cfg.TelegramTimeout()
	if err != nil {
		return err
	}
	client, err := telegram.NewClient(telegram.Config{
		Token:      cfg.Telegram.Token,
		APIBase:    cfg.Telegram.APIBase,
		Timeout:    timeout,
		RatePerSec: cfg.Telegram.RatePerSec,
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		return err
	}

	files := media.Files{DataDir: cfg.DataDir}
	registry := recipients.NewRegistry(store)
	converter := transcode.New(cfg.Transcode.FFmpegPath)

	notifyLog := log.With(logx.String("component", "notify"))
	dispatcher := notify.NewDispatcher(client, converter, notifyLog)
	orchestrator := notify.NewOrchestrator(registry, dispatcher, files.ImagesDir(), notifyLog)

	svc := exam.NewService(store, files, orchestrator, log.With(logx.String("component", "exam")))
	handler := server.NewHandler(store, files, registry, svc, log.With(logx.String("component", "http")))
	srv := server.New(cfg.Server.Addr, handler, log)

	// Hot-reload logging settings on config file changes.
	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		for c := range updates {
			n := c.Normalized()
			logSvc.Apply(logx.Config{
				Level:   n.Logging.Level,
				Console: n.ConsoleEnabled(),
				File: logx.FileConfig{
					Enabled: n.Logging.File.Enabled,
					Path:    n.Logging.File.Path,
				},
			})
			log.Info("logging config reloaded", logx.String("level", n.Logging.Level))
		}
	}()

	log.Info("examdesk starting",
		logx.String("data_dir", cfg.DataDir),
		logx.String("db", cfg.Storage.Path),
		logx.String("addr", cfg.Server.Addr))

	return srv.Start(ctx)
}
