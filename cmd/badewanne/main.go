package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"badewanne/internal/collector"
	"badewanne/internal/config"
	"badewanne/internal/gateway"
	"badewanne/internal/httpserver"
	"badewanne/internal/logger"
	"badewanne/internal/model"
	"badewanne/internal/notifier"
	"badewanne/internal/recorder"
	"badewanne/internal/scheduler"
	"badewanne/internal/store"
	"badewanne/internal/strategy"

	"github.com/rs/zerolog"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot := logger.New(logger.Config{Level: "info"})
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	log.Info().Msg("badewanne starting")

	// Init item store
	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init item store")
	}
	defer st.Close()

	// Init recorder
	var rec recorder.Recorder
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.HistoryPath, log)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		rec = recorder.NewNoopRecorder()
	} else {
		rec = sr
		defer sr.Close()
	}

	// Init metrics feed
	col, closeFeed := newCollector(cfg, st, log)
	defer closeFeed()

	gw := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Proxy, cfg.Gateway.Timeout)
	eng := strategy.NewEngine(st, gw, rec, cfg.Thresholds, log)
	eng.Timeout = cfg.Gateway.Timeout
	cls := strategy.NewClassifier(st, log)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := scheduler.Options{
		Collector:    col,
		Classifier:   cls,
		Engine:       eng,
		Store:        st,
		Recorder:     rec,
		Thresholds:   cfg.Thresholds,
		TriggerDelay: cfg.Schedule.TriggerDelay,
	}
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		opts.Notifier = tn
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, opts, log)
	if err := sched.Register(cfg.Schedule.CycleCron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpserver.New(sched, log).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server failed")
			}
		}()
	}

	if cfg.Schedule.RunOnStart {
		log.Info().Msg("RUN_ON_START enabled, running cycle now")
		if _, err := sched.TriggerCycle(model.KindScheduled); err != nil {
			log.Warn().Err(err).Msg("startup cycle not run")
		}
	}

	log.Info().Msg("badewanne is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping...")
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		done()
	}
	cancel()
	sched.Stop()
	log.Info().Msg("badewanne stopped")
}

// newCollector picks the metrics source. Without one, cycles run on stored
// metrics only.
func newCollector(cfg *config.Config, st store.Store, log zerolog.Logger) (*collector.Collector, func()) {
	switch {
	case cfg.Feed.WarehouseDSN != "":
		db, err := collector.OpenWarehouse(cfg.Feed.WarehouseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open warehouse")
		}
		src := collector.NewWarehouseSource(db, cfg.Feed.WarehouseView)
		return collector.NewCollector(src, st, log), func() { src.Close() }
	case cfg.Feed.URL != "":
		src := collector.NewHTTPSource(cfg.Feed.URL, cfg.Feed.APIKey, cfg.Proxy)
		return collector.NewCollector(src, st, log), func() {}
	default:
		log.Warn().Msg("no metrics feed configured, ingestion disabled")
		return nil, func() {}
	}
}
