package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"compliance-case-service/internal/api"
	"compliance-case-service/internal/config"
	"compliance-case-service/internal/engine"
	"compliance-case-service/internal/events"
	"compliance-case-service/internal/logging"
	"compliance-case-service/internal/notify"
	"compliance-case-service/internal/store"
	"compliance-case-service/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed:", err)
	}

	logger := logging.New(cfg.Log.Dir, cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewPostgres(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Errorf("DB connect failed: %v", err)
		log.Fatal("DB connect failed:", err)
	}
	defer st.Close()

	fac := workflow.NewLocal(workflow.Options{
		ActivityTimeout: cfg.Facility.ActivityTimeout,
		MaxAttempts:     cfg.Facility.MaxAttempts,
		Backoff:         cfg.Facility.RetryBackoff,
		Retryable:       engine.IsTransient,
	}, logger)

	acts := engine.NewActivities(st, logger, nil)
	disp := engine.NewDispatcher(st, fac, acts, logger)

	hub := events.NewHub(logger)
	disp.OnSuccess(hub.Broadcast)

	tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	if err != nil {
		logger.Errorf("Telegram init failed: %v", err)
		log.Fatal("Telegram init failed:", err)
	}
	if tg != nil {
		disp.OnSuccess(tg.Hook())
	}

	consumer := events.NewConsumer(events.Config{
		Broker:  cfg.Kafka.Broker,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	}, disp, logger)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			logger.Errorf("Kafka consumer stopped: %v", err)
		}
	}()

	r := api.NewRouter(st, disp, hub, logger, cfg.API.BasePath)
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := r.Run(cfg.API.Port); err != nil {
			logger.Errorf("API run failed: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info("Shutting down...")
	cancel()
	if err := consumer.Close(); err != nil {
		logger.Errorf("Kafka close failed: %v", err)
	}
	logger.Info("Service stopped")
}
