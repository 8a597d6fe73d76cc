package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/internal/config"
	"github.com/moxer-mmh/Tweeza/internal/logger"
	"github.com/moxer-mmh/Tweeza/services"
	"github.com/moxer-mmh/Tweeza/workers"
)

func main() {
	if err := config.LoadConfig(os.Getenv("TWEEZA_CONFIG_PATH")); err != nil {
		panic(err)
	}
	log := logger.Must(config.App.LogLevel, config.App.LogFormat)
	defer func() { _ = log.Sync() }()
	log.Info("Starting workers...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.Open(ctx, config.App.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pg.Close()
	log.Info("Connected to database")

	fcmService, err := services.NewFCMService(ctx, config.App.FCMCredentialsPath, log)
	if err != nil {
		log.Fatal("Failed to initialize FCM", zap.Error(err))
	}

	notificationWorker := workers.NewNotificationWorker(
		services.NewSimpleNotificationRepository(pg),
		fcmService,
		config.App.NotificationPollInterval,
		config.App.NotificationBatchSize,
		log,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		notificationWorker.Start(ctx)
	}()

	log.Info("Workers started successfully. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Info("Shutting down workers...")
	wg.Wait()
}
