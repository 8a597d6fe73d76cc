package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/internal/config"
	"github.com/moxer-mmh/Tweeza/internal/logger"
	"github.com/moxer-mmh/Tweeza/router"
	"github.com/moxer-mmh/Tweeza/services"
)

func main() {
	if err := config.LoadConfig(os.Getenv("TWEEZA_CONFIG_PATH")); err != nil {
		panic(err)
	}
	log := logger.Must(config.App.LogLevel, config.App.LogFormat)
	defer func() { _ = log.Sync() }()

	if err := config.App.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}
	if config.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.Open(ctx, config.App.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pg.Close()
	log.Info("Connected to database")

	redisClient, err := services.NewRedisClient(ctx, config.App.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to redis")

	srv := &http.Server{
		Addr:              ":" + config.App.Port,
		Handler:           router.NewGinRouter(pg, services.NewRedisStore(redisClient), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("API server listening", zap.String("addr", srv.Addr), zap.String("env", config.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
