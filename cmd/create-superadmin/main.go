package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/internal/config"
	"github.com/moxer-mmh/Tweeza/internal/logger"
	"github.com/moxer-mmh/Tweeza/services"
)

func main() {
	email := flag.String("email", "", "super admin email (required)")
	name := flag.String("name", "", "full name (required for a new account)")
	phone := flag.String("phone", "", "mobile number, +213XXXXXXXXX")
	location := flag.String("location", "", "location")
	flag.Parse()

	if err := config.LoadConfig(os.Getenv("TWEEZA_CONFIG_PATH")); err != nil {
		panic(err)
	}
	log := logger.Must(config.App.LogLevel, config.App.LogFormat)
	defer func() { _ = log.Sync() }()

	// read from the environment so it stays out of shell history
	password := os.Getenv("TWEEZA_SUPERADMIN_PASSWORD")
	if *email == "" || password == "" {
		log.Fatal("-email and TWEEZA_SUPERADMIN_PASSWORD are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := db.Open(ctx, config.App.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pg.Close()

	bootstrap := services.NewSuperAdminBootstrap(
		services.NewSimpleUserRepository(pg),
		authz.NewSimpleRoleStore(pg),
		log,
	)
	u, created, err := bootstrap.Ensure(ctx, services.RegisterRequest{
		Email:    *email,
		Password: password,
		FullName: *name,
		Phone:    *phone,
		Location: *location,
	})
	if err != nil {
		log.Fatal("Failed to create super admin", zap.Error(err))
	}
	log.Info("Super admin ready",
		zap.String("user_id", u.ID),
		zap.String("email", u.Email),
		zap.Bool("created", created))
}
