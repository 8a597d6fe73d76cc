package main

import (
	"flag"
	"os"

	"github.com/moxer-mmh/Tweeza/db/migrate"
	"github.com/moxer-mmh/Tweeza/internal/config"
	"github.com/moxer-mmh/Tweeza/internal/logger"
	"go.uber.org/zap"
)

func main() {
	direction := flag.String("direction", migrate.DirectionUp, "up or down")
	showVersion := flag.Bool("version", false, "print the current schema version and exit")
	flag.Parse()

	if err := config.LoadConfig(os.Getenv("TWEEZA_CONFIG_PATH")); err != nil {
		panic(err)
	}
	log := logger.Must(config.App.LogLevel, config.App.LogFormat)
	defer func() { _ = log.Sync() }()

	if *showVersion {
		v, dirty, err := migrate.Version(config.App.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to read schema version", zap.Error(err))
		}
		log.Info("Schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return
	}

	log.Info("Running migrations", zap.String("direction", *direction))
	if err := migrate.Run(config.App.DatabaseURL, *direction); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
	log.Info("Migrations applied")
}
