package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/router-for-me/PersistedObjects/internal/app"
	"github.com/router-for-me/PersistedObjects/internal/config"
	"github.com/router-for-me/PersistedObjects/internal/logging"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the YAML config file")
	migrateOnly := flag.Bool("migrate", false, "create tables and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.WithError(err).Fatal("configure logging")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrateOnly {
		if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
			log.WithError(errMigrate).Fatal("migrate")
		}
		return
	}
	if errRun := app.RunServer(ctx, cfg); errRun != nil {
		log.WithError(errRun).Fatal("server stopped")
	}
}
