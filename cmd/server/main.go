package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/prophecyclub/server/internal/app"
	"github.com/prophecyclub/server/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrateOnly := flag.Bool("migrate", false, "run migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.AppConfig{ConfigPath: *configPath}
	if *migrateOnly {
		if err := app.Migrate(ctx, cfg); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		return
	}
	if err := app.RunServer(ctx, cfg); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
