package main

import (
	"context"
	"log"

	"github.com/punchamoorthee/lendex/internal/config"
	"github.com/punchamoorthee/lendex/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := cfg.NewLogger()

	if cfg.Driver != config.DriverPostgres {
		logger.Info("sqlite schema is created on open, nothing to migrate")
		return
	}
	if err := store.Migrate(context.Background(), cfg.DBSource); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}
	logger.Info("migrations applied")
}
