package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/punchamoorthee/lendex/internal/config"
	"github.com/punchamoorthee/lendex/internal/service"
	"github.com/punchamoorthee/lendex/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	interval := flag.Duration("interval", cfg.SweepInterval, "time between sweeps")
	connectionTTL := flag.Duration("connection-ttl", cfg.ConnectionTTL, "expire pending connections older than this (0 disables)")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()
	if *interval <= 0 {
		log.Fatalf("--interval must be positive, got %s", *interval)
	}

	logger := cfg.NewLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("unable to connect to database")
	}
	defer st.Close()

	sweeper := service.NewSweeper(st, service.Options{Logger: logger, Timeout: cfg.DBTimeout}, *connectionTTL)
	if *once {
		res, err := sweeper.Sweep(ctx)
		if err != nil {
			logger.WithError(err).Fatal("sweep failed")
		}
		logger.WithFields(logrus.Fields{"tickets": res.Tickets, "connections": res.Connections}).Info("sweep done")
		return
	}

	logger.WithFields(logrus.Fields{"interval": *interval, "connection_ttl": *connectionTTL}).Info("sweeper starting")
	sweeper.Run(ctx, *interval)
}
