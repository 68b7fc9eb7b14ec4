package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/punchamoorthee/lendex/internal/api"
	"github.com/punchamoorthee/lendex/internal/config"
	"github.com/punchamoorthee/lendex/internal/service"
	"github.com/punchamoorthee/lendex/internal/store"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply Postgres migrations before serving")
	sweep := flag.Bool("sweep", false, "run the expiry sweeper in-process")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrate && cfg.Driver == config.DriverPostgres {
		if err := store.Migrate(ctx, cfg.DBSource); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
	}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("unable to connect to database")
	}
	defer st.Close()

	// Initialize Layers
	opts := service.Options{
		Logger:       logger,
		Timeout:      cfg.DBTimeout,
		DiscoverPool: cfg.DiscoverPool,
	}
	tickets := service.NewTicketService(st, opts)
	deals := service.NewDealService(st, opts)
	handler := api.NewHandler(tickets, deals, logger)

	if *sweep {
		go service.NewSweeper(st, opts, cfg.ConnectionTTL).Run(ctx, cfg.SweepInterval)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.Router(api.RouterConfig{
			JWTSecret:      []byte(cfg.JWTSecret),
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.WithFields(logrus.Fields{"port": cfg.Port, "driver": cfg.Driver, "env": cfg.Env}).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server failed")
	}
	logger.Info("server stopped")
}
