package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"orgchart/api/internal/app"
	"orgchart/api/internal/config"
	"orgchart/api/internal/logging"
	"orgchart/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("bootstrap failed")
	}
	defer rt.Close()

	if rt.DB != nil {
		if err := store.ApplyMigrations(ctx, rt.DB, store.Migrations()); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
	}

	service := rt.Service()
	go service.RunJanitor(ctx, time.Minute)

	httpServer := app.NewHTTPServer(service, app.ServerOptions{
		CORSOrigin:   cfg.CORSOrigin,
		CallerHeader: cfg.Directory.CallerHeader,
		MetricsPath:  cfg.MetricsPath,
		Log:          log,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":      cfg.Addr,
			"directory": cfg.Directory.Backend,
		}).Info("org chart API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}
