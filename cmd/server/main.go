package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnp2003/captify-ai/app"
	"github.com/johnp2003/captify-ai/app/config"
	"github.com/johnp2003/captify-ai/app/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl := logger.New(cfg.Logs.Level, cfg.Logs.Format)
	defer func() { _ = zl.Sync() }()
	logr := logger.NewZapAdapter(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, deps, err := app.Bootstrap(ctx, cfg, logr)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}
	defer deps.Close()

	httpSrv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.App.Port,
		Handler:           app.NewRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("listening", map[string]interface{}{"addr": httpSrv.Addr, "env": cfg.App.Env})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.WithError(err).Error("server stopped", nil)
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.WithError(err).Error("graceful shutdown failed", nil)
	}
	logr.Info("server stopped", nil)
}
