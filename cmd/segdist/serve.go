package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-segdist/internal/server"
	"github.com/swdee/go-segdist/pipeline"
)

// runServer serves the detector pool over HTTP until interrupted
func runServer(cfg appConfig, opts pipeline.Options, newEngine pipeline.EngineFactory,
	log *logrus.Logger) error {

	pool, err := pipeline.NewPool(cfg.PoolSize, newEngine, opts)

	if err != nil {
		return fmt.Errorf("error creating detector pool: %w", err)
	}

	defer pool.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(pool, opts.Angles, opts.Config, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		log.WithFields(logrus.Fields{
			"addr":      cfg.Listen,
			"pool_size": cfg.PoolSize,
		}).Info("HTTP service listening")

		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil

	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
