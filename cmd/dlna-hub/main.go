package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/strefethen/dlna-hub-go/internal/config"
	"github.com/strefethen/dlna-hub-go/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("dlna-hub: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	handler, shutdownHandler, err := server.NewHandler(cfg, server.Options{})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Host + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("dlna-hub listening on %s (media server %s)", srv.Addr, cfg.MediaServerURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// HTTP drains first so in-flight control calls and GENA notifies finish
	// before their sessions are disposed.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	return shutdownHandler(shutdownCtx)
}
