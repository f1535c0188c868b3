package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"esgdocs/internal/app"
	"esgdocs/internal/config"
	"esgdocs/internal/listener"
	"esgdocs/internal/ocr/tesseract"
	"esgdocs/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logger := app.NewLogger(cfg, os.Stderr)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := app.Build(cfg, db, tesseract.New, logger)
	defer a.Close()
	a.Start(ctx)

	logger.Info("listener.start", "provider", cfg.MailListenerProvider, "label", cfg.MailListenerLabel, "interval_sec", cfg.MailListenerIntervalSec)
	must(listener.NewService(db, cfg, a.Processor, logger).Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
