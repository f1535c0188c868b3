// Package app wires configuration into a ready processing service.
package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"esgdocs/internal/config"
	"esgdocs/internal/detect"
	"esgdocs/internal/llm"
	"esgdocs/internal/matching"
	"esgdocs/internal/metrics"
	"esgdocs/internal/ocr"
	"esgdocs/internal/pipeline"
	"esgdocs/internal/storage"
)

type App struct {
	Config    config.Config
	DB        *storage.DB
	OCR       *ocr.Service
	Registry  *pipeline.Registry
	Factory   *pipeline.Factory
	Analyzer  *matching.Analyzer
	Collector *metrics.Collector
	Processor *pipeline.ProcessingService
	Log       *slog.Logger
}

// Build assembles the pipeline. db may be nil for one-off runs; metrics and
// document rows are then not persisted. newEngine is ignored when OCR is
// disabled.
func Build(cfg config.Config, db *storage.DB, newEngine ocr.EngineFactory, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, DB: db, Log: logger}

	if cfg.OCREnabled {
		a.OCR = ocr.NewService(cfg.OCRConfig(), nil, newEngine, logger.With("component", "ocr"))
	}
	a.Registry = pipeline.DefaultRegistry(a.OCR)
	detector := detect.New(detect.Options{Strict: cfg.DetectStrict})
	a.Factory = pipeline.NewFactory(a.Registry, detector, cfg.ParseOptions(), logger.With("component", "parse"))

	var enhancer matching.EntityEnhancer = matching.NoopEnhancer{}
	if cfg.LLMEnabled {
		enhancer = llm.NewClient(cfg.LLMConfig(), logger.With("component", "llm"))
	}
	a.Analyzer = matching.NewAnalyzer(cfg.MatchingConfig(), enhancer, logger.With("component", "matching"))

	if db != nil {
		a.Collector = metrics.NewCollector(db, logger.With("component", "metrics"))
	}
	a.Processor = pipeline.NewProcessingService(a.Factory, a.Analyzer, a.Collector, db, pipeline.Options{
		Parse:            cfg.ParseOptions(),
		UseExternalModel: cfg.LLMEnabled,
	}, logger)
	return a
}

// Start warms up OCR. A failed warm-up is logged and leaves the service
// running with image parsing disabled.
func (a *App) Start(ctx context.Context) {
	if a.OCR == nil {
		return
	}
	if err := a.OCR.Init(ctx); err != nil {
		a.Log.Warn("app.ocr.unavailable", "err", err)
	}
}

func (a *App) Close() error {
	if a.OCR != nil {
		return a.OCR.Shutdown()
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
