// Package ocr routes images to an OCR provider according to the caller's
// subscription tier and runs the local recognition engine.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Engine is a recognition backend. Implementations need not be safe for
// concurrent use; Service serializes calls.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (Recognition, error)
	Close() error
}

type Recognition struct {
	Text       string
	Confidence float64 // 0..1
	Words      int
}

type EngineConfig struct {
	Languages      []string
	TessdataPrefix string
	Whitelist      string
}

type EngineFactory func(EngineConfig) (Engine, error)

// DefaultWhitelist limits recognition to what appears in utility bills and acts.
const DefaultWhitelist = "0123456789" +
	"АБВГДЕЁЖЗИЙКЛМНОПРСТУФХЦЧШЩЪЫЬЭЮЯабвгдеёжзийклмнопрстуфхцчшщъыьэюя" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz" +
	" .,;:-+/()%№\"'·³²|"

type Config struct {
	Languages        []string
	TessdataPrefix   string
	Whitelist        string
	Preprocess       bool
	TrialCostCeiling float64
	DefaultMode      UserMode
}

func DefaultConfig() Config {
	return Config{
		Languages:        []string{"rus", "eng"},
		Whitelist:        DefaultWhitelist,
		Preprocess:       true,
		TrialCostCeiling: 0.002,
		DefaultMode:      ModeDemo,
	}
}

type Request struct {
	Image             []byte
	MIMEType          string
	Mode              UserMode
	PreferredProvider string
}

type Service struct {
	cfg       Config
	registry  *Registry
	newEngine EngineFactory
	log       *slog.Logger

	initMu  sync.Mutex
	engine  Engine
	initErr error

	runMu sync.Mutex
}

func NewService(cfg Config, registry *Registry, newEngine EngineFactory, logger *slog.Logger) *Service {
	if registry == nil {
		registry = NewRegistry(DefaultProviders())
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"rus", "eng"}
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeDemo
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, registry: registry, newEngine: newEngine, log: logger}
}

func (s *Service) Registry() *Registry { return s.registry }

// Init starts the local engine once. A failure marks the local provider
// unavailable for good and is returned on every later call.
func (s *Service) Init(ctx context.Context) error {
	_, err := s.ensureEngine(ctx)
	return err
}

func (s *Service) ensureEngine(ctx context.Context) (Engine, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.engine != nil {
		return s.engine, nil
	}
	if s.initErr != nil {
		return nil, s.initErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.newEngine == nil {
		s.initErr = fmt.Errorf("%w: %s: no engine configured", ErrProviderUnavailable, ProviderTesseract)
		s.registry.MarkUnavailable(ProviderTesseract)
		return nil, s.initErr
	}
	start := time.Now()
	eng, err := s.newEngine(EngineConfig{
		Languages:      s.cfg.Languages,
		TessdataPrefix: s.cfg.TessdataPrefix,
		Whitelist:      s.cfg.Whitelist,
	})
	if err != nil {
		s.registry.MarkUnavailable(ProviderTesseract)
		s.initErr = fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, ProviderTesseract, err)
		s.log.Error("ocr.init.failed", "provider", ProviderTesseract, "err", err)
		return nil, s.initErr
	}
	s.log.Info("ocr.init.ok", "provider", ProviderTesseract,
		"languages", strings.Join(s.cfg.Languages, "+"), "elapsed_ms", time.Since(start).Milliseconds())
	s.engine = eng
	return eng, nil
}

func (s *Service) Shutdown() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.engine == nil {
		return nil
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	err := s.engine.Close()
	s.engine = nil
	if err != nil {
		return fmt.Errorf("close ocr engine: %w", err)
	}
	return nil
}

// Process selects a provider and recognizes req.Image. Exhaustion and engine
// start-up failures are errors; recognition failures are a FailedResult.
func (s *Service) Process(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = s.cfg.DefaultMode
	}
	p, err := SelectProvider(s.registry.Providers(), req.MIMEType, int64(len(req.Image)), mode, req.PreferredProvider, s.cfg.TrialCostCeiling)
	if err != nil {
		s.log.Warn("ocr.select.none", "mime", req.MIMEType, "size", len(req.Image), "mode", mode)
		return nil, fmt.Errorf("%w (mime=%s size=%d mode=%s)", err, req.MIMEType, len(req.Image), mode)
	}
	if !p.Local {
		s.log.Warn("ocr.provider.stub", "provider", p.ID)
		return StubResult{Provider: p.ID, Warning: p.Name + " is not implemented"}, nil
	}

	eng, err := s.ensureEngine(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	img := req.Image
	pre := false
	if s.cfg.Preprocess {
		if out, perr := Preprocess(img); perr != nil {
			s.log.Warn("ocr.preprocess.skipped", "err", perr)
		} else {
			img, pre = out, true
		}
	}

	s.runMu.Lock()
	rec, err := eng.Recognize(ctx, img)
	s.runMu.Unlock()
	if err != nil {
		s.log.Warn("ocr.recognize.failed", "provider", p.ID, "err", err)
		return FailedResult{Provider: p.ID, Err: err}, nil
	}
	conf := min(max(rec.Confidence, 0), 1)
	s.log.Debug("ocr.recognize.ok", "provider", p.ID, "chars", len(rec.Text), "confidence", conf,
		"elapsed_ms", time.Since(start).Milliseconds())
	return EngineResult{
		Provider:     p.ID,
		Text:         rec.Text,
		Confidence:   conf,
		Words:        rec.Words,
		Preprocessed: pre,
		Elapsed:      time.Since(start),
	}, nil
}
