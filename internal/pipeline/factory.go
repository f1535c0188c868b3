// Package pipeline wires detection, parsing, refinement, metrics and storage
// into the document processing flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"esgdocs/internal"
	"esgdocs/internal/chain"
	"esgdocs/internal/detect"
	"esgdocs/internal/parsers"
)

var ErrNoParser = errors.New("no parser available")

type ParseOutcome struct {
	Result     internal.ParserResult
	Info       internal.FormatInfo
	ParserUsed string
	Attempts   []chain.Outcome
}

// FallbackAttempts counts parsers that ran after the first one.
func (o ParseOutcome) FallbackAttempts() int {
	return max(0, len(o.Attempts)-1)
}

type Factory struct {
	registry *Registry
	detector *detect.Detector
	opts     internal.ParseOptions
	log      *slog.Logger
}

func NewFactory(registry *Registry, detector *detect.Detector, opts internal.ParseOptions, logger *slog.Logger) *Factory {
	if detector == nil {
		detector = detect.New(detect.Options{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{registry: registry, detector: detector, opts: opts, log: logger}
}

func (f *Factory) ParseFile(ctx context.Context, filename string, buf []byte, mimeType string) ParseOutcome {
	return f.ParseFileWith(ctx, filename, buf, mimeType, f.opts)
}

// ParseFileWith detects the format and runs the recommended parser, then the
// strategy fallbacks in order. Each attempt gets the strategy timeout. Running
// out of parsers is a failed result, never an error.
func (f *Factory) ParseFileWith(ctx context.Context, filename string, buf []byte, mimeType string, opts internal.ParseOptions) ParseOutcome {
	start := time.Now()
	info := f.detector.Detect(filename, buf, mimeType)
	out := ParseOutcome{Info: info}

	if opts.Encoding == "" {
		opts.Encoding = info.Encoding
	}
	if opts.Delimiter == "" {
		opts.Delimiter = info.Delimiter
	}
	opts.Filename = filename

	plan := f.plan(info, filename, mimeType)
	if len(plan) == 0 {
		out.Result = internal.ParserResult{
			Success:        false,
			Error:          fmt.Sprintf("%v for format %s", ErrNoParser, info.Format),
			ProcessingTime: time.Since(start),
		}
		f.log.Warn("pipeline.parse.no_parser", "filename", filename, "format", info.Format)
		return out
	}

	attempts := make([]chain.Attempt[internal.ParserResult], 0, len(plan))
	for _, p := range plan {
		attempts = append(attempts, chain.Attempt[internal.ParserResult]{
			Name: p.Name(),
			Run: func(ctx context.Context) (internal.ParserResult, error) {
				return runParser(ctx, p, buf, opts, info.Strategy.Timeout)
			},
		})
	}

	res, used, outcomes, err := chain.First(ctx, attempts...)
	out.Attempts = outcomes
	for _, o := range outcomes {
		if o.Err != nil {
			f.log.Info("pipeline.parse.fallback", "filename", filename, "parser", o.Name, "err", o.Err, "elapsed_ms", o.Duration.Milliseconds())
		}
	}
	if err != nil {
		out.Result = internal.ParserResult{Success: false, Error: err.Error(), ProcessingTime: time.Since(start)}
		return out
	}
	out.Result = res
	out.ParserUsed = used
	f.log.Debug("pipeline.parse.ok", "filename", filename, "parser", used, "format", info.Format,
		"confidence", res.Data.Confidence, "elapsed_ms", res.ProcessingTime.Milliseconds())
	return out
}

func (f *Factory) plan(info internal.FormatInfo, filename, mimeType string) []parsers.Parser {
	names := append([]string{info.Strategy.RecommendedParser}, info.Strategy.FallbackParsers...)
	var plan []parsers.Parser
	seen := map[string]bool{}
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if p, ok := f.registry.Get(name); ok {
			plan = append(plan, p)
		}
	}
	if len(plan) == 0 && info.Strategy.RecommendedParser == "" {
		if p, ok := f.registry.ForFile(filename, mimeType); ok {
			plan = append(plan, p)
		}
	}
	return plan
}

func runParser(ctx context.Context, p parsers.Parser, buf []byte, opts internal.ParseOptions, timeout time.Duration) (internal.ParserResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	done := make(chan internal.ParserResult, 1)
	go func() { done <- p.Parse(ctx, buf, opts) }()

	select {
	case res := <-done:
		if !res.Success {
			return res, errors.New(res.Error)
		}
		return res, nil
	case <-ctx.Done():
		return internal.ParserResult{}, fmt.Errorf("timed out: %w", ctx.Err())
	}
}
