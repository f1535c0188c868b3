// Package parsers turns raw document bytes into typed ESG quantities. Every
// parser reports failure through ParserResult and never panics past Parse.
package parsers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"esgdocs/internal"
)

type Parser interface {
	Name() string
	CanParse(filename, mimeType string) bool
	Parse(ctx context.Context, buf []byte, opts internal.ParseOptions) internal.ParserResult
}

// guard runs fn and converts its error or panic into a failed ParserResult.
func guard(start time.Time, fn func() (*internal.ParsedDocumentData, error)) (res internal.ParserResult) {
	defer func() {
		if r := recover(); r != nil {
			res = internal.ParserResult{Success: false, Error: fmt.Sprintf("parser panic: %v", r), ProcessingTime: time.Since(start)}
		}
	}()
	data, err := fn()
	elapsed := time.Since(start)
	if err != nil {
		return internal.ParserResult{Success: false, Error: err.Error(), ProcessingTime: elapsed}
	}
	data.Metadata.ProcessingTimeMs = elapsed.Milliseconds()
	return internal.ParserResult{Success: true, Data: data, ProcessingTime: elapsed}
}

// safely calls fn and turns a panic into an error, so a crashing third-party
// decoder in one fallback attempt does not abort the rest of the chain.
func safely[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func allowlisted(filename, mimeType string, exts, mimes []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	for _, m := range mimes {
		if mt == m {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("parse aborted: %w", err)
	}
	return nil
}
