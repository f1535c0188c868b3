package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

type BatchItem struct {
	Path   string
	Result DocumentResult
	Err    error
}

// ProcessBatch runs files through ProcessFile with at most workers in flight.
// Per-file failures are kept on the item; only cancellation aborts the batch.
// Items come back in input order. progress, when set, is called once per
// finished file from one goroutine at a time.
func (s *ProcessingService) ProcessBatch(ctx context.Context, paths []string, workers int, progress func(BatchItem)) ([]BatchItem, error) {
	items := make([]BatchItem, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.ProcessFile(gctx, path)
			items[i] = BatchItem{Path: path, Result: res, Err: err}
			if progress != nil {
				mu.Lock()
				progress(items[i])
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return items, err
	}
	return items, ctx.Err()
}

// CollectFiles lists regular files under dir, skipping hidden entries.
func CollectFiles(dir string, recursive bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := path != dir && strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if path != dir && (hidden || !recursive) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden && d.Type().IsRegular() {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}
