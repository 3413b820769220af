package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ScanResult summarizes an initial repository scan.
type ScanResult struct {
	FilesIndexed int
	FilesFailed  int
	Elapsed      time.Duration
}

// Scan walks the repository and indexes every accepted file through the
// normal event path. Parsing fans out across the worker pool; a failed file
// is logged and skipped, never fatal to the scan.
func (p *Pipeline) Scan(ctx context.Context) (*ScanResult, error) {
	start := time.Now()

	var files []string
	root := p.filter.Abs(".")
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, ok := p.filter.Rel(path)
		if !ok {
			return nil
		}
		if d.IsDir() {
			if rel != "." && p.filter.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if p.filter.Accept(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ScanResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, rel := range files {
		g.Go(func() error {
			ticket := p.takeTicket(rel)
			err := p.parseAndCommit(gctx, rel, ticket)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FilesFailed++
				p.logger.Warn("scan.file_failed", "path", rel, "error", err)
				return nil
			}
			res.FilesIndexed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(start)
	p.logger.Info("scan.done",
		"files", res.FilesIndexed,
		"failed", res.FilesFailed,
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}
