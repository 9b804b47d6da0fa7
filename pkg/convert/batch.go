package convert

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultBatchDir is the output root for batch conversions.
const DefaultBatchDir = "xm2live_converted_tracks"

// BatchOptions controls a directory conversion run.
type BatchOptions struct {
	Config
	OutDir    string // defaults to DefaultBatchDir under the input dir
	Recursive bool
	Force     bool // reconvert even when the project dir already exists
	Workers   int  // defaults to 4
}

// BatchResult is the outcome for one discovered module file.
type BatchResult struct {
	Path    string
	Skipped bool
	Result  *Result
	Err     error
}

// BatchSummary aggregates a finished run.
type BatchSummary struct {
	Converted int
	Skipped   int
	Failed    int
	Results   []BatchResult
}

// FindModules lists the .xm and .mod files under dir, sorted. Without
// recursive only the directory itself is scanned.
func FindModules(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			// Never descend into our own output.
			if d.Name() == DefaultBatchDir {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".xm", ".mod":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ConvertDir discovers module files under dir and converts them on a
// small worker pool. Individual failures are recorded, not fatal; the
// run stops early only when ctx is cancelled.
func ConvertDir(ctx context.Context, dir string, opts BatchOptions, log *zap.Logger) (*BatchSummary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = filepath.Join(dir, DefaultBatchDir)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 4
	}

	files, err := FindModules(dir, opts.Recursive)
	if err != nil {
		return nil, err
	}
	log.Info("starting batch conversion",
		zap.String("dir", dir),
		zap.String("out", outDir),
		zap.Int("files", len(files)),
		zap.Int("workers", workers))

	jobs := make(chan string)
	results := make(chan BatchResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- convertOne(path, outDir, opts)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	summary := &BatchSummary{}
	for r := range results {
		switch {
		case r.Skipped:
			summary.Skipped++
			log.Debug("skipping existing project", zap.String("file", r.Path))
		case r.Err != nil:
			summary.Failed++
			log.Warn("conversion failed", zap.String("file", r.Path), zap.Error(r.Err))
		default:
			summary.Converted++
			log.Info("converted",
				zap.String("file", r.Path),
				zap.Int("tracks", r.Result.Tracks),
				zap.Int("notes", r.Result.Notes),
				zap.Int("samples", r.Result.Samples))
		}
		summary.Results = append(summary.Results, r)
	}
	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].Path < summary.Results[j].Path
	})

	log.Info("batch conversion finished",
		zap.Int("converted", summary.Converted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func convertOne(path, outDir string, opts BatchOptions) BatchResult {
	base := BaseName(path)
	projectDir := filepath.Join(outDir, base+"_Ableton_Project")
	if !opts.Force {
		if _, err := os.Stat(projectDir); err == nil {
			return BatchResult{Path: path, Skipped: true}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return BatchResult{Path: path, Err: err}
		}
	}
	res, err := ConvertFile(path, outDir, opts.Config)
	return BatchResult{Path: path, Result: res, Err: err}
}
