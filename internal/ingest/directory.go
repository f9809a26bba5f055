package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cardscan/internal/boxtext"
	"github.com/joseph-ayodele/cardscan/internal/common"
	"github.com/joseph-ayodele/cardscan/internal/source"
)

type FileResult struct {
	Path      string
	JobID     uuid.UUID
	Regions   *boxtext.RegionList
	ErrorCode string
	Err       string
}

type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

type Scanner struct {
	Proc Processor
	Log  *slog.Logger
}

func NewScanner(proc Processor, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{Proc: proc, Log: log}
}

// ScanDirectory walks root, filters by includeExts (or the default image set), skips hidden
// entries if requested, and recognizes each matching file in walk order. Per-file failures
// are recorded in the results; only a bad root or a done ctx fails the whole scan.
func (s *Scanner) ScanDirectory(ctx context.Context, root string, includeExts []string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	if info, err := os.Stat(root); err != nil {
		return nil, DirStats{}, common.NewAppError(common.CodeSourceNotFound, "scan root "+root, fmt.Errorf("%w: %w", common.ErrSourceNotFound, err))
	} else if !info.IsDir() {
		return nil, DirStats{}, fmt.Errorf("scan root %s is not a directory", root)
	}

	start := time.Now()
	exts := extSet(includeExts)
	var results []FileResult
	var stats DirStats

	s.Log.Info("ingest.scan.start", "root", root, "skip_hidden", skipHidden)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !allowed(path, exts) {
			return nil
		}
		stats.Matched++

		results = append(results, s.scanFile(ctx, path))
		if results[len(results)-1].Err != "" {
			stats.Failed++
		} else {
			stats.Succeeded++
		}
		return nil
	})

	s.Log.Info("ingest.scan.done",
		"root", root,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

func (s *Scanner) scanFile(ctx context.Context, path string) FileResult {
	data, err := os.ReadFile(path)
	if err != nil {
		s.Log.Warn("ingest.scan.read_error", "path", path, "error", err)
		return FileResult{Path: path, ErrorCode: common.CodeSourceNotFound, Err: err.Error()}
	}
	res, err := s.Proc.RunSource(ctx, source.FromFile(path, data))
	if err != nil {
		return FileResult{Path: path, JobID: res.JobID, ErrorCode: common.CodeOf(err), Err: err.Error()}
	}
	return FileResult{Path: path, JobID: res.JobID, Regions: res.Regions}
}
