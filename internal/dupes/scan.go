package dupes

import (
	"context"
	"fmt"
	"time"

	"media-worker/internal/hashindex"
	"media-worker/internal/logging"
	"media-worker/internal/metrics"
)

// Source lists fingerprints under a scope.
type Source interface {
	List(ctx context.Context, scope string, recursive bool) ([]hashindex.Entry, error)
}

// Scan loads fingerprints for scope from src and clusters them. Entries made
// by another algorithm than hashindex.AlgorithmPHash are not comparable and
// are skipped.
func Scan(ctx context.Context, src Source, scope string, recursive bool, opts Options) (Report, error) {
	if err := opts.Validate(); err != nil {
		return Report{}, err
	}
	start := time.Now()

	rows, err := src.List(ctx, scope, recursive)
	if err != nil {
		return Report{}, fmt.Errorf("load fingerprints: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		if r.Algorithm != hashindex.AlgorithmPHash {
			skipped++
			continue
		}
		entries = append(entries, Entry{Path: r.Path, Hash: r.Hash})
	}
	if skipped > 0 {
		logging.Debug("Duplicate scan skipped %d entries with a foreign hash algorithm", skipped)
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Find(entries, opts)
	metrics.DuplicateScanDuration.Observe(time.Since(start).Seconds())
	metrics.DuplicateClustersFound.Set(float64(len(report.Clusters)))
	logging.Debug("Duplicate scan of %q: %d files, %d pairs, %d clusters in %v",
		scope, report.Files, len(report.Pairs), len(report.Clusters), time.Since(start).Round(time.Millisecond))
	return report, nil
}
