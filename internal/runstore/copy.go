package runstore

import (
	"context"
	"errors"
	"fmt"
)

// CopyStats counts what CopyRuns moved.
type CopyStats struct {
	Runs        int64
	Assignments int64
	Skipped     int64
}

// CopyRuns copies every run in src into dst, oldest first. Runs whose digest
// is already in dst are skipped. With dryRun set nothing is written and the
// stats report what would have been copied and skipped.
func CopyRuns(ctx context.Context, src, dst *Store, dryRun bool) (CopyStats, error) {
	var stats CopyStats

	runs, err := src.ListRuns(ctx, 0)
	if err != nil {
		return stats, fmt.Errorf("list source runs: %w", err)
	}

	for i := len(runs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		run, err := src.GetRun(ctx, runs[i].ID)
		if err != nil {
			return stats, fmt.Errorf("load run %d: %w", runs[i].ID, err)
		}

		if dryRun {
			present, err := dst.HasDigest(ctx, run.Digest)
			if err != nil {
				return stats, fmt.Errorf("check run %s: %w", run.Digest, err)
			}
			if present {
				stats.Skipped++
			} else {
				stats.Runs++
				stats.Assignments += int64(len(run.Assignments))
			}
			continue
		}

		run.ID = 0
		err = dst.RecordRun(ctx, run)
		if errors.Is(err, ErrDuplicateRun) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("copy run %s: %w", run.Digest, err)
		}
		stats.Runs++
		stats.Assignments += int64(len(run.Assignments))
	}
	return stats, nil
}
