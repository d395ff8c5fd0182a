// Package backup archives every run in a store to a single compressed file
// and restores runs from such archives.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvandessel/tradernet/internal/config"
	"github.com/nvandessel/tradernet/internal/store"
)

const (
	filePrefix = "tradernet-backup-"
	fileExt    = ".tnb"
)

// DefaultDir returns the default backup directory (~/.tradernet/backups/).
func DefaultDir() (string, error) {
	home, err := config.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "backups"), nil
}

// GeneratePath creates a timestamped backup filename in dir. Names sort in
// creation order.
func GeneratePath(dir string) string {
	ts := time.Now().UTC().Format("20060102-150405.000000")
	return filepath.Join(dir, filePrefix+ts+fileExt)
}

func isBackupFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExt)
}

// Backup writes every run in rs to path.
func Backup(ctx context.Context, rs store.RunStore, path string) (*Header, error) {
	summaries, err := rs.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	archive := &Archive{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Runs:      make([]*store.Run, 0, len(summaries)),
	}
	for _, s := range summaries {
		run, err := rs.GetRun(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", s.ID, err)
		}
		archive.Runs = append(archive.Runs, run)
	}

	return Write(path, archive)
}

// RestoreMode controls how restore handles existing runs.
type RestoreMode string

const (
	// RestoreMerge skips runs whose id already exists (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace deletes every run before restoring.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode maps "" and "merge" to RestoreMerge and "replace" to
// RestoreReplace.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch s {
	case "", string(RestoreMerge):
		return RestoreMerge, nil
	case string(RestoreReplace):
		return RestoreReplace, nil
	}
	return "", fmt.Errorf("unknown restore mode %q (valid: merge, replace)", s)
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	RunsRestored int `json:"runs_restored"`
	RunsSkipped  int `json:"runs_skipped"`
	RunsDeleted  int `json:"runs_deleted,omitempty"`
}

// Restore imports the runs archived at path into rs. Run ids and creation
// times are preserved.
func Restore(ctx context.Context, rs store.RunStore, path string, mode RestoreMode) (*RestoreResult, error) {
	archive, err := Read(path)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	if mode == RestoreReplace {
		existing, err := rs.ListRuns(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		for _, s := range existing {
			if err := rs.DeleteRun(ctx, s.ID); err != nil {
				return nil, fmt.Errorf("failed to delete run %s: %w", s.ID, err)
			}
			result.RunsDeleted++
		}
	}

	for _, run := range archive.Runs {
		if mode == RestoreMerge {
			_, err := rs.GetRun(ctx, run.ID)
			if err == nil {
				result.RunsSkipped++
				continue
			}
			if !errors.Is(err, store.ErrRunNotFound) {
				return nil, fmt.Errorf("failed to check existing run %s: %w", run.ID, err)
			}
		}

		if _, err := rs.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", run.ID, err)
		}
		result.RunsRestored++
	}

	return result, nil
}
