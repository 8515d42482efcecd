package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneLogs deletes files in dir matching pattern whose modification time is
// more than keepDays old. Paths listed in keep survive regardless of age;
// keepDays <= 0 disables pruning. It returns the number of files removed.
func PruneLogs(logger *slog.Logger, dir, pattern string, keepDays int, keep ...string) int {
	if keepDays <= 0 || dir == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0
	}
	protected := make(map[string]bool, len(keep))
	for _, path := range keep {
		protected[filepath.Clean(path)] = true
	}

	cutoff := time.Now().AddDate(0, 0, -keepDays)
	removed := 0
	for _, path := range matches {
		if protected[filepath.Clean(path)] {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "old log not removed", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check ownership of the log directory"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Info("old logs pruned", Int("removed", removed), String("dir", dir), String(FieldEventType, "log_pruned"))
	}
	return removed
}
