package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AdrienChampion/sat-micro-rust/internal/logctx"
)

// PartialSuffix marks a file whose body is still being written.
const PartialSuffix = ".part"

// RemovePartialFiles deletes the partial files in dir that were last written
// more than olderThan ago and returns how many were removed. Recent partial
// files may belong to a run still in progress and are kept; an olderThan of
// zero removes them all. A missing dir is not an error.
func RemovePartialFiles(ctx context.Context, dir string, olderThan time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to read directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PartialSuffix) {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			// Renamed or removed by its writer since ReadDir.
			continue
		}

		if olderThan > 0 && info.ModTime().After(cutoff) {
			logger.Debug("keeping recent partial file", "file", path)

			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to delete partial file", "file", path, "err", err)

			return removed, fmt.Errorf("failed to delete partial file: %w", err)
		}

		logger.Info("deleted partial file", "file", path)

		removed++
	}

	return removed, nil
}
