// Package retention prunes generated files (database backups, booking
// exports) that have outlived their retention window.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Pattern selects the files one producer owns inside a shared directory.
type Pattern struct {
	Prefix string
	Suffix string
}

func (p Pattern) Match(name string) bool {
	return strings.HasPrefix(name, p.Prefix) && strings.HasSuffix(name, p.Suffix)
}

// Sweep deletes regular files in dir matching p whose modification time is
// more than days old. A non-positive days keeps everything. It returns the
// names it removed.
func Sweep(dir string, p Pattern, days int, now time.Time, logger *zerolog.Logger) ([]string, error) {
	if days <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	cutoff := now.AddDate(0, 0, -days)
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !p.Match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		logger.Info().Str("file", entry.Name()).Msg("Deleting expired file")
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to delete expired file")
			continue
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}
