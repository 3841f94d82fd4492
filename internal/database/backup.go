package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/retention"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// BackupService takes periodic online copies of the SQLite file. Copies are
// named <database>_<timestamp>.db after the source file, so several
// databases can share one storage directory.
type BackupService struct {
	dbPath  string
	pattern retention.Pattern
	config  config.BackupConfig
	logger  *zerolog.Logger
}

func NewBackupService(dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		dbPath:  dbPath,
		pattern: BackupPattern(dbPath),
		config:  cfg,
		logger:  logger,
	}
}

// BackupPattern matches the backups taken of the database at dbPath.
func BackupPattern(dbPath string) retention.Pattern {
	base := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	return retention.Pattern{Prefix: base + "_", Suffix: ".db"}
}

func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Backup service started")

	interval := 24 * time.Hour
	if s.config.Schedule != "" {
		if d, err := time.ParseDuration(s.config.Schedule); err == nil {
			interval = d
		} else {
			s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("Failed to parse backup schedule, using default 24h")
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first backup immediately
	if err := s.PerformBackup(); err != nil {
		s.logger.Error().Err(err).Msg("Initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PerformBackup(); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

func (s *BackupService) PerformBackup() error {
	if s.dbPath == "" || s.dbPath == ":memory:" {
		return fmt.Errorf("backup requires a file database, got %q", s.dbPath)
	}
	if _, err := os.Stat(s.config.StoragePath); os.IsNotExist(err) {
		if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
			return fmt.Errorf("failed to create backup directory: %w", err)
		}
	}

	timestamp := time.Now().Format("20060102_150405.000")
	backupFileName := s.pattern.Prefix + timestamp + s.pattern.Suffix
	backupPath := filepath.Join(s.config.StoragePath, backupFileName)

	s.logger.Info().Str("path", backupPath).Msg("Performing database backup using VACUUM INTO")

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	_, err = db.Exec("VACUUM INTO ?", backupPath)
	if err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, falling back to file copy")
		return s.performBackupFallback(backupPath)
	}

	s.logger.Info().Msg("Backup completed successfully")
	return nil
}

func (s *BackupService) performBackupFallback(backupPath string) error {
	source, err := os.Open(s.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer destination.Close()

	// Not atomic: concurrent writes may leave the copy inconsistent.
	_, err = io.Copy(destination, source)
	if err != nil {
		return err
	}

	s.logger.Info().Msg("Fallback backup completed successfully")
	return nil
}

// CleanupOldBackups removes this database's backups older than the
// retention window. Other files in the directory are left alone.
func (s *BackupService) CleanupOldBackups() {
	if _, err := retention.Sweep(s.config.StoragePath, s.pattern, s.config.RetentionDays, time.Now(), s.logger); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clean up old backups")
	}
}
