package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Config names a driver and how to reach it.
type Config struct {
	Driver   string
	Path     string // File path, sqlite only
	DSN      string // Full DSN wins over the individual fields
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string
}

// Open dials the configured database and returns a gorm handle.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	switch driver {
	case "sqlite":
		return openSQLite(cfg)
	case "postgres", "postgresql":
		return openPostgres(cfg)
	case "mysql":
		return openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Prepare migrates the schema and installs dialect-specific constraints.
// Convenience helper used during application start-up.
func Prepare(db *gorm.DB) error {
	if db == nil {
		return errors.New("database handle is nil")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if err := EnsurePendingInvitationIndex(db); err != nil {
		return fmt.Errorf("pending invitation index: %w", err)
	}

	return nil
}
