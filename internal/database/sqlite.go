package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sqliteMemoryName = ":memory:"

func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn, memory, err := buildSQLiteDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cfg))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Shared-cache memory databases vanish with their last connection.
	if memory {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else if err := configurePool(db, cfg); err != nil {
		return nil, err
	}

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// buildSQLiteDSN returns the DSN for cfg and whether it names an in-memory
// database. File databases get WAL and a busy timeout; Options override both.
func buildSQLiteDSN(cfg Config) (string, bool, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, sqliteMemoryName), nil
	}

	query := url.Values{}
	query.Set("_foreign_keys", "1")

	path := strings.TrimSpace(cfg.Path)
	memory := path == "" || strings.EqualFold(path, sqliteMemoryName)
	if memory {
		path = sqliteMemoryName
		query.Set("cache", "shared")
	} else {
		if err := ensureDir(path); err != nil {
			return "", false, fmt.Errorf("create sqlite directory: %w", err)
		}
		query.Set("_journal_mode", "WAL")
		query.Set("_busy_timeout", "5000")
	}
	for key, value := range cfg.Options {
		query.Set(key, value)
	}
	return "file:" + filepath.ToSlash(path) + "?" + query.Encode(), memory, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
