package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// LibSQLEmbeddedConfig holds configuration for embedded libsql connections
type LibSQLEmbeddedConfig struct {
	DatabasePath string // Path to .db file
	Logger       zerolog.Logger
}

// ConnectToDB opens the embedded libsql database at path, creating it when missing.
func ConnectToDB(path string, logger zerolog.Logger) (*sql.DB, error) {
	cfg := &LibSQLEmbeddedConfig{DatabasePath: path, Logger: logger}
	return ConnectToDBWithConfig(cfg)
}

func ConnectToDBWithConfig(config *LibSQLEmbeddedConfig) (*sql.DB, error) {
	logger := config.Logger.With().Str("component", "db").Logger()

	dir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(config.DatabasePath); os.IsNotExist(err) {
		logger.Info().Str("path", config.DatabasePath).Msg("Database not found, creating a new one")
		file, err := os.Create(config.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("could not create db at path %s: %w", config.DatabasePath, err)
		}
		file.Close()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000&_temp_store=memory",
		config.DatabasePath)

	logger.Debug().Str("dsn", dsn).Msg("Connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	if err := verifyEmbeddedLibSQL(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// verifyEmbeddedLibSQL checks connectivity and the vector functions retrieval depends on.
func verifyEmbeddedLibSQL(db *sql.DB, logger zerolog.Logger) error {
	ctx := context.Background()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}

	var vtype string
	if err := db.QueryRowContext(ctx, "SELECT typeof(vector_distance_cos(vector32('[1,2,3]'), vector32('[1,2,3]')))").Scan(&vtype); err != nil {
		return fmt.Errorf("libsql build lacks vector functions: %w", err)
	}
	logger.Debug().Str("type", vtype).Msg("Vector functions verified")

	return nil
}
