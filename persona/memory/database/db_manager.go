// Package database owns the libSQL handle: goose migrations, pragmas, pooling and transactions.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/persona-rag/persona/db"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/migrations"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// DBManager handles all database operations for one embedded database.
type DBManager struct {
	config *Config
	db     *sql.DB
	logger zerolog.Logger

	capMu sync.RWMutex
	caps  Capabilities
}

// NewDBManager opens the database, applies migrations and checks the vector column width.
func NewDBManager(ctx context.Context, config *Config, logger zerolog.Logger) (*DBManager, error) {
	if config.EmbeddingDims <= 0 || config.EmbeddingDims > 65536 {
		return nil, fmt.Errorf("EMBEDDING_DIMS must be between 1 and 65536 inclusive: %d", config.EmbeddingDims)
	}

	logger = logger.With().Str("component", "database").Logger()
	conn, err := db.ConnectToDB(config.Path, logger)
	if err != nil {
		return nil, err
	}

	manager := &DBManager{config: config, db: conn, logger: logger}
	if err := manager.initialize(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	manager.configureConnectionPooling()
	manager.detectCapabilities(ctx)

	return manager, nil
}

// DB exposes the underlying handle to stores.
func (dm *DBManager) DB() *sql.DB { return dm.db }

// Close closes the database connection.
func (dm *DBManager) Close() error {
	return dm.db.Close()
}

// initialize runs migrations, pragmas and the embedding width check.
func (dm *DBManager) initialize(ctx context.Context) error {
	if err := RunMigrations(ctx, dm.db); err != nil {
		return err
	}

	if err := dm.configurePragmaSettings(ctx); err != nil {
		return fmt.Errorf("failed to configure PRAGMA settings: %w", err)
	}

	if dbDims := detectDBEmbeddingDims(dm.db); dbDims > 0 && dbDims != dm.config.EmbeddingDims {
		return fmt.Errorf("embedding dims mismatch: document_chunks stores %d, embedder produces %d", dbDims, dm.config.EmbeddingDims)
	}
	return nil
}

// RunMigrations applies the embedded goose migrations with the Turso/libSQL dialect.
func RunMigrations(ctx context.Context, conn *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectTurso, conn, migrations.FS)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// detectDBEmbeddingDims introspects F32_BLOB size for document_chunks.embedding
func detectDBEmbeddingDims(conn *sql.DB) int {
	var sqlText string
	_ = conn.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name='document_chunks'").Scan(&sqlText)
	if sqlText == "" {
		return 0
	}
	low := strings.ToLower(sqlText)
	idx := strings.Index(low, "f32_blob(")
	if idx < 0 {
		return 0
	}
	rest := low[idx+len("f32_blob("):]
	end := strings.Index(rest, ")")
	if end <= 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest[:end]))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// configurePragmaSettings applies PRAGMA settings to the database
func (dm *DBManager) configurePragmaSettings(ctx context.Context) error {
	pragmaSettings := []struct {
		name  string
		value string
	}{
		{"journal_mode", dm.config.JournalMode},
		{"synchronous", dm.config.SyncMode},
		{"temp_store", dm.config.TempStore},
		{"busy_timeout", "5000"},
		{"foreign_keys", "ON"},
	}
	if dm.config.CacheSize != 0 {
		pragmaSettings = append(pragmaSettings, struct {
			name  string
			value string
		}{"cache_size", strconv.Itoa(dm.config.CacheSize)})
	}

	for _, setting := range pragmaSettings {
		if setting.value == "" {
			continue
		}
		query := fmt.Sprintf("PRAGMA %s = %s", setting.name, setting.value)
		if _, err := dm.db.ExecContext(ctx, query); err != nil {
			// Some PRAGMA statements return rows and must go through Query.
			if !strings.Contains(err.Error(), "returned rows") {
				return fmt.Errorf("failed to set %s: %w", setting.name, err)
			}
			rows, qerr := dm.db.QueryContext(ctx, query)
			if qerr != nil {
				return fmt.Errorf("failed to set %s: %w", setting.name, qerr)
			}
			rows.Close()
		}
	}

	return nil
}

// configureConnectionPooling sets up connection pooling parameters
func (dm *DBManager) configureConnectionPooling() {
	maxOpen := dm.config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 8
	}
	dm.db.SetMaxOpenConns(maxOpen)

	maxIdle := dm.config.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 4
	}
	dm.db.SetMaxIdleConns(maxIdle)

	idleTime := time.Duration(dm.config.ConnMaxIdleSec) * time.Second
	if idleTime <= 0 {
		idleTime = 5 * time.Minute
	}
	dm.db.SetConnMaxIdleTime(idleTime)

	lifeTime := time.Duration(dm.config.ConnMaxLifeSec) * time.Second
	if lifeTime <= 0 {
		lifeTime = time.Hour
	}
	dm.db.SetConnMaxLifetime(lifeTime)

	dm.logger.Debug().
		Int("max_open", maxOpen).
		Int("max_idle", maxIdle).
		Dur("max_idle_time", idleTime).
		Dur("max_lifetime", lifeTime).
		Msg("Connection pool configured")
}

// WithTx executes a function within a database transaction
func (dm *DBManager) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return WithTx(ctx, dm.db, fn)
}

// WithTx executes fn inside a transaction on conn, rolling back when fn fails.
func WithTx(ctx context.Context, conn *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("transaction failed and rollback failed: %v (original error: %w)", rollbackErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
