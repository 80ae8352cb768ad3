package database

import (
	appconfig "github.com/ZanzyTHEbar/persona-rag/persona/config"
)

// Config holds the database configuration
type Config struct {
	Path           string // embedded database file
	EmbeddingDims  int
	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxIdleSec int
	ConnMaxLifeSec int
	// PRAGMA settings
	SyncMode    string // NORMAL, FULL, OFF
	CacheSize   int    // pages, negative for KB
	TempStore   string // MEMORY, FILE, DEFAULT
	JournalMode string // WAL, DELETE, TRUNCATE, PERSIST, MEMORY, OFF
}

// NewConfig derives the database settings from the application configuration.
func NewConfig(cfg *appconfig.Config) *Config {
	return &Config{
		Path:           cfg.Database.DSN,
		EmbeddingDims:  cfg.Embedding.Dims,
		MaxOpenConns:   cfg.Database.MaxOpenConns,
		MaxIdleConns:   cfg.Database.MaxIdleConns,
		ConnMaxIdleSec: cfg.Database.ConnMaxIdleSec,
		SyncMode:       cfg.Database.SyncMode,
		CacheSize:      -64000, // 64MB
		TempStore:      "MEMORY",
		JournalMode:    cfg.Database.JournalMode,
	}
}
