// Package persona holds project-wide defaults shared by the config, storage and CLI layers.
package persona

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName = "persona-rag"
	Version        = "0.3.0"

	DefaultDatabaseType = "libsql"
	DefaultDataDir      = "data"

	// DefaultEmbeddingDims must match the F32_BLOB width in the chunk migration.
	DefaultEmbeddingDims = 1536
	DefaultHistoryWindow = 10
	DefaultMaxIterations = 5
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDatabaseDir = filepath.Join(userDataDir(), DefaultAppName)
	DefaultDatabaseDSN = filepath.Join(DefaultDatabaseDir, "persona.db")
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}
