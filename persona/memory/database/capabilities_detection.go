package database

import (
	"context"
	"time"
)

// Capabilities records which libSQL features the opened build supports.
type Capabilities struct {
	Checked        bool `json:"checked"`
	Vector         bool `json:"vector"`
	CosineDistance bool `json:"cosine_distance"`
	L2Distance     bool `json:"l2_distance"`
	FTS5           bool `json:"fts5"`
	JSON1          bool `json:"json1"`
}

// detectCapabilities probes vector, FTS5 and JSON1 support once per handle.
func (dm *DBManager) detectCapabilities(ctx context.Context) {
	dm.capMu.RLock()
	checked := dm.caps.Checked
	dm.capMu.RUnlock()
	if checked {
		return
	}

	probe := func(query string) bool {
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		rows, err := dm.db.QueryContext(ctx, query)
		if err != nil {
			return false
		}
		rows.Close()
		return true
	}

	caps := Capabilities{Checked: true}
	caps.Vector = probe("SELECT vector32('[1,2,3]')")
	caps.CosineDistance = probe("SELECT vector_distance_cos(vector32('[1,2,3]'), vector32('[1,2,3]'))")
	caps.L2Distance = probe("SELECT vector_distance_l2(vector32('[1,2,3]'), vector32('[1,2,3]'))")
	caps.JSON1 = probe(`SELECT json_extract('{"test": "value"}', '$.test')`)

	ftsCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if _, err := dm.db.ExecContext(ftsCtx, "CREATE VIRTUAL TABLE IF NOT EXISTS temp._fts5_probe USING fts5(content)"); err == nil {
		caps.FTS5 = true
		_, _ = dm.db.ExecContext(ftsCtx, "DROP TABLE IF EXISTS temp._fts5_probe")
	}

	dm.capMu.Lock()
	dm.caps = caps
	dm.capMu.Unlock()

	dm.logger.Info().
		Bool("vector", caps.Vector).
		Bool("cosine", caps.CosineDistance).
		Bool("l2", caps.L2Distance).
		Bool("fts5", caps.FTS5).
		Bool("json1", caps.JSON1).
		Msg("Capabilities detected")
}

// HasCapability checks if a specific capability is available
func (dm *DBManager) HasCapability(capability string) bool {
	dm.capMu.RLock()
	defer dm.capMu.RUnlock()

	if !dm.caps.Checked {
		return false
	}

	switch capability {
	case "vector":
		return dm.caps.Vector
	case "cosine":
		return dm.caps.CosineDistance
	case "l2":
		return dm.caps.L2Distance
	case "fts5":
		return dm.caps.FTS5
	case "json1":
		return dm.caps.JSON1
	default:
		return false
	}
}

// GetCapabilities returns the detected capability flags.
func (dm *DBManager) GetCapabilities() Capabilities {
	dm.capMu.RLock()
	defer dm.capMu.RUnlock()

	return dm.caps
}
