package storage

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/internal/storage/sqlite"
)

// ErrDataDirNotConfigured indicates that neither db_path nor data_dir is set.
var ErrDataDirNotConfigured = errors.New("data_dir is not configured")

// OpenForConfig opens the run database named by cfg.DBPath, falling back to data_dir/cortexdesk.db.
func OpenForConfig(cfg *config.Config) (*sqlite.Store, error) {
	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		dataDir := strings.TrimSpace(cfg.DataDir)
		if dataDir == "" {
			return nil, ErrDataDirNotConfigured
		}
		dbPath = filepath.Join(dataDir, "cortexdesk.db")
	}
	return sqlite.Open(dbPath)
}
