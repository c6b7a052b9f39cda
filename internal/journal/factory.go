package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"fileshare/internal/config"
	"fileshare/internal/fileshare"
)

// FileName is the journal database file inside the configured data directory.
const FileName = "journal.db"

// NewJournalFromConfig creates a Journal implementation based on the journal config type.
func NewJournalFromConfig(cfg config.JournalConfig) (fileshare.Journal, error) {
	switch cfg.Type {
	case "none", "":
		return fileshare.NopJournal{}, nil
	case "memory":
		return NewSQLiteJournal(":memory:")
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite journal")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		return NewSQLiteJournal(filepath.Join(cfg.DataDir, FileName))
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}
