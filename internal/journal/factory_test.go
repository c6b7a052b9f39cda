package journal

import (
	"os"
	"path/filepath"
	"testing"

	"fileshare/internal/config"
	"fileshare/internal/fileshare"
)

func TestNewJournalFromConfig(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		j, err := NewJournalFromConfig(config.JournalConfig{Type: "none"})
		if err != nil {
			t.Fatalf("NewJournalFromConfig() error = %v", err)
		}
		if _, ok := j.(fileshare.NopJournal); !ok {
			t.Errorf("NewJournalFromConfig() = %T, want NopJournal", j)
		}
	})

	t.Run("memory", func(t *testing.T) {
		j, err := NewJournalFromConfig(config.JournalConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewJournalFromConfig() error = %v", err)
		}
		defer j.Close()
		if _, ok := j.(*SQLiteJournal); !ok {
			t.Errorf("NewJournalFromConfig() = %T, want *SQLiteJournal", j)
		}
	})

	t.Run("sqlite creates data dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		j, err := NewJournalFromConfig(config.JournalConfig{Type: "sqlite", DataDir: dir})
		if err != nil {
			t.Fatalf("NewJournalFromConfig() error = %v", err)
		}
		defer j.Close()
		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Errorf("journal file not created: %v", err)
		}
	})

	t.Run("sqlite without data dir", func(t *testing.T) {
		if _, err := NewJournalFromConfig(config.JournalConfig{Type: "sqlite"}); err == nil {
			t.Error("NewJournalFromConfig() expected error, got nil")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := NewJournalFromConfig(config.JournalConfig{Type: "postgres"}); err == nil {
			t.Error("NewJournalFromConfig() expected error, got nil")
		}
	})
}
