package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/user/.local/share/fileshare")
	original.Server.ListenAddr = ":6000"
	original.Server.TransferTimeout = Duration{15 * time.Minute}
	original.Store = StoreConfig{Type: "s3", S3Bucket: "shared", S3Prefix: "files/", S3Region: "eu-west-1"}
	original.Journal = JournalConfig{Type: "memory"}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.Server.ListenAddr != ":6000" {
		t.Errorf("Server.ListenAddr = %q, want %q", got.Server.ListenAddr, ":6000")
	}
	if got.Server.TransferTimeout.Duration != 15*time.Minute {
		t.Errorf("Server.TransferTimeout = %v, want 15m", got.Server.TransferTimeout)
	}
	if got.Store.Type != "s3" || got.Store.S3Bucket != "shared" || got.Store.S3Prefix != "files/" {
		t.Errorf("Store = %+v", got.Store)
	}
	if got.Journal.Type != "memory" {
		t.Errorf("Journal.Type = %q, want %q", got.Journal.Type, "memory")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/fs")

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"LogDir", cfg.LogDir, "/data/fs/log"},
		{"Server.ListenAddr", cfg.Server.ListenAddr, ":5000"},
		{"Server.ChunkSize", cfg.Server.ChunkSize, 4096},
		{"Server.DownloadChunkSize", cfg.Server.DownloadChunkSize, 65536},
		{"Server.ControlTimeout", cfg.Server.ControlTimeout.Duration, 5 * time.Second},
		{"Server.TransferTimeout", cfg.Server.TransferTimeout.Duration, 10 * time.Minute},
		{"Server.SweepInterval", cfg.Server.SweepInterval.Duration, 30 * time.Second},
		{"Server.Retries", cfg.Server.Retries, 3},
		{"Store.Type", cfg.Store.Type, "filesystem"},
		{"Store.Root", cfg.Store.Root, "/data/fs/shared"},
		{"Journal.Type", cfg.Journal.Type, "sqlite"},
		{"Journal.DataDir", cfg.Journal.DataDir, "/data/fs/db"},
		{"Client.ConnectTimeout", cfg.Client.ConnectTimeout.Duration, 10 * time.Second},
		{"Client.ControlTimeout", cfg.Client.ControlTimeout.Duration, 10 * time.Second},
		{"Client.ListenerPoll", cfg.Client.ListenerPoll.Duration, 100 * time.Millisecond},
		{"Client.ProgressInterval", cfg.Client.ProgressInterval.Duration, 150 * time.Millisecond},
		{"Client.DownloadDir", cfg.Client.DownloadDir, "/data/fs/downloads"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestRead_PartialFileGetsDefaults(t *testing.T) {
	src := `
base_dir = "/srv/fs"

[server]
listen_addr = "0.0.0.0:7000"
control_timeout = "2s"

[store]
type = "memory"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.Server.ControlTimeout.Duration != 2*time.Second {
		t.Errorf("ControlTimeout = %v, want 2s", cfg.Server.ControlTimeout)
	}
	if cfg.Server.ChunkSize != 4096 {
		t.Errorf("ChunkSize = %d, want 4096", cfg.Server.ChunkSize)
	}
	if cfg.Store.Root != "" {
		t.Errorf("Store.Root = %q, want empty for memory store", cfg.Store.Root)
	}
}

func TestRead_InvalidDuration(t *testing.T) {
	m := &Manager{}
	_, err := m.Read(strings.NewReader("[server]\ncontrol_timeout = \"soon\"\n"))
	if err == nil {
		t.Fatal("Read() expected error for invalid duration")
	}
}

func TestValidateListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{addr: ":5000", wantErr: false},
		{addr: "127.0.0.1:65535", wantErr: false},
		{addr: "127.0.0.1:0", wantErr: false},
		{addr: ":80", wantErr: true},
		{addr: ":70000", wantErr: true},
		{addr: ":http", wantErr: true},
		{addr: "localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := ValidateListenAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateListenAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("unknown store type", func(t *testing.T) {
		cfg := NewConfig(t.TempDir())
		cfg.Store.Type = "ftp"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for unknown store type")
		}
	})

	t.Run("chunk larger than frame limit", func(t *testing.T) {
		cfg := NewConfig(t.TempDir())
		cfg.Server.DownloadChunkSize = cfg.Server.MaxFrame + 1
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for oversized chunk")
		}
	})
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fileshare.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fileshare.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fileshare.toml")
		cfg := NewConfig(dir)
		cfg.Journal = JournalConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.BaseDir != dir {
			t.Errorf("BaseDir = %q, want %q", got.BaseDir, dir)
		}
		if got.Journal.Type != "memory" {
			t.Errorf("Journal.Type = %q, want %q", got.Journal.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/fileshare.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
