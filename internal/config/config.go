package config

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for fileshare.
type Config struct {
	BaseDir string        `toml:"base_dir"`
	LogDir  string        `toml:"log_dir"`
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Journal JournalConfig `toml:"journal"`
	Client  ClientConfig  `toml:"client"`
}

// ServerConfig holds listener, transfer and liveness settings for `fileshare serve`.
type ServerConfig struct {
	ListenAddr        string   `toml:"listen_addr"`
	ChunkSize         int      `toml:"chunk_size"`          // upload receive chunk
	DownloadChunkSize int      `toml:"download_chunk_size"` // download send chunk
	ControlTimeout    Duration `toml:"control_timeout"`
	TransferTimeout   Duration `toml:"transfer_timeout"`
	SweepInterval     Duration `toml:"sweep_interval"`
	Retries           int      `toml:"retries"`
	MaxFrame          int      `toml:"max_frame"`
	OutboxSize        int      `toml:"outbox_size"`
}

// StoreConfig represents configuration for the shared file store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "filesystem", "memory" or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// JournalConfig represents configuration for the operations journal.
type JournalConfig struct {
	Type    string `toml:"type"`               // "none", "memory" or "sqlite"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ClientConfig holds settings for `fileshare connect`.
type ClientConfig struct {
	ServerAddr       string   `toml:"server_addr"`
	ConnectTimeout   Duration `toml:"connect_timeout"`
	ControlTimeout   Duration `toml:"control_timeout"`
	TransferTimeout  Duration `toml:"transfer_timeout"`
	ListenerPoll     Duration `toml:"listener_poll"`
	ProgressInterval Duration `toml:"progress_interval"`
	Retries          int      `toml:"retries"`
	ChunkSize        int      `toml:"chunk_size"`
	DownloadDir      string   `toml:"download_dir"`
}

// Duration is a time.Duration written as a string such as "5s" or "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a Config with every default filled in, rooted at baseDir.
func NewConfig(baseDir string) *Config {
	cfg := &Config{BaseDir: baseDir}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields so partial config files work.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}

	s := &c.Server
	if s.ListenAddr == "" {
		s.ListenAddr = ":5000"
	}
	setInt(&s.ChunkSize, 4096)
	setInt(&s.DownloadChunkSize, 65536)
	setDuration(&s.ControlTimeout, 5*time.Second)
	setDuration(&s.TransferTimeout, 10*time.Minute)
	setDuration(&s.SweepInterval, 30*time.Second)
	setInt(&s.Retries, 3)
	setInt(&s.MaxFrame, 1<<20)
	setInt(&s.OutboxSize, 16)

	if c.Store.Type == "" {
		c.Store.Type = "filesystem"
	}
	if c.Store.Type == "filesystem" && c.Store.Root == "" && c.BaseDir != "" {
		c.Store.Root = filepath.Join(c.BaseDir, "shared")
	}

	if c.Journal.Type == "" {
		c.Journal.Type = "sqlite"
	}
	if c.Journal.Type == "sqlite" && c.Journal.DataDir == "" && c.BaseDir != "" {
		c.Journal.DataDir = filepath.Join(c.BaseDir, "db")
	}

	cl := &c.Client
	if cl.ServerAddr == "" {
		cl.ServerAddr = "127.0.0.1:5000"
	}
	setDuration(&cl.ConnectTimeout, 10*time.Second)
	setDuration(&cl.ControlTimeout, 10*time.Second)
	setDuration(&cl.TransferTimeout, 10*time.Minute)
	setDuration(&cl.ListenerPoll, 100*time.Millisecond)
	setDuration(&cl.ProgressInterval, 150*time.Millisecond)
	setInt(&cl.Retries, 3)
	setInt(&cl.ChunkSize, 4096)
	if cl.DownloadDir == "" && c.BaseDir != "" {
		cl.DownloadDir = filepath.Join(c.BaseDir, "downloads")
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setDuration(v *Duration, def time.Duration) {
	if v.Duration == 0 {
		v.Duration = def
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if err := ValidateListenAddr(c.Server.ListenAddr); err != nil {
		return err
	}
	if c.Server.ChunkSize < 0 || c.Server.DownloadChunkSize < 0 || c.Client.ChunkSize < 0 {
		return fmt.Errorf("chunk sizes must be positive")
	}
	if c.Server.DownloadChunkSize > c.Server.MaxFrame || c.Client.ChunkSize > c.Server.MaxFrame {
		return fmt.Errorf("chunk sizes must not exceed max_frame (%d)", c.Server.MaxFrame)
	}
	switch c.Store.Type {
	case "filesystem", "memory", "s3":
	default:
		return fmt.Errorf("unknown store type: %s", c.Store.Type)
	}
	switch c.Journal.Type {
	case "none", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown journal type: %s", c.Journal.Type)
	}
	return nil
}

// ValidateListenAddr requires a numeric port in 1024-65535. Port 0 is
// allowed so tests can bind an ephemeral port.
func ValidateListenAddr(addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q: must be numeric", portStr)
	}
	if port != 0 && (port < 1024 || port > 65535) {
		return fmt.Errorf("invalid port %d: must be between 1024 and 65535", port)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path and applies defaults.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
