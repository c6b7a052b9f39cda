package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables overriding the default locations.
const (
	EnvConfigPath = "FILESHARE_CONFIG_PATH" // default ~/.config/fileshare.toml
	EnvHome       = "FILESHARE_HOME"        // default ~/.local/share/fileshare
)

// GetDefaults returns the config path and the base directory holding the
// shared files, journal, logs and downloads, plus the paths derived from it.
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome(EnvConfigPath, ".config", "fileshare.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome(EnvHome, ".local", "share", "fileshare")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path":  configPath,
		"base_dir":     baseDir,
		"log_dir":      filepath.Join(baseDir, "log"),
		"download_dir": filepath.Join(baseDir, "downloads"),
	}, nil
}

// fromEnvOrHome returns $env, or the path elems joined under the home directory.
func fromEnvOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving default for %s: cannot determine home directory: %w", env, err)
	}
	return filepath.Join(append([]string{home}, elems...)...), nil
}
