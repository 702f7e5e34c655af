// ABOUTME: Config file discovery, data directory and .env loading
// ABOUTME: Priority: --config flag > STANDIN_CONFIG > XDG_CONFIG_HOME > ~/.config

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "STANDIN_CONFIG"

// ResolvePath returns the config file to load.
// Priority: flag > STANDIN_CONFIG env var > XDG_CONFIG_HOME/standin/standin.yaml > ~/.config/standin/standin.yaml
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "standin.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "standin", "standin.yaml")
}

// DataDir returns the standin data directory.
// Priority: XDG_DATA_HOME/standin > ~/.local/share/standin
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "standin")
}

// LoadDotEnv loads variables from the given .env files, skipping missing
// ones. Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return err
		}
	}
	return nil
}
