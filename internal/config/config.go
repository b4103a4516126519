package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/tkintscher/exonum/internal/storage"
)

// DefaultFileName is the node configuration file looked up by FindNodeConfig.
const DefaultFileName = "node.toml"

// NodeConfig represents the node configuration file
type NodeConfig struct {
	PrivateConfig PrivateConfig `toml:"private_config"`

	undecoded []string
}

// PrivateConfig holds the settings that are local to one node
type PrivateConfig struct {
	ListenAddress   string            `toml:"listen_address"`
	ExternalAddress string            `toml:"external_address"`
	MasterKeyPath   string            `toml:"master_key_path"`
	ServicesDir     string            `toml:"services_dir"`
	Database        storage.DbOptions `toml:"database"`
}

// DefaultNodeConfig returns the values used for keys missing from a file.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		PrivateConfig: PrivateConfig{
			ListenAddress: "0.0.0.0:6333",
			MasterKeyPath: "master.key.toml",
			ServicesDir:   "services",
			Database:      storage.DefaultDbOptions(),
		},
	}
}

// LoadNodeConfig reads and parses the node configuration at path.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	cfg := DefaultNodeConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	for _, key := range md.Undecoded() {
		cfg.undecoded = append(cfg.undecoded, key.String())
	}

	return cfg, nil
}

// UndecodedKeys lists keys present in the loaded file that NodeConfig does
// not know. They are dropped when the config is written back.
func (c *NodeConfig) UndecodedKeys() []string {
	return c.undecoded
}

// Encode writes the config as TOML. Output is deterministic for a given config.
func (c *NodeConfig) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// SaveNodeConfig writes cfg to path, replacing any existing file.
func SaveNodeConfig(cfg *NodeConfig, path string) error {
	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		return fmt.Errorf("config encode failed (%s): %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config save failed (%s): %w", path, err)
	}
	return nil
}

// FindNodeConfig searches for DefaultFileName in the current directory or a parent directory
func FindNodeConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return findNodeConfigFromDir(dir)
}

func findNodeConfigFromDir(startDir string) (string, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DefaultFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no %s found in %s or any parent directory", DefaultFileName, startDir)
}
