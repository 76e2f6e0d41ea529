// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves the stakectl configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bitfsorg/libstake-go/identity"
)

// configFileName is the file name inside the data directory.
const configFileName = "config.yaml"

// Config is the on-disk configuration.
type Config struct {
	// DataDir holds the ledger database and key files.
	DataDir string `yaml:"data_dir"`
	// DBFile is the ledger database file name, relative to DataDir unless absolute.
	DBFile   string `yaml:"db_file"`
	LogLevel string `yaml:"log_level"`
	// AdminKeyFile holds the hex administrator private key. Relative to DataDir unless absolute.
	AdminKeyFile string `yaml:"admin_key_file,omitempty"`
	// MetricsAddr is the Prometheus listen address; empty disables it.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	// ProgramID is the base58 program address; empty selects DefaultProgramID.
	ProgramID string `yaml:"program_id,omitempty"`
}

// DefaultProgramID is the program address used when none is configured.
var DefaultProgramID = identity.AddressOfSeed("libstake-program")

// DefaultDataDir returns ~/.libstake, or .libstake in the working directory
// when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".libstake"
	}
	return filepath.Join(home, ".libstake")
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{
		DataDir:  DefaultDataDir(),
		DBFile:   "ledger.db",
		LogLevel: "info",
	}
}

// ConfigPath returns the configuration file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// DBPath returns the absolute-or-DataDir-relative ledger database path.
func (c Config) DBPath() string { return c.resolve(c.DBFile) }

// AdminKeyPath returns the administrator key path, or "" if unset.
func (c Config) AdminKeyPath() string {
	if c.AdminKeyFile == "" {
		return ""
	}
	return c.resolve(c.AdminKeyFile)
}

// Program returns the configured program ID.
func (c Config) Program() (identity.Address, error) {
	if c.ProgramID == "" {
		return DefaultProgramID, nil
	}
	id, err := identity.ParseAddress(c.ProgramID)
	if err != nil {
		return identity.Address{}, fmt.Errorf("%w: %w", ErrInvalidProgramID, err)
	}
	return id, nil
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// LoadConfig reads the YAML file at path. Keys absent from the file keep
// their default values; unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	out := append([]byte("# libstake configuration\n"), data...)
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
