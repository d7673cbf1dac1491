package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vaultd/crypto"

	"github.com/BurntSushi/toml"
)

// Config carries the process-wide deployment settings: where the engine
// listens, where state lives, which principal arbitrates disputes and where
// the vault key is kept. AdminAddress is fixed at deployment; the engine
// never changes it at runtime.
type Config struct {
	RPCAddress        string `toml:"RPCAddress"`
	DataDir           string `toml:"DataDir"`
	NetworkName       string `toml:"NetworkName"`
	AdminAddress      string `toml:"AdminAddress"`
	VaultKeystorePath string `toml:"VaultKeystorePath"`
}

const (
	defaultRPCAddress = "127.0.0.1:8645"
	defaultDataDir    = "./vaultd-data"
)

// Load loads the configuration from the given path, creating a default file
// when none exists. It also guarantees a vault keystore exists, generating a
// fresh custodian key on first boot.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "vault-local"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.VaultKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, vaultPassphrase()); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.VaultKeystorePath != keystorePath {
		cfg.VaultKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "vault.keystore")
}

func vaultPassphrase() string {
	return strings.TrimSpace(os.Getenv("VAULTD_VAULT_PASS"))
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// VaultKey loads the custodian key from the configured keystore.
func (c *Config) VaultKey() (*crypto.PrivateKey, error) {
	return crypto.LoadFromKeystore(c.VaultKeystorePath, vaultPassphrase())
}

// Administrator decodes the configured arbiter address. An empty setting is a
// deployment error: the dispute paths are unreachable without one.
func (c *Config) Administrator() (crypto.Address, error) {
	trimmed := strings.TrimSpace(c.AdminAddress)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("config: AdminAddress not set")
	}
	return crypto.DecodeAddress(trimmed)
}
