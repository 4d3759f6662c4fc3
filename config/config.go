package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"gildchain/crypto"
)

// Config captures the runtime settings for gildd.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	NetworkName    string `toml:"NetworkName"`
	Environment    string `toml:"Environment"`

	Genesis GenesisConfig `toml:"genesis"`
	Roles   RolesConfig   `toml:"roles"`
	Log     LogConfig     `toml:"log"`
}

// GenesisConfig seeds the ledger on first boot.
type GenesisConfig struct {
	// BaseRate is the initial global base rate expressed as a decimal
	// string scaled by 1e18, e.g. "50000000000" for 5e10 per second.
	BaseRate string `toml:"BaseRate"`
}

// RolesConfig lists the bech32 addresses granted privileged roles at startup.
type RolesConfig struct {
	Minters    []string `toml:"Minters"`
	RateAdmins []string `toml:"RateAdmins"`
}

// LogConfig controls the optional rotating file sink next to stdout.
type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown keys: %v", path, undecoded)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8561"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = "127.0.0.1:9561"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./gildd-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "gild-local"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.Roles.Minters == nil {
		cfg.Roles.Minters = []string{}
	}
	if cfg.Roles.RateAdmins == nil {
		cfg.Roles.RateAdmins = []string{}
	}
}

// Validate checks the configuration for internal consistency.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(cfg.Genesis.BaseRate) != "" {
		if _, err := cfg.Genesis.BaseRateWad(); err != nil {
			return err
		}
	}
	for _, addr := range cfg.Roles.Minters {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("config: invalid minter address %q: %w", addr, err)
		}
	}
	for _, addr := range cfg.Roles.RateAdmins {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("config: invalid rate admin address %q: %w", addr, err)
		}
	}
	if cfg.Log.File != "" && cfg.Log.MaxSizeMB < 0 {
		return fmt.Errorf("config: log MaxSizeMB must be non-negative")
	}
	return nil
}

// BaseRateWad parses the configured genesis rate into its wad-scaled integer
// form. An empty setting yields nil, meaning "do not initialise".
func (g GenesisConfig) BaseRateWad() (*big.Int, error) {
	trimmed := strings.TrimSpace(g.BaseRate)
	if trimmed == "" {
		return nil, nil
	}
	rate, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || rate.Sign() < 0 {
		return nil, fmt.Errorf("config: genesis BaseRate must be a non-negative integer, got %q", g.BaseRate)
	}
	return rate, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Genesis.BaseRate = "50000000000"

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
