package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"cipherex/crypto"
)

type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	NetworkName  string `toml:"NetworkName"`
	AdminAddress string `toml:"AdminAddress"`

	Transfer  TransferConfig  `toml:"Transfer"`
	Fraud     FraudConfig     `toml:"Fraud"`
	Whitelist WhitelistConfig `toml:"Whitelist"`
}

// TransferConfig tunes the handoff state machine. Zero timeouts fall back to
// engine defaults.
type TransferConfig struct {
	FinalizeTimeoutSecs int64 `toml:"FinalizeTimeoutSecs"`
	AbandonTimeoutSecs  int64 `toml:"AbandonTimeoutSecs"`
	SalesStart          int64 `toml:"SalesStart"`
}

type FraudConfig struct {
	AllowDeferred  bool   `toml:"AllowDeferred"`
	ArbiterAddress string `toml:"ArbiterAddress"`
}

type WhitelistConfig struct {
	Deadline int64           `toml:"Deadline"`
	Tiers    []WhitelistTier `toml:"Tiers"`
}

// WhitelistTier maps an inclusive asset-id range to a discount and the
// address whose signature unlocks it.
type WhitelistTier struct {
	FromID      uint64 `toml:"FromID"`
	ToID        uint64 `toml:"ToID"`
	DiscountBps uint64 `toml:"DiscountBps"`
	Approver    string `toml:"Approver"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "cipherex-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./cipherex-data"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engines would refuse at runtime.
func (c *Config) Validate() error {
	if c.Transfer.FinalizeTimeoutSecs < 0 {
		return fmt.Errorf("Transfer.FinalizeTimeoutSecs must not be negative")
	}
	if c.Transfer.AbandonTimeoutSecs < 0 {
		return fmt.Errorf("Transfer.AbandonTimeoutSecs must not be negative")
	}
	if c.AdminAddress != "" {
		if _, err := crypto.DecodeAddress(c.AdminAddress); err != nil {
			return fmt.Errorf("AdminAddress: %w", err)
		}
	}
	if c.Fraud.ArbiterAddress != "" {
		if _, err := crypto.DecodeAddress(c.Fraud.ArbiterAddress); err != nil {
			return fmt.Errorf("Fraud.ArbiterAddress: %w", err)
		}
	}
	for i, tier := range c.Whitelist.Tiers {
		if tier.ToID < tier.FromID {
			return fmt.Errorf("Whitelist.Tiers[%d]: ToID below FromID", i)
		}
		if tier.DiscountBps > 10000 {
			return fmt.Errorf("Whitelist.Tiers[%d]: DiscountBps above 10000", i)
		}
		if _, err := crypto.DecodeAddress(tier.Approver); err != nil {
			return fmt.Errorf("Whitelist.Tiers[%d].Approver: %w", i, err)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  ":8545",
		DataDir:     "./cipherex-data",
		NetworkName: "cipherex-local",
		Transfer: TransferConfig{
			FinalizeTimeoutSecs: 24 * 60 * 60,
			AbandonTimeoutSecs:  24 * 60 * 60,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
