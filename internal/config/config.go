// Package config loads the submission manager's runtime tunables from a
// JSON file on disk, the same on-disk-JSON shape internal/app/config.go
// uses for arcsign's own app-level settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/arcsign/txmgr"
)

// Config is the on-disk shape of submittx's runtime settings. JSON duration
// fields are plain strings ("12s", "10m") parsed with time.ParseDuration.
type Config struct {
	RPCEndpoints        []string `json:"rpcEndpoints"`
	WSEndpoint          string   `json:"wsEndpoint,omitempty"`
	ChainID             uint64   `json:"chainId"`
	IsLegacyChain       bool     `json:"isLegacyChain"`
	StorePath           string   `json:"storePath"`
	PollInterval        string   `json:"pollInterval"`
	MiningTimeout       string   `json:"miningTimeout"`
	BlockTime           string   `json:"blockTime"`
	MinBumpFactor       float64  `json:"minBumpFactor"`
	ProviderRetryBudget int      `json:"providerRetryBudget"`
	Confirmations       uint64   `json:"confirmations"`
}

// New returns a Config carrying submittx's defaults.
func New() *Config {
	return &Config{
		RPCEndpoints:        []string{},
		ChainID:             1,
		StorePath:           "submittx-state.json",
		PollInterval:        "12s",
		MiningTimeout:       "10m",
		BlockTime:           "12s",
		MinBumpFactor:       1.10,
		ProviderRetryBudget: 10,
		Confirmations:       1,
	}
}

// Load reads and parses the Config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ManagerConfig translates the on-disk durations into a txmgr.Config,
// falling back to txmgr.DefaultConfig for any field left unset or
// unparseable.
func (c *Config) ManagerConfig() txmgr.Config {
	def := txmgr.DefaultConfig()
	cfg := def

	if d, err := time.ParseDuration(c.PollInterval); err == nil && d > 0 {
		cfg.PollInterval = d
	}
	if d, err := time.ParseDuration(c.MiningTimeout); err == nil && d > 0 {
		cfg.TransactionMiningTimeout = d
	}
	if d, err := time.ParseDuration(c.BlockTime); err == nil && d > 0 {
		cfg.BlockTime = d
	}
	if c.MinBumpFactor > 1.0 {
		cfg.MinBumpFactor = c.MinBumpFactor
	}
	if c.ProviderRetryBudget > 0 {
		cfg.ProviderRetryBudget = c.ProviderRetryBudget
	}
	return cfg
}

// ChainDescriptor builds the txmgr.ChainDescriptor this config targets.
func (c *Config) ChainDescriptor() txmgr.ChainDescriptor {
	return txmgr.ChainDescriptor{ChainID: c.ChainID, IsLegacy: c.IsLegacyChain}
}
