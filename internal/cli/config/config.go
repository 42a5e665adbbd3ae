package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/paymesh/payment-pipeline-workflow/consumer"
	"github.com/paymesh/payment-pipeline-workflow/processor"
)

// Config is the top-level gateway configuration file.
type Config struct {
	Gateway    GatewayConfig               `yaml:"gateway"`
	Ledger     LedgerConfig                `yaml:"ledger"`
	Processors []processor.ProcessorConfig `yaml:"processors"`
	Modules    map[string]ModuleConfig     `yaml:"modules"`
	Consumers  []consumer.ConsumerConfig   `yaml:"consumers"`
	Server     ServerConfig                `yaml:"server"`
}

type GatewayConfig struct {
	// Domain discriminates payment ids across deployments.
	Domain  string      `yaml:"domain"`
	Account string      `yaml:"account"`
	Admins  []string    `yaml:"admins"`
	Store   StoreConfig `yaml:"store"`
}

type StoreConfig struct {
	Type   string `yaml:"type"` // "memory" or "sqlite"
	DBPath string `yaml:"db_path"`
}

type LedgerConfig struct {
	Type     string          `yaml:"type"` // "memory" is the only built-in
	Balances []BalanceConfig `yaml:"balances"`
}

type BalanceConfig struct {
	Token   string `yaml:"token"`
	Account string `yaml:"account"`
	Amount  uint64 `yaml:"amount"`
}

type ModuleConfig struct {
	ID         string   `yaml:"id"`
	Chain      []string `yaml:"chain"`
	Disabled   []string `yaml:"disabled"`
	Authorized []string `yaml:"authorized"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

// Load reads and parses a gateway configuration file.
func Load(path string) (*Config, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(configBytes, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Gateway.Domain == "" {
		cfg.Gateway.Domain = "default"
	}
	if cfg.Gateway.Store.Type == "" {
		cfg.Gateway.Store.Type = "memory"
	}
	return &cfg, nil
}
