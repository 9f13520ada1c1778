package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config is the node operator's configuration surface. Engine parameters
// (reward rates, price curves, split percentages) persist in the state
// database and are tuned over RPC; this file only holds wiring.
type Config struct {
	RPCAddress       string `toml:"RPCAddress"`
	DataDir          string `toml:"DataDir"`
	EventJournalPath string `toml:"EventJournalPath"`
	NetworkName      string `toml:"NetworkName"`
	Environment      string `toml:"Environment"`

	AdminAddress           string `toml:"AdminAddress"`
	OracleAddress          string `toml:"OracleAddress"`
	RewardEngineAddress    string `toml:"RewardEngineAddress"`
	TreasuryAddress        string `toml:"TreasuryAddress"`
	MerchantGatewayAddress string `toml:"MerchantGatewayAddress"`

	PriceOracleEndpoint string `toml:"PriceOracleEndpoint"`
	RPCWriteRatePerMin  int    `toml:"RPCWriteRatePerMin"`
}

// Load reads the configuration at path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "sweat-local"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.RPCWriteRatePerMin <= 0 {
		cfg.RPCWriteRatePerMin = 60
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, raw := range map[string]string{
		"AdminAddress":           c.AdminAddress,
		"OracleAddress":          c.OracleAddress,
		"RewardEngineAddress":    c.RewardEngineAddress,
		"TreasuryAddress":        c.TreasuryAddress,
		"MerchantGatewayAddress": c.MerchantGatewayAddress,
	} {
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("config: %s is not a valid address: %q", name, raw)
		}
	}
	if c.AdminAddress == "" {
		return fmt.Errorf("config: AdminAddress required")
	}
	return nil
}

// Admin returns the bootstrap admin account.
func (c *Config) Admin() common.Address { return common.HexToAddress(c.AdminAddress) }

// Oracle returns the trusted health-data oracle account.
func (c *Config) Oracle() common.Address { return common.HexToAddress(c.OracleAddress) }

// RewardEngine returns the reward engine's ledger account.
func (c *Config) RewardEngine() common.Address { return common.HexToAddress(c.RewardEngineAddress) }

// Treasury returns the treasury's ledger account.
func (c *Config) Treasury() common.Address { return common.HexToAddress(c.TreasuryAddress) }

// MerchantGateway returns the gateway's ledger account.
func (c *Config) MerchantGateway() common.Address {
	return common.HexToAddress(c.MerchantGatewayAddress)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:       ":8080",
		DataDir:          "./sweat-data",
		EventJournalPath: "./sweat-data/events.db",
		NetworkName:      "sweat-local",
		Environment:      "dev",

		AdminAddress:           "0x0000000000000000000000000000000000000001",
		OracleAddress:          "0x0000000000000000000000000000000000000002",
		RewardEngineAddress:    "0x0000000000000000000000000000000000000010",
		TreasuryAddress:        "0x0000000000000000000000000000000000000011",
		MerchantGatewayAddress: "0x0000000000000000000000000000000000000012",

		RPCWriteRatePerMin: 60,
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
