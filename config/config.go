package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"claimlink/crypto"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	RPCAddress          string `toml:"RPCAddress" yaml:"rpc_address"`
	DataDir             string `toml:"DataDir" yaml:"data_dir"`
	EventLogPath        string `toml:"EventLogPath" yaml:"event_log_path"`
	RelayerKeystorePath string `toml:"RelayerKeystorePath" yaml:"relayer_keystore_path"`
	ChainID             uint64 `toml:"ChainID" yaml:"chain_id"`
	EscrowAddress       string `toml:"EscrowAddress" yaml:"escrow_address"`
	OwnerAddress        string `toml:"OwnerAddress" yaml:"owner_address"`
	DomainName          string `toml:"DomainName" yaml:"domain_name"`
	DomainVersion       string `toml:"DomainVersion" yaml:"domain_version"`

	Fees        FeeConfig       `toml:"Fees" yaml:"fees"`
	Assets      []AssetConfig   `toml:"Assets" yaml:"assets"`
	Allocations []Allocation    `toml:"Allocations" yaml:"allocations"`
	RPC         RPCConfig       `toml:"RPC" yaml:"rpc"`
	Logging     LoggingConfig   `toml:"Logging" yaml:"logging"`
	Telemetry   TelemetryConfig `toml:"Telemetry" yaml:"telemetry"`
}

// Option tweaks Load.
type Option func(*loadOptions)

type loadOptions struct {
	passphrase string
}

// WithKeystorePassphrase supplies the passphrase used when Load has to create
// the relayer keystore.
func WithKeystorePassphrase(passphrase string) Option {
	return func(o *loadOptions) { o.passphrase = passphrase }
}

// Load loads the configuration from the given path. The format follows the
// extension: .yaml/.yml is YAML, anything else TOML. A missing file is
// created with defaults and a fresh relayer keystore.
func Load(path string, opts ...Option) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	cfg := &Config{}
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown keys in %s: %v", path, undecoded)
		}
	}

	cfg.applyDefaults(path)
	if err := ensureKeystore(cfg, options); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults(path string) {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./claimlink-data"
	}
	if strings.TrimSpace(c.EventLogPath) == "" {
		c.EventLogPath = filepath.Join(c.DataDir, "events.db")
	}
	if c.ChainID == 0 {
		c.ChainID = 31337
	}
	if strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
		c.RPC.JWTSecretEnv = "CLAIMLINK_JWT_SECRET"
	}
	if c.RPC.ClockSkewSeconds <= 0 {
		c.RPC.ClockSkewSeconds = 30
	}
	if c.RPC.RateLimitPerSecond == 0 {
		c.RPC.RateLimitPerSecond = 20
	}
	if c.RPC.RateLimitBurst <= 0 {
		c.RPC.RateLimitBurst = 40
	}
	if c.RPC.MaxBodyBytes <= 0 {
		c.RPC.MaxBodyBytes = 1 << 20
	}
	if c.Fees.Flat == nil {
		c.Fees.Flat = map[string]string{}
	}
	if strings.TrimSpace(c.RelayerKeystorePath) == "" {
		c.RelayerKeystorePath = defaultKeystorePath(path)
	}
}

func ensureKeystore(cfg *Config, options loadOptions) error {
	if _, err := os.Stat(cfg.RelayerKeystorePath); os.IsNotExist(err) {
		if options.passphrase == "" {
			return errors.New("config: relayer keystore missing and no passphrase supplied to create it")
		}
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(cfg.RelayerKeystorePath, key, options.passphrase); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

// createDefault creates and saves a default configuration file together with
// a relayer keystore. The relayer also becomes the initial owner.
func createDefault(path string, options loadOptions) (*Config, error) {
	if options.passphrase == "" {
		return nil, errors.New("config: a keystore passphrase is required to create a default configuration")
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	escrow, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		EscrowAddress: escrow.Address().Hex(),
		OwnerAddress:  key.Address().Hex(),
		Fees: FeeConfig{
			Flat: map[string]string{},
		},
		Assets:      []AssetConfig{},
		Allocations: []Allocation{},
	}
	cfg.applyDefaults(path)
	if err := crypto.SaveToKeystore(cfg.RelayerKeystorePath, key, options.passphrase); err != nil {
		return nil, err
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

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "relayer.keystore")
}
