package config

// RPCConfig controls the JSON-RPC listener.
type RPCConfig struct {
	// JWTSecretEnv names the environment variable holding the HS256 secret.
	JWTSecretEnv       string   `toml:"JWTSecretEnv" yaml:"jwt_secret_env"`
	JWTIssuer          string   `toml:"JWTIssuer" yaml:"jwt_issuer"`
	JWTAudience        string   `toml:"JWTAudience" yaml:"jwt_audience"`
	ClockSkewSeconds   int      `toml:"ClockSkewSeconds" yaml:"clock_skew_seconds"`
	RateLimitPerSecond float64  `toml:"RateLimitPerSecond" yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `toml:"RateLimitBurst" yaml:"rate_limit_burst"`
	AllowedOrigins     []string `toml:"AllowedOrigins" yaml:"allowed_origins"`
	TrustProxyHeaders  bool     `toml:"TrustProxyHeaders" yaml:"trust_proxy_headers"`
	MaxBodyBytes       int64    `toml:"MaxBodyBytes" yaml:"max_body_bytes"`
}

// FeeConfig is the relayer's quoting policy. Flat maps a fee asset address
// (the zero address for native) to a decimal base-unit amount.
type FeeConfig struct {
	Sponsored bool              `toml:"Sponsored" yaml:"sponsored"`
	Flat      map[string]string `toml:"Flat" yaml:"flat"`
}

// AssetConfig registers an asset with the node's ledger.
type AssetConfig struct {
	Address  string `toml:"Address" yaml:"address"`
	Kind     string `toml:"Kind" yaml:"kind"`
	Name     string `toml:"Name" yaml:"name"`
	Symbol   string `toml:"Symbol" yaml:"symbol"`
	Version  string `toml:"Version" yaml:"version"`
	Decimals uint8  `toml:"Decimals" yaml:"decimals"`
}

// Allocation seeds a balance (or an NFT) on first start.
type Allocation struct {
	Asset   string `toml:"Asset" yaml:"asset"`
	Holder  string `toml:"Holder" yaml:"holder"`
	TokenID string `toml:"TokenID" yaml:"token_id"`
	Amount  string `toml:"Amount" yaml:"amount"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Environment string `toml:"Environment" yaml:"environment"`
	Level       string `toml:"Level" yaml:"level"`
	File        string `toml:"File" yaml:"file"`
	MaxSizeMB   int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups  int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays  int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// TelemetryConfig mirrors otel.Config.
type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}
