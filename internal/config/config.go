package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level exchange configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Market   MarketConfig   `yaml:"market"`
	Registry RegistryConfig `yaml:"registry"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins lists origins permitted for cross-origin requests.
	// "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AdminConfig identifies the operator of the access gate.
type AdminConfig struct {
	Address   string `yaml:"address"`
	JWTSecret string `yaml:"jwt_secret"`
}

// MarketConfig seeds the engine's market parameters.
type MarketConfig struct {
	// FeeRate is in thousandths of the sale price.
	FeeRate            uint64   `yaml:"fee_rate"`
	Operator           string   `yaml:"operator"`
	AllowedCollections []string `yaml:"allowed_collections"`
}

// RegistryConfig points at the external asset registry and custody service.
type RegistryConfig struct {
	RPCURL          string        `yaml:"rpc_url"`
	CustodyEndpoint string        `yaml:"custody_endpoint"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
}

// PostgresConfig selects the durable store. An empty DSN keeps the in-memory
// store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Market: MarketConfig{
			FeeRate: 25,
		},
		Registry: RegistryConfig{
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config/exchange.yaml relative to the working directory.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join("config", "exchange.yaml"))
}

// LoadFromPath reads the configuration from a specific path, applies
// environment overrides and validates the result.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Secrets and deployment-specific values come from the environment so the
// YAML file can be committed.
func applyEnv(cfg *Config) {
	if v := os.Getenv("EXCHANGE_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}
	if v := os.Getenv("EXCHANGE_ADMIN_ADDRESS"); v != "" {
		cfg.Admin.Address = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_JWT_SECRET"); v != "" {
		cfg.Admin.JWTSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_OPERATOR_ADDRESS"); v != "" {
		cfg.Market.Operator = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_FEE_RATE"); v != "" {
		if rate, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.Market.FeeRate = rate
		}
	}
	if v := os.Getenv("EXCHANGE_RPC_URL"); v != "" {
		cfg.Registry.RPCURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_CUSTODY_ENDPOINT"); v != "" {
		cfg.Registry.CustodyEndpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_CUSTODY_API_KEY"); v != "" {
		cfg.Registry.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXCHANGE_LOG_FILE"); v != "" {
		cfg.Logging.File = strings.TrimSpace(v)
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if strings.TrimSpace(c.Admin.Address) == "" {
		return fmt.Errorf("admin.address is required")
	}
	if strings.TrimSpace(c.Market.Operator) == "" {
		return fmt.Errorf("market.operator is required")
	}
	if c.Market.FeeRate >= 1000 {
		return fmt.Errorf("market.fee_rate must be below 1000")
	}
	if c.Registry.Timeout <= 0 {
		return fmt.Errorf("registry.timeout must be greater than 0")
	}
	for _, coll := range c.Market.AllowedCollections {
		if strings.TrimSpace(coll) == "" {
			return fmt.Errorf("market.allowed_collections contains an empty entry")
		}
	}
	for _, origin := range c.Server.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("server.allowed_origins contains an empty entry")
		}
	}
	return nil
}
