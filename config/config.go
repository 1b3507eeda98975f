package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	MongoURI      string `mapstructure:"mongo_uri" validate:"required"`
	MongoDatabase string `mapstructure:"mongo_database" validate:"required"`
	PostgresURL   string `mapstructure:"postgres_url" validate:"required"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// EvmNetworkConfig describes one chain the relayer talks to. Confirmations,
// scan batch size and the signing key are per chain.
type EvmNetworkConfig struct {
	ChainID       int64  `mapstructure:"chain_id" validate:"required"`
	Name          string `mapstructure:"name" validate:"required"`
	RPCUrl        string `mapstructure:"rpc_url" validate:"required"`
	PrivateKey    string `mapstructure:"private_key"`
	EncryptedKey  string `mapstructure:"encrypted_key"`
	KeyNonce      string `mapstructure:"key_nonce"`
	Confirmations int64  `mapstructure:"confirmations"`
	ScanBatchSize int64  `mapstructure:"scan_batch_size"`
	GasLimit      uint64 `mapstructure:"gas_limit"`
}

type JobsConfig struct {
	TransactionInterval time.Duration `mapstructure:"transaction_interval"`
	ScanInterval        time.Duration `mapstructure:"scan_interval"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
}

type Config struct {
	ConfigPath  string
	Database    DatabaseConfig     `mapstructure:"database"`
	RabbitMQ    RabbitMQConfig     `mapstructure:"rabbitmq"`
	EvmNetworks []EvmNetworkConfig `mapstructure:"evm_networks" validate:"dive"`
	Jobs        JobsConfig         `mapstructure:"jobs"`
	HealthPort  int                `mapstructure:"health_port"`
}

var GlobalConfig *Config

func LoadEnv() error {
	// Missing .env is fine in deployed environments, everything comes from
	// the process environment there.
	_ = godotenv.Load()
	viper.AutomaticEnv()
	return nil
}

// Load reads the relayer configuration from <configPath>/relayer.json plus
// environment overrides for secrets, validates it and sets GlobalConfig.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("%s/relayer.json", configPath))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading relayer config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling relayer config: %w", err)
	}
	cfg.ConfigPath = configPath

	evmNetworks, err := ReadJsonArrayConfig[EvmNetworkConfig](fmt.Sprintf("%s/evm.json", configPath))
	if err != nil {
		return nil, fmt.Errorf("error reading evm networks config: %w", err)
	}
	cfg.EvmNetworks = evmNetworks

	// Secrets always come from the environment, never from config files.
	if url := viper.GetString("DATABASE_URL"); url != "" {
		cfg.Database.PostgresURL = url
	}
	if uri := viper.GetString("MONGODB_URI"); uri != "" {
		cfg.Database.MongoURI = uri
	}
	if db := viper.GetString("MONGODB_DATABASE"); db != "" {
		cfg.Database.MongoDatabase = db
	}

	cfg.applyDefaults()

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid relayer config: %w", err)
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.EvmNetworks {
		network := &c.EvmNetworks[i]
		if network.Confirmations == 0 {
			network.Confirmations = 5
		}
		if network.ScanBatchSize == 0 {
			network.ScanBatchSize = 1000
		}
		if network.GasLimit == 0 {
			network.GasLimit = 3000000
		}
	}
	if c.Jobs.TransactionInterval == 0 {
		c.Jobs.TransactionInterval = 15 * time.Second
	} else {
		c.Jobs.TransactionInterval = c.Jobs.TransactionInterval * time.Millisecond
	}
	if c.Jobs.ScanInterval == 0 {
		c.Jobs.ScanInterval = 15 * time.Second
	} else {
		c.Jobs.ScanInterval = c.Jobs.ScanInterval * time.Millisecond
	}
	if c.Jobs.LockTTL == 0 {
		c.Jobs.LockTTL = 30 * time.Second
	} else {
		c.Jobs.LockTTL = c.Jobs.LockTTL * time.Millisecond
	}
	if c.HealthPort == 0 {
		c.HealthPort = 3000
	}
}

// ReadJsonArrayConfig reads a json file containing an array of config
// objects. Entries are decoded through mapstructure, the same tag set viper
// uses, so snake_case keys land in the tagged struct fields.
func ReadJsonArrayConfig[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var entries []map[string]interface{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	configs := make([]T, 0, len(entries))
	for i, entry := range entries {
		var cfg T
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build decoder for %s: %w", path, err)
		}
		if err := decoder.Decode(entry); err != nil {
			return nil, fmt.Errorf("failed to decode entry %d of %s: %w", i, path, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
