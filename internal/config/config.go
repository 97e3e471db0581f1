package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL               string        `mapstructure:"url"`
	StreamName        string        `mapstructure:"stream_name"`
	OpsSubject        string        `mapstructure:"ops_subject"`
	ConsumerName      string        `mapstructure:"consumer_name"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	ReconnectWait     time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName    string        `mapstructure:"connection_name"`
	AckWait           time.Duration `mapstructure:"ack_wait"`
	MaxDeliver        int           `mapstructure:"max_deliver"`
	PublishMaxElapsed time.Duration `mapstructure:"publish_max_elapsed"`
}

// EngineSettings holds the initial engine parameters applied at boot.
type EngineSettings struct {
	// Owner is the router owner identity (hex address)
	Owner string `mapstructure:"owner"`
	// Admin receives the bootstrap role grants (hex address)
	Admin string `mapstructure:"admin"`
	// ExchangeRate is the initial membership price in base units
	ExchangeRate int64 `mapstructure:"exchange_rate"`
	// VestingPeriod is the initial vesting duration
	VestingPeriod time.Duration `mapstructure:"vesting_period"`
	// ContributionCeiling caps direct transfers in base units
	ContributionCeiling int64 `mapstructure:"contribution_ceiling"`
}

// EngineConfig holds configuration for the engine binary.
type EngineConfig struct {
	BaseConfig `mapstructure:",squash"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Engine     EngineSettings `mapstructure:"engine"`
}

// LoadEngineConfig loads configuration for the engine binary.
func LoadEngineConfig(configFile string, envPath string) (*EngineConfig, error) {
	v := configureViper("engine", configFile, envPath)

	// Set defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "CEREMONY_EVENTS")
	v.SetDefault("nats.ops_subject", "ceremony.ops")
	v.SetDefault("nats.consumer_name", "ceremony-engine-ops")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", "ceremony-engine")
	v.SetDefault("nats.ack_wait", "30s")
	v.SetDefault("nats.max_deliver", 3)
	v.SetDefault("nats.publish_max_elapsed", "30s")
	v.SetDefault("engine.exchange_rate", 1)
	v.SetDefault("engine.vesting_period", "24h")
	v.SetDefault("engine.contribution_ceiling", 0)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config EngineConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if config.Engine.Owner == "" {
		return nil, errors.New("engine.owner is required")
	}
	if config.Engine.Admin == "" {
		return nil, errors.New("engine.admin is required")
	}

	return &config, nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/engine/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("CEREMONY_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.ops_subject",
		"nats.consumer_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.ack_wait",
		"nats.max_deliver",
		"nats.publish_max_elapsed",
		// Engine
		"engine.owner",
		"engine.admin",
		"engine.exchange_rate",
		"engine.vesting_period",
		"engine.contribution_ceiling",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}
