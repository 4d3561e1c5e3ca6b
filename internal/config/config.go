package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Bidding   BiddingConfig   `mapstructure:"bidding"`
	API       APIConfig       `mapstructure:"api"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SQLiteConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig enables event publishing when Address is set
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type BiddingConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	TopBids     int `mapstructure:"top_bids"`
}

type APIConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// LifecycleConfig drives the transition watcher; an empty schedule disables it
type LifecycleConfig struct {
	Schedule string `mapstructure:"schedule"`
}

const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// Load reads .env, then defaults, an optional config.yaml and environment variables, in increasing priority
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	return load(viper.New(), "")
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// an exported but empty LIFECYCLE_SCHEDULE or REDIS_ADDRESS disables that component
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// no config file, continue with defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "live_auction")
	v.SetDefault("mongo.timeout", 10*time.Second)
	v.SetDefault("sqlite.dsn", "file:auction.db?_pragma=busy_timeout(5000)")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "auction_events")
	v.SetDefault("bidding.max_attempts", 5)
	v.SetDefault("bidding.top_bids", 10)
	v.SetDefault("api.default_limit", 20)
	v.SetDefault("api.max_limit", 100)
	v.SetDefault("lifecycle.schedule", "@every 30s")
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":          "PORT",
		"server.mode":          "GIN_MODE",
		"server.cors_origins":  "CORS_ORIGINS",
		"log.level":            "LOG_LEVEL",
		"store.driver":         "STORE_DRIVER",
		"mongo.uri":            "DATABASE_URL",
		"mongo.database":       "DATABASE_NAME",
		"mongo.timeout":        "MONGO_TIMEOUT",
		"sqlite.dsn":           "SQLITE_DSN",
		"redis.address":        "REDIS_ADDRESS",
		"redis.password":       "REDIS_PASSWORD",
		"redis.db":             "REDIS_DB",
		"redis.channel":        "REDIS_CHANNEL",
		"bidding.max_attempts": "BIDDING_MAX_ATTEMPTS",
		"bidding.top_bids":     "BIDDING_TOP_BIDS",
		"api.default_limit":    "API_DEFAULT_LIMIT",
		"api.max_limit":        "API_MAX_LIMIT",
		"lifecycle.schedule":   "LIFECYCLE_SCHEDULE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Bidding.MaxAttempts <= 0 {
		return fmt.Errorf("config: bidding.max_attempts must be positive, got %d", c.Bidding.MaxAttempts)
	}
	if c.API.DefaultLimit <= 0 || c.API.MaxLimit < c.API.DefaultLimit {
		return fmt.Errorf("config: api limits must satisfy 0 < default_limit <= max_limit, got %d/%d", c.API.DefaultLimit, c.API.MaxLimit)
	}
	for _, o := range c.Server.CORSOrigins {
		o = strings.TrimSpace(o)
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("config: cors origin %q must be \"*\" or start with http:// or https://", o)
		}
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: :%d (%s), Store: %s, Redis: %q, Lifecycle: %q",
		c.Server.Port,
		c.Server.Mode,
		c.Store.Driver,
		c.Redis.Address,
		c.Lifecycle.Schedule,
	)
}
