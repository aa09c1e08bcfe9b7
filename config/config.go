package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CHAT"

type HTTP struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowedOrigins" envconfig:"ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `yaml:"requestTimeout" envconfig:"REQUEST_TIMEOUT"`
	ReadTimeout    time.Duration `yaml:"readTimeout" envconfig:"READ_TIMEOUT"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" envconfig:"IDLE_TIMEOUT"`
}

type GRPC struct {
	Addr           string        `yaml:"addr"`
	DefaultTimeout time.Duration `yaml:"defaultTimeout" envconfig:"DEFAULT_TIMEOUT"`
	InternalKey    string        `yaml:"internalKey" envconfig:"INTERNAL_KEY"` // empty disables PostSystemMessage
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chat-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource" envconfig:"ADD_SOURCE"`
	Debug     bool   `yaml:"debug"`
}

type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns" envconfig:"MAX_CONNS"`
	MinConns        int32         `yaml:"minConns" envconfig:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" envconfig:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" envconfig:"MAX_CONN_IDLE_TIME"`
	Migrate         bool          `yaml:"migrate"`
}

type Badger struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"inMemory" envconfig:"IN_MEMORY"`
}

type Store struct {
	Driver   string   `yaml:"driver"` // postgres|badger
	Postgres Postgres `yaml:"postgres"`
	Badger   Badger   `yaml:"badger"`
}

type Broadcast struct {
	Driver         string        `yaml:"driver"` // memory|redis|nats
	RedisURL       string        `yaml:"redisUrl" envconfig:"REDIS_URL"`
	NATSURL        string        `yaml:"natsUrl" envconfig:"NATS_URL"`
	Buffer         int           `yaml:"buffer"`
	PublishTimeout time.Duration `yaml:"publishTimeout" envconfig:"PUBLISH_TIMEOUT"`
}

type Auth struct {
	PublicKeyPath string        `yaml:"publicKeyPath" envconfig:"PUBLIC_KEY_PATH"`
	Secret        string        `yaml:"secret"` // HS256, dev only
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew" envconfig:"CLOCK_SKEW"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Store     Store     `yaml:"store"`
	Broadcast Broadcast `yaml:"broadcast"`
	Auth      Auth      `yaml:"auth"`
	Metrics   Metrics   `yaml:"metrics"`
}

// LoadConfig reads .env (if any), the YAML file at CONFIG_PATH and then
// CHAT_* environment overrides, in that order.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit || path == "" {
		path = "./config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// env-only deployment
	default:
		return nil, err
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}

	switch c.Store.Driver {
	case "":
		c.Store.Driver = "postgres"
		fallthrough
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn is required")
		}
	case "badger":
		if c.Store.Badger.Dir == "" && !c.Store.Badger.InMemory {
			return errors.New("store.badger.dir is required unless inMemory")
		}
	default:
		return fmt.Errorf("store.driver %q: want postgres or badger", c.Store.Driver)
	}

	switch c.Broadcast.Driver {
	case "":
		c.Broadcast.Driver = "memory"
	case "memory":
	case "redis":
		if c.Broadcast.RedisURL == "" {
			return errors.New("broadcast.redisUrl is required")
		}
	case "nats":
		if c.Broadcast.NATSURL == "" {
			return errors.New("broadcast.natsUrl is required")
		}
	default:
		return fmt.Errorf("broadcast.driver %q: want memory, redis or nats", c.Broadcast.Driver)
	}

	if c.Auth.PublicKeyPath == "" && c.Auth.Secret == "" {
		return errors.New("auth.publicKeyPath or auth.secret is required")
	}

	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	c.HTTP.RequestTimeout = orDefault(c.HTTP.RequestTimeout, 30*time.Second)
	c.HTTP.ReadTimeout = orDefault(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.IdleTimeout = orDefault(c.HTTP.IdleTimeout, 60*time.Second)
	c.GRPC.DefaultTimeout = orDefault(c.GRPC.DefaultTimeout, 10*time.Second)
	c.Broadcast.PublishTimeout = orDefault(c.Broadcast.PublishTimeout, 5*time.Second)
	c.Auth.ClockSkew = orDefault(c.Auth.ClockSkew, 30*time.Second)
	if c.Broadcast.Buffer <= 0 {
		c.Broadcast.Buffer = 64
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
