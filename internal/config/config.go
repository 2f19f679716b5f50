package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const masked = "****"

// Config holds the backend connection settings.
type Config struct {
	MongoURL    string `env:"MONGO_URL" envDefault:"mongodb://localhost:27017" validate:"required,uri" json:"mongo_url"`
	Database    string `env:"MONGO_DATABASE" envDefault:"parse" validate:"required" json:"database"`
	Username    string `env:"MONGO_USERNAME" json:"username,omitempty"`
	Password    string `env:"MONGO_PASSWORD" json:"password,omitempty"`
	Timeout     int    `env:"MONGO_TIMEOUT" envDefault:"30" validate:"gt=0" json:"timeout_seconds"`
	MaxPoolSize int    `env:"MONGO_MAX_POOL_SIZE" envDefault:"10" validate:"gt=0" json:"max_pool_size"`
	MinPoolSize int    `env:"MONGO_MIN_POOL_SIZE" envDefault:"1" validate:"gte=0,ltefield=MaxPoolSize" json:"min_pool_size"`
	MaxIdleTime int    `env:"MONGO_MAX_IDLE_TIME" envDefault:"300" validate:"gte=0" json:"max_idle_time_seconds"`
	SSLEnabled  bool   `env:"MONGO_SSL_ENABLED" json:"ssl_enabled"`
	SSLInsecure bool   `env:"MONGO_SSL_INSECURE" json:"ssl_insecure"`

	SchemaCollection string `env:"PARSE_SCHEMA_COLLECTION" envDefault:"_SCHEMA" validate:"required" json:"schema_collection"`
	StrictClasses    bool   `env:"PARSE_STRICT_CLASSES" json:"strict_classes"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the given dotenv files, skipping ones that do not exist, and then
// builds the configuration from the environment.
func Load(files ...string) (*Config, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}
	return LoadFromEnv()
}

// LoadFile is like Load but requires path to exist.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	return Load(path)
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// GetConnectionString returns MongoURL with the configured credentials
// applied. Credentials already present in the URL win.
func (c *Config) GetConnectionString() string {
	if c.Username == "" {
		return c.MongoURL
	}
	u, err := url.Parse(c.MongoURL)
	if err != nil || u.User != nil {
		return c.MongoURL
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	} else {
		u.User = url.User(c.Username)
	}
	return u.String()
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// ClientOptions builds the driver options for this config.
func (c *Config) ClientOptions() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(c.GetConnectionString()).
		SetMaxPoolSize(uint64(c.MaxPoolSize)).
		SetMinPoolSize(uint64(c.MinPoolSize)).
		SetMaxConnIdleTime(time.Duration(c.MaxIdleTime) * time.Second).
		SetConnectTimeout(c.TimeoutDuration()).
		SetServerSelectionTimeout(c.TimeoutDuration())

	if c.SSLEnabled {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: c.SSLInsecure}) // #nosec G402 -- user-configurable for dev environments
	}
	return opts
}

// Masked returns a copy with secrets hidden, for display.
func (c *Config) Masked() Config {
	out := *c
	if out.Password != "" {
		out.Password = masked
	}
	if u, err := url.Parse(out.MongoURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), masked)
			out.MongoURL = strings.Replace(u.String(), url.QueryEscape(masked), masked, 1)
		}
	}
	return out
}
