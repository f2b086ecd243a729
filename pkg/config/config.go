package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the configuration for the gateway and the CLI
type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" env:"HOST" envDefault:"0.0.0.0"`
	Port         int           `yaml:"port" env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"5m"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" envDefault:"120s"`
}

// StorageConfig holds blob storage configuration
type StorageConfig struct {
	Type string `yaml:"type" env:"TYPE" envDefault:"local"` // azure, s3, local

	// Azure
	ConnectionString string `yaml:"connection_string" env:"CONNECTION_STRING"`

	// S3
	Region         string `yaml:"region" env:"REGION" envDefault:"us-east-1"`
	Endpoint       string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey      string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey      string `yaml:"secret_key" env:"SECRET_KEY"`
	ForcePathStyle bool   `yaml:"force_path_style" env:"FORCE_PATH_STYLE"`

	// Local
	LocalPath    string `yaml:"local_path" env:"LOCAL_PATH" envDefault:"./data"`
	LocalBaseURL string `yaml:"local_base_url" env:"LOCAL_BASE_URL"`
}

// AuthConfig holds gateway access settings. Access control is disabled
// when neither a JWT secret nor API key hashes are set.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiration time.Duration `yaml:"jwt_expiration" env:"JWT_EXPIRATION" envDefault:"24h"`
	APIKeyHashes  []string      `yaml:"api_key_hashes" env:"API_KEY_HASHES" envSeparator:","`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL" envDefault:"info"`
	Format string `yaml:"format" env:"FORMAT" envDefault:"json"` // json, text
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED" envDefault:"true"`
	Path    string `yaml:"path" env:"PATH" envDefault:"/metrics"`
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected storage backend has what it needs
func (s *StorageConfig) Validate() error {
	switch s.Type {
	case "azure":
		if s.ConnectionString == "" {
			return fmt.Errorf("azure storage requires STORAGE_CONNECTION_STRING")
		}
	case "s3":
		if s.Region == "" {
			return fmt.Errorf("s3 storage requires STORAGE_REGION")
		}
		if (s.AccessKey == "") != (s.SecretKey == "") {
			return fmt.Errorf("s3 storage requires both STORAGE_ACCESS_KEY and STORAGE_SECRET_KEY, or neither")
		}
	case "local":
		if s.LocalPath == "" {
			return fmt.Errorf("local storage requires STORAGE_LOCAL_PATH")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", s.Type)
	}
	return nil
}

// Addr returns the listen address of the HTTP server
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Enabled reports whether any gateway credential is configured
func (a *AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || len(a.APIKeyHashes) > 0
}
