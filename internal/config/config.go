package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
)

// DefaultJWTSecret is the development fallback signing secret.
const DefaultJWTSecret = "change-me-in-production"

type Config struct {
	Server        ServerConfig        `envconfig:"SERVER"`
	JWT           JWTConfig           `envconfig:"JWT"`
	Auth          AuthConfig          `envconfig:"AUTH"`
	Store         StoreConfig         `envconfig:"STORE"`
	DynamoDB      DynamoDBConfig      `envconfig:"DYNAMODB"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	RateLimit     RateLimitConfig     `envconfig:"RATE_LIMIT"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	CORS          CORSConfig          `envconfig:"CORS"`
	Log           LogConfig           `envconfig:"LOG"`
	AWS           AWSConfig           `envconfig:"AWS"`
}

type AWSConfig struct {
	Region     string `envconfig:"REGION" default:"us-east-1"`
	Profile    string `envconfig:"PROFILE" default:""`
	SecretName string `envconfig:"SECRET_NAME" default:""`
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8000"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	PprofEnabled bool          `envconfig:"PPROF_ENABLED" default:"false"`
}

// JWTConfig describes the process-wide signing key. It is read once at
// startup; the key never changes while the process runs.
type JWTConfig struct {
	Secret         string        `envconfig:"SECRET" default:"change-me-in-production"` // HS256 secret
	SecretName     string        `envconfig:"SECRET_NAME" default:""`                   // Secrets Manager secret holding the HS256 secret
	PrivateKeyFile string        `envconfig:"PRIVATE_KEY_FILE" default:""`              // PEM RSA/EC key, switches to RS256/ES256
	TTL            time.Duration `envconfig:"TTL" default:"24h"`
	Issuer         string        `envconfig:"ISSUER" default:"cms-auth"`
	Audience       string        `envconfig:"AUDIENCE" default:"cms-api"`
}

// Floors for the configurable credential policy.
const (
	MinUsernameLength = 3
	MinPasswordLength = 5
)

type AuthConfig struct {
	BcryptCost        int `envconfig:"BCRYPT_COST" default:"10"`
	UsernameMinLength int `envconfig:"USERNAME_MIN_LENGTH" default:"3"`
	PasswordMinLength int `envconfig:"PASSWORD_MIN_LENGTH" default:"5"`
}

type StoreConfig struct {
	Backend string `envconfig:"BACKEND" default:"memory"` // memory|dynamodb
}

type DynamoDBConfig struct {
	UsersTableName string `envconfig:"USERS_TABLE_NAME" default:"cms-users"`
	Region         string `envconfig:"REGION" default:"us-east-1"`
	Endpoint       string `envconfig:"ENDPOINT" default:""` // DynamoDB Local for development
}

type RedisConfig struct {
	Enabled             bool          `envconfig:"ENABLED" default:"false"`
	Address             string        `envconfig:"ADDRESS" default:"localhost:6379"`
	Password            string        `envconfig:"PASSWORD" default:""`
	Database            int           `envconfig:"DATABASE" default:"0"`
	MaxRetries          int           `envconfig:"MAX_RETRIES" default:"3"`
	PoolSize            int           `envconfig:"POOL_SIZE" default:"100"`
	PoolTimeout         time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	TLSEnabled          bool          `envconfig:"TLS_ENABLED" default:"false"`
	PasswordFromSecrets bool          `envconfig:"PASSWORD_FROM_SECRETS" default:"false"`
	ClusterMode         bool          `envconfig:"CLUSTER_MODE" default:"false"`
}

type RateLimitConfig struct {
	RPS        int           `envconfig:"RPS" default:"5"`
	Burst      int           `envconfig:"BURST" default:"10"`
	WindowSize time.Duration `envconfig:"WINDOW_SIZE" default:"1s"`
	Enabled    bool          `envconfig:"ENABLED" default:"true"`
}

type ObservabilityConfig struct {
	MetricsPath    string  `envconfig:"METRICS_PATH" default:"/metrics"`
	OTLPEndpoint   string  `envconfig:"OTLP_ENDPOINT" default:"http://localhost:4318"`
	TracingEnabled bool    `envconfig:"TRACING_ENABLED" default:"false"`
	TraceExporter  string  `envconfig:"TRACE_EXPORTER" default:"otlp"` // otlp|stdout
	SampleRate     float64 `envconfig:"SAMPLE_RATE" default:"0.1"`
}

type CORSConfig struct {
	AllowOrigins string `envconfig:"ALLOW_ORIGINS" default:"*"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func validateConfig(cfg *Config) error {
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", cfg.Server.Port)
	}

	if cfg.Observability.SampleRate < 0 || cfg.Observability.SampleRate > 1 {
		return fmt.Errorf("invalid tracing sample rate: %f", cfg.Observability.SampleRate)
	}

	switch cfg.Observability.TraceExporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("invalid trace exporter: %s", cfg.Observability.TraceExporter)
	}

	if cfg.JWT.TTL <= 0 {
		return fmt.Errorf("invalid token ttl: %s", cfg.JWT.TTL)
	}

	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("invalid bcrypt cost: %d (must be between %d and %d)", cfg.Auth.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	if cfg.Auth.UsernameMinLength < MinUsernameLength {
		return fmt.Errorf("invalid username min length: %d (must be at least %d)", cfg.Auth.UsernameMinLength, MinUsernameLength)
	}
	if cfg.Auth.PasswordMinLength < MinPasswordLength {
		return fmt.Errorf("invalid password min length: %d (must be at least %d)", cfg.Auth.PasswordMinLength, MinPasswordLength)
	}

	// A zero window divides by zero inside the token bucket script
	if cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0 || cfg.RateLimit.WindowSize <= 0 {
		return fmt.Errorf("invalid rate limit: rps=%d burst=%d window=%s (all must be positive)",
			cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.WindowSize)
	}

	switch cfg.Store.Backend {
	case "memory", "dynamodb":
	default:
		return fmt.Errorf("invalid store backend: %s", cfg.Store.Backend)
	}

	// The development secret must never sign production tokens
	if cfg.IsProduction() && cfg.JWT.PrivateKeyFile == "" && cfg.JWT.SecretName == "" && cfg.JWT.Secret == DefaultJWTSecret {
		return fmt.Errorf("JWT_SECRET, JWT_SECRET_NAME or JWT_PRIVATE_KEY_FILE must be set in production")
	}

	if cfg.JWT.PrivateKeyFile != "" {
		if _, err := os.Stat(cfg.JWT.PrivateKeyFile); err != nil {
			return fmt.Errorf("jwt private key file: %w", err)
		}
	}

	return nil
}
