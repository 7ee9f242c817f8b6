// Package config loads server configuration from the environment and
// an optional tenants file, with hot reloading of the tenants file in
// development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"antbox-backend/pkg/errors"
)

// Environment names.
const (
	Development = "development"
	Production  = "production"
)

// Config is the full server configuration.
type Config struct {
	Environment string `validate:"oneof=development production"`

	HTTP          HTTPConfig
	Auth          AuthConfig
	Persistence   PersistenceConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// TenantsFile optionally names a YAML file with extra tenants;
	// when empty only the default tenant exists.
	TenantsFile   string
	DefaultTenant string `validate:"required"`
}

// HTTPConfig shapes the listener.
type HTTPConfig struct {
	Port            int           `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `validate:"min=1s"`
	WriteTimeout    time.Duration `validate:"min=1s"`
	ShutdownTimeout time.Duration `validate:"min=1s"`
	AllowedOrigins  []string
}

// AuthConfig holds token and root credential settings. The root
// password is stored as a SHA-256 hex digest, never in clear.
type AuthConfig struct {
	JWTSecret        string `validate:"required,min=16"`
	JWTIssuer        string `validate:"required"`
	TokenTTL         time.Duration
	RootPasswordHash string `validate:"required,len=64,hexadecimal"`
}

// PersistenceConfig selects the repository and blob backends.
type PersistenceConfig struct {
	// Repository is one of memory, bolt, dynamodb.
	Repository string `validate:"oneof=memory bolt dynamodb"`
	// Storage is one of memory, disk, s3.
	Storage string `validate:"oneof=memory disk s3"`

	DataDir       string
	DynamoDBTable string
	S3Bucket      string
	S3Prefix      string
}

// AWSConfig covers the optional AWS integrations.
type AWSConfig struct {
	Region        string
	EventBusName  string
	EventBusRelay bool
}

// ObservabilityConfig selects tracing and metrics behavior.
type ObservabilityConfig struct {
	ServiceName  string `validate:"required"`
	OTLPEndpoint string
	Tracing      bool
}

// Load reads configuration from the environment. Unset variables get
// development defaults; validation failures aggregate into one error.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: envOr("ANTBOX_ENV", Development),
		HTTP: HTTPConfig{
			Port:            envInt("ANTBOX_PORT", 7180),
			ReadTimeout:     envDuration("ANTBOX_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    envDuration("ANTBOX_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: envDuration("ANTBOX_SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  envList("ANTBOX_ALLOWED_ORIGINS", []string{"*"}),
		},
		Auth: AuthConfig{
			JWTSecret: envOr("ANTBOX_JWT_SECRET", "antbox-development-secret"),
			JWTIssuer: envOr("ANTBOX_JWT_ISSUER", "antbox"),
			TokenTTL:  envDuration("ANTBOX_TOKEN_TTL", 4*time.Hour),
			// sha256("demo") unless overridden.
			RootPasswordHash: envOr("ANTBOX_ROOT_PASSWD_SHA256",
				"2a97516c354b68848cdbd8f54a226a0a55b21ed138e207ad6c5cbb9c00aa5aea"),
		},
		Persistence: PersistenceConfig{
			Repository:    envOr("ANTBOX_REPOSITORY", "memory"),
			Storage:       envOr("ANTBOX_STORAGE", "memory"),
			DataDir:       envOr("ANTBOX_DATA_DIR", "./data"),
			DynamoDBTable: os.Getenv("ANTBOX_DDB_TABLE"),
			S3Bucket:      os.Getenv("ANTBOX_S3_BUCKET"),
			S3Prefix:      os.Getenv("ANTBOX_S3_PREFIX"),
		},
		AWS: AWSConfig{
			Region:        envOr("AWS_REGION", "us-east-1"),
			EventBusName:  os.Getenv("ANTBOX_EVENT_BUS"),
			EventBusRelay: os.Getenv("ANTBOX_EVENT_BUS") != "",
		},
		Observability: ObservabilityConfig{
			ServiceName:  envOr("ANTBOX_SERVICE_NAME", "antbox"),
			OTLPEndpoint: os.Getenv("ANTBOX_OTLP_ENDPOINT"),
			Tracing:      os.Getenv("ANTBOX_OTLP_ENDPOINT") != "",
		},
		TenantsFile:   os.Getenv("ANTBOX_TENANTS_FILE"),
		DefaultTenant: envOr("ANTBOX_DEFAULT_TENANT", "default"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, including cross-field rules the
// tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var errs []error
		if invalid, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range invalid {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
		return errors.NewValidationErrors(errs...)
	}

	var errs []error
	if c.Persistence.Repository == "dynamodb" && c.Persistence.DynamoDBTable == "" {
		errs = append(errs, fmt.Errorf("persistence: dynamodb repository needs ANTBOX_DDB_TABLE"))
	}
	if c.Persistence.Storage == "s3" && c.Persistence.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("persistence: s3 storage needs ANTBOX_S3_BUCKET"))
	}
	if c.Environment == Production && c.Auth.JWTSecret == "antbox-development-secret" {
		errs = append(errs, fmt.Errorf("auth: production needs an explicit ANTBOX_JWT_SECRET"))
	}
	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return fallback
}
