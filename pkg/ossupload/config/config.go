// Package config loads uploader settings for the executables and builds an Uploader
// from them.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/oss-upload/pkg/ossupload"
	"github.com/tendant/oss-upload/pkg/ossupload/credential"
	"github.com/tendant/oss-upload/pkg/ossupload/policy"
	s3transport "github.com/tendant/oss-upload/pkg/ossupload/transport/s3"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Config holds everything needed to sign and send uploads
type Config struct {
	CredentialURL string        `env:"OSS_CREDENTIAL_URL" env-default:"http://localhost:3000/api/v1/oss/token" validate:"required,url"`
	BearerToken   string        `env:"OSS_BEARER_TOKEN"`
	KeyPrefix     string        `env:"OSS_KEY_PREFIX"`
	PolicyTTL     time.Duration `env:"OSS_POLICY_TTL" env-default:"1h" validate:"gt=0"`
	MaxSize       int64         `env:"OSS_MAX_SIZE" env-default:"1073741824" validate:"gt=0"`
	SuccessStatus string        `env:"OSS_SUCCESS_ACTION_STATUS" env-default:"200" validate:"oneof=200 201 204"`
	Transport     string        `env:"OSS_TRANSPORT" env-default:"http" validate:"oneof=http s3"`
	AlbumDir      string        `env:"OSS_ALBUM_DIR" env-default:"."`
	LogLevel      string        `env:"LOG_LEVEL" env-default:"info"`
	S3            S3Config
}

// S3Config is only read when Transport is "s3"
type S3Config struct {
	Bucket       string `env:"OSS_S3_BUCKET"`
	Region       string `env:"OSS_S3_REGION" env-default:"us-east-1"`
	Endpoint     string `env:"OSS_S3_ENDPOINT"`
	UsePathStyle bool   `env:"OSS_S3_USE_PATH_STYLE" env-default:"false"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		CredentialURL: "http://localhost:3000/api/v1/oss/token",
		PolicyTTL:     policy.DefaultTTL,
		MaxSize:       policy.DefaultMaxSize,
		SuccessStatus: "200",
		Transport:     "http",
		AlbumDir:      ".",
		LogLevel:      "info",
		S3: S3Config{
			Region: "us-east-1",
		},
	}
}

// WithEnv reads the process environment. Apply it before programmatic options:
// unset variables reset fields to their env-default.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithCredentialURL sets the credential endpoint
func WithCredentialURL(url string) Option {
	return func(c *Config) error {
		if url == "" {
			return errors.New("credential URL cannot be empty")
		}
		c.CredentialURL = url
		return nil
	}
}

// WithBearerToken sets the token sent to the credential endpoint
func WithBearerToken(token string) Option {
	return func(c *Config) error {
		c.BearerToken = token
		return nil
	}
}

// WithKeyPrefix sets the object key prefix, e.g. "test/"
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) error {
		c.KeyPrefix = prefix
		return nil
	}
}

// WithS3Transport switches to the S3-compatible transport
func WithS3Transport(bucket, region, endpoint string, usePathStyle bool) Option {
	return func(c *Config) error {
		if bucket == "" {
			return errors.New("bucket name is required for s3 transport")
		}
		c.Transport = "s3"
		c.S3 = S3Config{
			Bucket:       bucket,
			Region:       region,
			Endpoint:     endpoint,
			UsePathStyle: usePathStyle,
		}
		return nil
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Transport == "s3" && c.S3.Bucket == "" {
		return errors.New("invalid configuration: OSS_S3_BUCKET is required when OSS_TRANSPORT is s3")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// BuildUploader creates an Uploader from the configuration
func (c *Config) BuildUploader(logger *slog.Logger, extra ...ossupload.Option) (*ossupload.Uploader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider := credential.NewHTTPProvider(c.CredentialURL,
		credential.WithBearerToken(c.BearerToken),
		credential.WithLogger(logger),
	)

	opts := []ossupload.Option{
		ossupload.WithKeyPrefix(c.KeyPrefix),
		ossupload.WithPolicyTTL(c.PolicyTTL),
		ossupload.WithMaxSize(c.MaxSize),
		ossupload.WithSuccessStatus(c.SuccessStatus),
		ossupload.WithLogger(logger),
	}

	if c.Transport == "s3" {
		transport, err := s3transport.New(s3transport.Config{
			Bucket:       c.S3.Bucket,
			Region:       c.S3.Region,
			Endpoint:     c.S3.Endpoint,
			UsePathStyle: c.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 transport: %w", err)
		}
		opts = append(opts, ossupload.WithTransport(transport))
	}

	return ossupload.New(provider, append(opts, extra...)...), nil
}
