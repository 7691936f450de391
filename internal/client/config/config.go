package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
)

const (
	MediaServer = "server"
	MediaS3     = "s3"
)

// S3 settings for the s3 media backend.
type S3 struct {
	Region        string `json:"region"`
	Endpoint      string `json:"endpoint" validate:"omitempty,url"`
	Bucket        string `json:"bucket"`
	AccessKey     string `json:"access_key"`
	SecretKey     string `json:"secret_key"`
	PublicBaseURL string `json:"public_base_url" validate:"omitempty,url"`
	Prefix        string `json:"prefix"`
}

// Config holds runtime settings for the marksync CLI.
type Config struct {
	ServerURL           string        `validate:"required,url"`
	DatabasePath        string        `validate:"required"`
	RequestTimeout      time.Duration `validate:"gt=0"`
	OnlineCheckInterval time.Duration `validate:"gt=0"`
	LinkCheckInterval   time.Duration `validate:"gt=0"`
	LinkCheckWorkers    int           `validate:"gte=1,lte=64"`
	Source              string        `validate:"required"`

	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string

	MediaBackend string `validate:"oneof=server s3"`
	MediaWorkers int    `validate:"gte=1,lte=32"`
	S3           S3
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = defaultDatabasePath()
	c.RequestTimeout = 30 * time.Second
	c.OnlineCheckInterval = 30 * time.Second
	c.LinkCheckInterval = 24 * time.Hour
	c.LinkCheckWorkers = 8
	c.Source = "cli"
	c.LogLevel = "info"
	c.MediaBackend = MediaServer
	c.MediaWorkers = 4
}

func defaultDatabasePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "marksync", "marksync.db")
	}
	return "marksync.db"
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the settings the chosen media
// backend needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.MediaBackend == MediaS3 && c.S3.Bucket == "" {
		return errors.New("invalid config: s3 media backend needs s3.bucket")
	}
	return nil
}

// Options select the optional sources of Load.
type Options struct {
	// File is the JSON config path; empty skips it.
	File string
	// EnvFile is loaded into the environment when it exists.
	EnvFile string
	// Flags were declared with RegisterFlags and are applied last; only
	// flags set on the command line count.
	Flags *pflag.FlagSet
	// Lookup reads the environment; nil means os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load builds a Config from defaults, the JSON file, the environment and
// flags, then validates it.
func Load(opts Options) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if opts.File != "" {
		if err := parseJSON(cfg, opts.File); err != nil {
			return nil, err
		}
	}
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := parseEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if opts.Flags != nil {
		if err := applyFlags(cfg, opts.Flags); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
