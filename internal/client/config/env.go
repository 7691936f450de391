package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "MARKSYNC_"

// loadEnvFile exports the variables of path unless they are already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func parseEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := get(name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v, ok := get(name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("SERVER_URL", &cfg.ServerURL)
	str("DATABASE_PATH", &cfg.DatabasePath)
	cfg.DatabasePath = expandHome(cfg.DatabasePath)
	str("SOURCE", &cfg.Source)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)
	str("MEDIA_BACKEND", &cfg.MediaBackend)
	str("S3_REGION", &cfg.S3.Region)
	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	str("S3_BUCKET", &cfg.S3.Bucket)
	str("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	str("S3_SECRET_KEY", &cfg.S3.SecretKey)
	str("S3_PUBLIC_BASE_URL", &cfg.S3.PublicBaseURL)
	str("S3_PREFIX", &cfg.S3.Prefix)

	for name, dst := range map[string]*time.Duration{
		"REQUEST_TIMEOUT":       &cfg.RequestTimeout,
		"ONLINE_CHECK_INTERVAL": &cfg.OnlineCheckInterval,
		"LINK_CHECK_INTERVAL":   &cfg.LinkCheckInterval,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*int{
		"MEDIA_WORKERS":      &cfg.MediaWorkers,
		"LINK_CHECK_WORKERS": &cfg.LinkCheckWorkers,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	return nil
}
