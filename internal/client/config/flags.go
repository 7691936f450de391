package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flag names shared with the CLI.
const (
	FlagConfig     = "config"
	FlagServer     = "server"
	FlagDatabase   = "db"
	FlagLogLevel   = "log-level"
	FlagLogFile    = "log-file"
	FlagMedia      = "media"
	FlagInterval   = "interval"
	FlagTimeout    = "timeout"
	FlagS3Bucket   = "s3-bucket"
	FlagS3Region   = "s3-region"
	FlagS3Endpoint = "s3-endpoint"
)

// RegisterFlags declares the configuration flags on fs. Their defaults are
// zero values; only flags set on the command line override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagConfig, "c", "", "path to a JSON config file")
	fs.StringP(FlagServer, "a", "", "bookmark server base URL")
	fs.String(FlagDatabase, "", "local database path")
	fs.String(FlagLogLevel, "", "log level: debug, info, warn or error")
	fs.String(FlagLogFile, "", "write logs to this rotating file instead of stderr")
	fs.String(FlagMedia, "", "media backend: server or s3")
	fs.DurationP(FlagInterval, "i", 0, "online check interval")
	fs.Duration(FlagTimeout, 0, "request timeout")
	fs.String(FlagS3Bucket, "", "S3 bucket for media")
	fs.String(FlagS3Region, "", "S3 region")
	fs.String(FlagS3Endpoint, "", "S3-compatible endpoint URL")
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	strs := map[string]*string{
		FlagServer:     &cfg.ServerURL,
		FlagDatabase:   &cfg.DatabasePath,
		FlagLogLevel:   &cfg.LogLevel,
		FlagLogFile:    &cfg.LogFile,
		FlagMedia:      &cfg.MediaBackend,
		FlagS3Bucket:   &cfg.S3.Bucket,
		FlagS3Region:   &cfg.S3.Region,
		FlagS3Endpoint: &cfg.S3.Endpoint,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	cfg.DatabasePath = expandHome(cfg.DatabasePath)

	durs := map[string]*time.Duration{
		FlagInterval: &cfg.OnlineCheckInterval,
		FlagTimeout:  &cfg.RequestTimeout,
	}
	for name, dst := range durs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

// ConfigFile returns the -c/--config value of fs.
func ConfigFile(fs *pflag.FlagSet) string {
	v, _ := fs.GetString(FlagConfig)
	return v
}
