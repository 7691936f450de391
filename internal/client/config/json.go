package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/marksync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent
// fields leave the current value alone.
type JsonConfig struct {
	ServerURL           string          `json:"server_url"`
	DatabasePath        string          `json:"database_path"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	LinkCheckInterval   *timex.Duration `json:"link_check_interval"`
	LinkCheckWorkers    int             `json:"link_check_workers"`
	Source              string          `json:"source"`
	LogLevel            string          `json:"log_level"`
	LogFile             string          `json:"log_file"`
	MediaBackend        string          `json:"media_backend"`
	MediaWorkers        int             `json:"media_workers"`
	S3                  *S3             `json:"s3"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func parseJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.DatabasePath, expandHome(jc.DatabasePath))
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.LinkCheckInterval != nil {
		cfg.LinkCheckInterval = jc.LinkCheckInterval.Duration
	}
	setInt(&cfg.LinkCheckWorkers, jc.LinkCheckWorkers)
	setString(&cfg.Source, jc.Source)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFile, expandHome(jc.LogFile))
	setString(&cfg.MediaBackend, jc.MediaBackend)
	setInt(&cfg.MediaWorkers, jc.MediaWorkers)
	if jc.S3 != nil {
		cfg.S3 = *jc.S3
	}
	return nil
}
