package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, 30*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, MediaServer, c.MediaBackend)
	assert.NotEmpty(t, c.DatabasePath)
	require.NoError(t, c.Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load(Options{Lookup: noEnv})
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Precedence(t *testing.T) {
	file := writeFile(t, "config.json", `{
		"server_url": "https://json.example.com",
		"database_path": "/tmp/json.db",
		"online_check_interval": "10s",
		"request_timeout": 5000000000,
		"media_workers": 2,
		"log_level": "warn"
	}`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-a", "https://flag.example.com", "--interval", "1m"}))

	cfg, err := Load(Options{
		File: file,
		Lookup: envMap(map[string]string{
			"MARKSYNC_SERVER_URL":            "https://env.example.com",
			"MARKSYNC_LOG_LEVEL":             "debug",
			"MARKSYNC_ONLINE_CHECK_INTERVAL": "20s",
		}),
		Flags: fs,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", cfg.ServerURL, "flag beats env")
	assert.Equal(t, time.Minute, cfg.OnlineCheckInterval, "flag beats env")
	assert.Equal(t, "debug", cfg.LogLevel, "env beats json")
	assert.Equal(t, "/tmp/json.db", cfg.DatabasePath, "json beats default")
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.MediaWorkers)
	assert.Equal(t, 24*time.Hour, cfg.LinkCheckInterval, "untouched default")
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(Options{Lookup: envMap(map[string]string{"MARKSYNC_SERVER_URL": "https://env.example.com"}), Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.ServerURL)
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "MARKSYNC_TEST_ONLY_SOURCE=from-dotenv\n")
	t.Setenv("MARKSYNC_TEST_ONLY_SOURCE", "")
	require.NoError(t, os.Unsetenv("MARKSYNC_TEST_ONLY_SOURCE"))

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "from-dotenv", os.Getenv("MARKSYNC_TEST_ONLY_SOURCE"))

	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing json", Options{File: filepath.Join(t.TempDir(), "nope.json"), Lookup: noEnv}},
		{"bad json", Options{File: writeFile(t, "bad.json", "{"), Lookup: noEnv}},
		{"bad duration", Options{Lookup: envMap(map[string]string{"MARKSYNC_REQUEST_TIMEOUT": "soon"})}},
		{"bad number", Options{Lookup: envMap(map[string]string{"MARKSYNC_MEDIA_WORKERS": "many"})}},
		{"bad url", Options{Lookup: envMap(map[string]string{"MARKSYNC_SERVER_URL": "not a url"})}},
		{"bad level", Options{Lookup: envMap(map[string]string{"MARKSYNC_LOG_LEVEL": "loud"})}},
		{"s3 without bucket", Options{Lookup: envMap(map[string]string{"MARKSYNC_MEDIA_BACKEND": "s3"})}},
		{"unknown backend", Options{Lookup: envMap(map[string]string{"MARKSYNC_MEDIA_BACKEND": "ftp"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts)
			require.Error(t, err)
		})
	}
}

func TestLoad_S3FromJSON(t *testing.T) {
	file := writeFile(t, "s3.json", `{"media_backend": "s3", "s3": {"bucket": "media", "region": "eu-central-1", "endpoint": "http://localhost:9000"}}`)

	cfg, err := Load(Options{File: file, Lookup: noEnv})
	require.NoError(t, err)
	assert.Equal(t, S3{Bucket: "media", Region: "eu-central-1", Endpoint: "http://localhost:9000"}, cfg.S3)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x.db"), expandHome("~/x.db"))
	assert.Equal(t, "/abs/x.db", expandHome("/abs/x.db"))
}

func TestConfigFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-c", "/etc/marksync.json"}))
	assert.Equal(t, "/etc/marksync.json", ConfigFile(fs))
}
