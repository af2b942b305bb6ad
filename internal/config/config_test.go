package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atquote.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Proxy.Host)
	assert.Equal(t, 5000, cfg.Proxy.Port)
	assert.Equal(t, 30*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, "America/New_York", cfg.Proxy.Location)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileEnvFlags(t *testing.T) {
	path := writeConfig(t, `
proxy:
  host: 10.0.0.7
  port: 5100
  timeout: 5s
cache:
  backend: redis
  ttl: 1h
  redis:
    addr: redis:6379
    db: 2
log:
  level: debug
`)
	t.Setenv("ATQUOTE_PROXY_PORT", "5200")
	t.Setenv("ATQUOTE_LOG_FORMAT", "json")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level", "warn", "--cache-size", "64"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", cfg.Proxy.Host, "file")
	assert.Equal(t, 5200, cfg.Proxy.Port, "env beats file")
	assert.Equal(t, 5*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "warn", cfg.Log.Level, "flag beats file")
	assert.Equal(t, 64, cfg.Cache.Size)
}

func TestLoad_UnsetFlagsKeepFileValues(t *testing.T) {
	path := writeConfig(t, "proxy:\n  host: proxy.lan\n")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "proxy.lan", cfg.Proxy.Host)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "cache:\n  backend: memcached\n"), nil)
	assert.ErrorContains(t, err, "memcached")

	_, err = Load(writeConfig(t, "proxy:\n  port: 70000\n"), nil)
	assert.ErrorContains(t, err, "proxy.port")

	_, err = Load(writeConfig(t, "proxy:\n  location: Mars/Olympus\n"), nil)
	assert.ErrorContains(t, err, "proxy.location")

	_, err = Load(writeConfig(t, "cache:\n  size: -1\n"), nil)
	assert.ErrorContains(t, err, "cache.size")

	_, err = Load(writeConfig(t, "cache:\n  backend: bolt\n  bolt_path: \"\"\n"), nil)
	assert.ErrorContains(t, err, "bolt_path")
}
