package courier

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "courier.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "localhost:6379", cfg.Broker.Addr)
	assert.Equal(t, DefaultPrefix, cfg.Node.Prefix)
	assert.Equal(t, DefaultRole, cfg.Node.Role)

	interval, err := cfg.HeartbeatInterval()
	require.NoError(t, err)
	assert.Equal(t, DefaultHeartbeat, interval)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
broker:
  addr: redis.internal:6380
  db: 2
node:
  prefix: lab
  role: sensor
  heartbeat: 5s
logging:
  level: debug
  console: true
telemetry:
  enabled: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Broker.Addr)
	assert.Equal(t, 2, cfg.Broker.DB)
	assert.Equal(t, "lab", cfg.Node.Prefix)
	assert.Equal(t, "sensor", cfg.Node.Role)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, ":9115", cfg.Telemetry.Addr, "unset fields fall back to defaults")

	interval, err := cfg.HeartbeatInterval()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, interval)
}

func TestLoadConfigInvalidHeartbeat(t *testing.T) {
	path := writeConfigFile(t, `
node:
  heartbeat: yesterday
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat")
}

func TestLoadConfigNegativeHeartbeat(t *testing.T) {
	path := writeConfigFile(t, `
node:
  heartbeat: -10s
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestConfigOptions(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Node.Prefix = "lab"
	cfg.Node.Heartbeat = "2s"

	opts, err := cfg.Options()
	require.NoError(t, err)

	o := newOptions(DefaultRole, opts...)
	assert.Equal(t, "lab", o.prefix)
	assert.Equal(t, 2*time.Second, o.heartbeat)
}
