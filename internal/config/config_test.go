package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("postgres:\n  dsn: host=db\n"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, SourceQueue, cfg.Pipeline.Source)
	assert.Equal(t, "identity", cfg.Pipeline.ChannelPrefix)
	assert.Equal(t, DefaultWaitTimeout, cfg.Pipeline.WaitTimeout)
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_SOURCE", SourceChangeFeed)
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PIPELINE_WAIT_TIMEOUT", "5m")

	cfg, err := Parse([]byte("pipeline:\n  source: queue\n"))
	require.NoError(t, err)
	assert.Equal(t, SourceChangeFeed, cfg.Pipeline.Source)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, MaxWaitTimeout, cfg.Pipeline.WaitTimeout)
}

func TestParse_RejectsUnknownSource(t *testing.T) {
	_, err := Parse([]byte("pipeline:\n  source: carrier-pigeon\n"))
	assert.Error(t, err)
}

func TestClampWaitTimeout(t *testing.T) {
	assert.Equal(t, DefaultWaitTimeout, ClampWaitTimeout(0))
	assert.Equal(t, MinWaitTimeout, ClampWaitTimeout(time.Millisecond))
	assert.Equal(t, 3*time.Second, ClampWaitTimeout(3*time.Second))
	assert.Equal(t, MaxWaitTimeout, ClampWaitTimeout(time.Hour))
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("IDENTITY_TEST_STREAM=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("IDENTITY_TEST_STREAM") })

	n, err := LoadEnvFiles(envFile, filepath.Join(dir, ".env.local"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "from-dotenv", os.Getenv("IDENTITY_TEST_STREAM"))

	n, err = LoadEnvFiles(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\npipeline:\n  source: changefeed\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, SourceChangeFeed, cfg.Pipeline.Source)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, Path())
	t.Setenv("CONFIG_PATH", "/etc/identity.yaml")
	assert.Equal(t, "/etc/identity.yaml", Path())
}
