package corecfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoadsConfigFileAndValidates(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{
		"standard_queue_depth": 2048,
		"io_timeout_ms": 500,
		"io_maxsize": 65536,
		"nats": {"address": "nats://localhost:4222"},
		"dispatcher": {"num_workers": 8, "queue_depth": 512}
	}`), 0o644))

	require.NoError(t, Init(cfgPath, ""))

	assert.Equal(t, 2048, Keys.StandardQueueDepth)
	assert.Equal(t, 500, Keys.IOTimeoutMS)
	assert.Equal(t, "nats://localhost:4222", Keys.NATS.Address)
	assert.Equal(t, 8, Keys.Dispatcher.NumWorkers)
}

func TestInitRejectsConfigMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"io_timeout_ms": 500}`), 0o644))

	err := Init(cfgPath, "")
	assert.Error(t, err)
}

func TestInitWithMissingConfigFileKeepsDefaults(t *testing.T) {
	Keys = Config{StandardQueueDepth: 1024, IOTimeoutMS: 1000, IOMaxSize: 1 << 20}
	require.NoError(t, Init(filepath.Join(t.TempDir(), "does-not-exist.json"), ""))
	assert.Equal(t, 1024, Keys.StandardQueueDepth)
}

func TestApplyEnvOverridesReadsNatsAddressFromEnvironment(t *testing.T) {
	t.Setenv("SLIDERULE_NATS_ADDRESS", "nats://envhost:4222")
	Keys = Config{}
	applyEnvOverrides()
	assert.Equal(t, "nats://envhost:4222", Keys.NATS.Address)
}
