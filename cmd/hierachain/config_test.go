package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/core"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, core.DefaultConfig(), config.Engine)
	assert.Equal(t, "127.0.0.1:50051", config.Server.ArrowAddr)
	assert.Empty(t, config.Server.ZmqAddr)
	assert.False(t, config.Auth.Enabled)
	assert.Equal(t, 65536, config.State.CacheSize)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("HIE_AUTH_ENABLED", "true")
	t.Setenv("HIE_AUTH_TOKEN", "secret")
	t.Setenv("HIE_ENGINE_MAX_INCARNATIONS", "7")
	t.Setenv("HIE_SERVER_ZMQ_ADDR", "tcp://127.0.0.1:5555")

	config, err := loadConfig("")
	require.NoError(t, err)
	assert.True(t, config.Auth.Enabled)
	assert.Equal(t, "secret", config.Auth.Token)
	assert.Equal(t, uint32(7), config.Engine.MaxIncarnations)
	assert.Equal(t, "tcp://127.0.0.1:5555", config.Server.ZmqAddr)
}

func TestLoadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
engine:
  concurrency: 3
  enable_deltas: false
state:
  genesis_accounts: 10
`), 0o600))

	config, err := loadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, 3, config.Engine.Concurrency)
	assert.False(t, config.Engine.EnableDeltas)
	assert.True(t, config.Engine.AllowSequentialFallback)
	assert.Equal(t, 10, config.State.GenesisAccounts)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("engine:\n  concurrency: -1\n"), 0o600))
	_, err = loadConfig(bad)
	assert.Error(t, err)
}
