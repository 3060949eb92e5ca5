package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.False(t, cfg.AllowCoins)
	assert.False(t, cfg.LogToStderr)
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{"-h", "10.0.0.5", "-p", "7000", "-d", "/dev/ttyUSB1", "-c", "-e"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Device)
	assert.True(t, cfg.AllowCoins)
	assert.True(t, cfg.LogToStderr)
	assert.Equal(t, "10.0.0.5:7000", cfg.Addr())
}

func TestLoadRejectsBadPort(t *testing.T) {
	_, err := Load([]string{"-p", "0"})
	assert.Error(t, err)
}

func TestLoadRejectsEmptyDevice(t *testing.T) {
	_, err := Load([]string{"-d", ""})
	assert.Error(t, err)
}
