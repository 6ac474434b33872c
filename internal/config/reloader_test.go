package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reloaderLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise
	return logger
}

func TestNewConfigReloader(t *testing.T) {
	logger := reloaderLogger()

	// No file: SIGHUP-only mode
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	reloader, err := NewConfigReloader("", cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, reloader)
	reloader.Stop()

	// With a config file
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0644))

	reloader, err = NewConfigReloader(configPath, cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, reloader)
	assert.Equal(t, cfg, reloader.Current())
	reloader.Stop()
}

func TestConfigReloader_FileWatching(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0644))

	initial, err := LoadConfig(configPath)
	require.NoError(t, err)

	reloader, err := NewConfigReloader(configPath, initial, reloaderLogger())
	require.NoError(t, err)
	defer reloader.Stop()

	var reloads atomic.Int64
	reloader.OnReload(func(cfg *Config) {
		reloads.Add(1)
	})

	// Give the watcher time to register before the write.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(configPath, []byte("log_level: debug\n"), 0644))

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 2*time.Second, 25*time.Millisecond, "reload callback not invoked")

	assert.Equal(t, "debug", reloader.Current().LogLevel)
}

func TestConfigReloader_KeepsConfigOnInvalidReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0644))

	initial, err := LoadConfig(configPath)
	require.NoError(t, err)

	reloader, err := NewConfigReloader(configPath, initial, reloaderLogger())
	require.NoError(t, err)
	defer reloader.Stop()

	time.Sleep(100 * time.Millisecond)

	// Invalid log level fails validation; the previous config must survive.
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: shouting\n"), 0644))
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, "info", reloader.Current().LogLevel)
}

func TestConfigReloader_SIGHUP(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0644))

	initial, err := LoadConfig(configPath)
	require.NoError(t, err)

	reloader, err := NewConfigReloader(configPath, initial, reloaderLogger())
	require.NoError(t, err)
	defer reloader.Stop()

	var reloads atomic.Int64
	reloader.OnReload(func(cfg *Config) {
		reloads.Add(1)
	})

	// Change the file, then poke the process instead of waiting for the
	// watcher.
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: warn\n"), 0644))
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 2*time.Second, 25*time.Millisecond, "SIGHUP reload not observed")

	assert.Equal(t, "warn", reloader.Current().LogLevel)
}

func TestConfigReloader_StopIsIdempotent(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	reloader, err := NewConfigReloader("", cfg, reloaderLogger())
	require.NoError(t, err)

	reloader.Stop()
	reloader.Stop()
}
