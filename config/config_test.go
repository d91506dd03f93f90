package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchSpecTimeouts(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 100*time.Millisecond, cfg.SlowHandlerThreshold)
	require.Equal(t, 25*time.Second, cfg.SpeechTimeout)
	require.Equal(t, 5*time.Second, cfg.MemoryWaitTimeout)
	require.Equal(t, 30*time.Second, cfg.DJLeadTime)
}

func TestLoadMissingYAMLFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Defaults().DashboardPort, cfg.DashboardPort)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dashboard_port: 9090\nlog_level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.DashboardPort)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, Defaults().DJHistoryDepth, cfg.DJHistoryDepth)
}

func TestEnvOverrideWinsOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dashboard_port: 9090\n"), 0o644))

	t.Setenv("CANTINA_DASHBOARD_PORT", "7000")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.DashboardPort)
}

func TestLoadEnvFileIsNotAnErrorWhenAbsent(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}
