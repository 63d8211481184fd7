package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.UPSFHost)
	require.Equal(t, 50051, cfg.UPSFPort)
	require.Equal(t, "/etc/upsf/policy.yaml", cfg.ConfigFile)
	require.Equal(t, "00:00:01:00:00:00", cfg.VirtualMAC)
	require.Equal(t, 60*time.Second, cfg.RegistrationInterval)
	require.True(t, cfg.UPSFAutoRegister)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "127.0.0.1:50051", cfg.StoreAddress())
}

func TestParseFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Parse([]string{
		"-upsf-host", "upsf.example.net",
		"-upsf-port", "6000",
		"-registration-interval", "30",
		"-upsf-auto-register=false",
		"-loglevel", "debug",
	})
	require.NoError(t, err)
	require.Equal(t, "upsf.example.net", cfg.UPSFHost)
	require.Equal(t, 6000, cfg.UPSFPort)
	require.Equal(t, 30*time.Second, cfg.RegistrationInterval)
	require.False(t, cfg.UPSFAutoRegister)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestParseRejectsInvalidLogLevel(t *testing.T) {
	_, err := Parse([]string{"-loglevel", "verbose"})
	require.Error(t, err)
}

func TestParseRejectsNonPositiveInterval(t *testing.T) {
	_, err := Parse([]string{"-registration-interval", "0"})
	require.Error(t, err)
}

func TestStr2Bool(t *testing.T) {
	for _, v := range []string{"true", "1", "t", "y", "yes", "Yes", "YES"} {
		require.True(t, str2bool(v), v)
	}
	for _, v := range []string{"false", "0", "no", "n", ""} {
		require.False(t, str2bool(v), v)
	}
}
