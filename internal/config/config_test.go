package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadUnionsPathsAndDedupes(t *testing.T) {
	cases := []struct {
		name    string
		cli     []string
		env     string
		want    []string
	}{
		{"cli only", []string{"/etc/", "/var/lib/app/"}, "", []string{"/etc/", "/var/lib/app/"}},
		{"env comma separated", nil, "/etc/,/var/lib/app/", []string{"/etc/", "/var/lib/app/"}},
		{"env newline separated", nil, "/etc/\n/var/lib/app/", []string{"/etc/", "/var/lib/app/"}},
		{"union dedupes, cli first", []string{"/etc/"}, "/etc/,/tmp/watch/", []string{"/etc/", "/tmp/watch/"}},
		{"empty both", nil, "", nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			getenv := func(key string) string {
				if key == "FACT_PATHS" {
					return c.env
				}
				return ""
			}
			cfg, err := Load(CLIFlags{Paths: c.cli, GRPCTarget: "localhost:9999"}, getenv)
			require.NoError(t, err)
			assert.Equal(t, c.want, cfg.PathPrefixes)
		})
	}
}

func TestLoadRequiresGRPCTarget(t *testing.T) {
	_, err := Load(CLIFlags{}, func(string) string { return "" })
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(CLIFlags{GRPCTarget: "localhost:9999"}, func(string) string { return "" })
	require.NoError(t, err)
	assert.Equal(t, DefaultBPFDir, cfg.BPFDir)
	assert.Equal(t, DefaultDeliveryQueueSize, cfg.DeliveryQueueSize)
	assert.Equal(t, DefaultHostPathCacheSize, cfg.HostPathCacheSize)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
}

func TestLoadParsesLogLevel(t *testing.T) {
	cfg, err := Load(CLIFlags{GRPCTarget: "localhost:9999"}, func(key string) string {
		if key == "FACT_LOGLEVEL" {
			return "debug"
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	_, err := Load(CLIFlags{GRPCTarget: "localhost:9999"}, func(key string) string {
		if key == "FACT_LOGLEVEL" {
			return "not-a-level"
		}
		return ""
	})
	require.Error(t, err)
}
