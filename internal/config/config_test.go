package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigPath,
		"NFC_READER_HOST",
		"NFC_READER_PORT",
		"NFC_READER_MQTT_BROKER",
		"NFC_READER_MQTT_USERNAME",
		"NFC_READER_MQTT_PASSWORD",
		"NFC_READER_SENTRY_DSN",
		"NFC_READER_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:32146", cfg.Address())
	assert.False(t, cfg.Reader.CancelOnDisconnect)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Zero(t, cfg.WriteTimeout(), "card reads must not be cut off by a write timeout")
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout())
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 8080
reader:
  cancel_on_disconnect: true
mqtt:
  enabled: true
  broker: tcp://broker:1883
  topic_prefix: lobby
  qos: 0
logging:
  level: info
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.True(t, cfg.Reader.CancelOnDisconnect)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "lobby", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 0, cfg.MQTT.QoS)
	assert.Equal(t, "nfc-reader", cfg.MQTT.ClientID, "unset keys keep defaults")
}

func TestLoadFileFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigPath, writeConfig(t, "server:\n  port: 9000\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  host: 0.0.0.0\n  port: 8080\n")
	t.Setenv("NFC_READER_HOST", "localhost")
	t.Setenv("NFC_READER_PORT", "9999")
	t.Setenv("NFC_READER_MQTT_BROKER", "tcp://env:1883")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9999", cfg.Address())
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://env:1883", cfg.MQTT.Broker)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.ErrorContains(t, err, "parsing config file")

	t.Setenv("NFC_READER_PORT", "not-a-port")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty host", func(c *Config) { c.Server.Host = "" }, "server.host"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative timeout", func(c *Config) { c.Server.WriteTimeout = -1 }, "timeouts"},
		{"bad qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad qos ignored when disabled", func(c *Config) { c.MQTT.QoS = 3 }, ""},
		{"no broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }, "mqtt.broker"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
