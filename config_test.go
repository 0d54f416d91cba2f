/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		autosaveKeep: 5,
		port:         8080,
		remote:       remoteNone,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unpaired tls", func(c *Config) { c.tlsCert = "cert.pem" }, "--tls-key"},
		{"port too low", func(c *Config) { c.port = 0 }, "invalid port"},
		{"port too high", func(c *Config) { c.port = 70000 }, "invalid port"},
		{"unknown remote", func(c *Config) { c.remote = "etcd" }, "invalid remote"},
		{"redis without url", func(c *Config) { c.remote = remoteRedis }, "--redis-url"},
		{"redis", func(c *Config) { c.remote, c.redisURL = remoteRedis, "redis://localhost:6379/0" }, ""},
		{"postgres without url", func(c *Config) { c.remote = remotePostgres }, "--postgres-url"},
		{"negative quota", func(c *Config) { c.localQuota = -1 }, "local quota"},
		{"negative resync", func(c *Config) { c.resyncInterval = -time.Second }, "resync interval"},
		{"negative autosave", func(c *Config) { c.autosaveInterval = -time.Second }, "autosave interval"},
		{"keep zero", func(c *Config) { c.autosaveKeep = 0 }, "keep count"},
		{"negative session timeout", func(c *Config) { c.sessionTimeout = -time.Minute }, "session timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScheme(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestFlagDefaults(t *testing.T) {
	cfg := &Config{}
	newCmd(cfg)

	assert.Equal(t, 8080, cfg.port)
	assert.Equal(t, remoteNone, cfg.remote)
	assert.Equal(t, 5*time.Minute, cfg.autosaveInterval)
	assert.Equal(t, 5, cfg.autosaveKeep)
	assert.Equal(t, 2*time.Minute, cfg.roleTimeout)
	assert.Equal(t, int64(5_000_000), cfg.localQuota)
	assert.NoError(t, cfg.validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WARROOM_PORT", "9090")
	t.Setenv("WARROOM_REMOTE", "redis")
	t.Setenv("WARROOM_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("WARROOM_AUTOSAVE_INTERVAL", "30s")

	cfg := &Config{}
	newCmd(cfg)

	assert.Equal(t, 9090, cfg.port)
	assert.Equal(t, remoteRedis, cfg.remote)
	assert.Equal(t, "redis://cache:6379/1", cfg.redisURL)
	assert.Equal(t, 30*time.Second, cfg.autosaveInterval)
}

func TestFlagsNormalizeUnderscores(t *testing.T) {
	cfg := &Config{}
	cmd := newCmd(cfg)

	require.NoError(t, cmd.ParseFlags([]string{"--data_dir", "/var/lib/warroom", "--session-timeout", "15m"}))
	assert.Equal(t, "/var/lib/warroom", cfg.dataDir)
	assert.Equal(t, 15*time.Minute, cfg.sessionTimeout)
}

func TestInvalidConfigRefusesToStart(t *testing.T) {
	cfg := &Config{}
	cmd := newCmd(cfg)
	cmd.SetArgs([]string{"--port", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}
