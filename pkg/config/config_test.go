package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  secret: test-secret
  admin:
    username: admin
    password: hunter2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Equal(t, DefaultTokenTTL, cfg.Auth.TokenTTL)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTLDuration())
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9090"
  cors_origins:
    - https://portal.example.com
database:
  driver: postgres
  postgres:
    host: db.internal
    port: 5432
    user: ads
    password: secret
    database: adserver
    ssl_mode: disable
auth:
  secret: test-secret
  token_ttl: 1h
  admin:
    username: root
    password: hunter2
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, []string{"https://portal.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTLDuration())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "unsupported database driver",
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.Auth.Secret = "" },
			wantErr: "auth.secret is required",
		},
		{
			name:    "missing admin password",
			mutate:  func(c *Config) { c.Auth.Admin.Password = "" },
			wantErr: "auth.admin username and password are required",
		},
		{
			name:    "bad token ttl",
			mutate:  func(c *Config) { c.Auth.TokenTTL = "tomorrow" },
			wantErr: "parsing auth.token_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Auth: AuthConfig{
					Secret:   "test-secret",
					TokenTTL: "12h",
					Admin: AdminAccount{
						Username: "admin",
						Password: "hunter2",
					},
				},
			}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
