package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LEDGER_DRIVER", "RUN_LOCK_TTL", "CORS_ALLOWED_ORIGINS", "WIX_MAX_RETRIES"} {
		t.Setenv(key, "")
	}

	cfg, envLoaded, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.False(t, envLoaded)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, LedgerMongo, cfg.LedgerDriver)
	assert.Equal(t, 6*time.Hour, cfg.RunLockTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 3, cfg.WixMaxRetries)
}

func TestLoadFromFile(t *testing.T) {
	for _, key := range []string{"PORT", "LEDGER_DRIVER", "POSTGRES_DSN", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
		// godotenv does not override variables already present
		require.NoError(t, os.Unsetenv(key))
	}

	path := filepath.Join(t.TempDir(), ".env")
	content := "PORT=9000\nLEDGER_DRIVER=postgres\nPOSTGRES_DSN=postgres://localhost/ledger\nCORS_ALLOWED_ORIGINS=https://a.example, https://b.example\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, envLoaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, envLoaded)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, LedgerPostgres, cfg.LedgerDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"mongo", Config{LedgerDriver: LedgerMongo, RunLockTTL: time.Minute}, false},
		{"postgres without dsn", Config{LedgerDriver: LedgerPostgres, RunLockTTL: time.Minute}, true},
		{"unknown driver", Config{LedgerDriver: "mysql", RunLockTTL: time.Minute}, true},
		{"zero ttl", Config{LedgerDriver: LedgerMemory}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("WIX_MAX_RETRIES", "many")
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
