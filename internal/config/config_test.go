package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
database:
  dsn: "file::memory:"
jwt:
  secret: "0123456789abcdef0123456789abcdef"
twilio:
  channel: log
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "GIN_MODE", "APP_ENV", "LOG_LEVEL", "DATABASE_DSN", "REDIS_ADDR",
		"REDIS_PASSWORD", "JWT_SECRET", "OTP_STORE", "TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER", "TWILIO_CHANNEL",
		"MAGIC_LINK_BASE_URL", "KAFKA_BROKERS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFrom(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 300*time.Second, cfg.OTPTTL)
	assert.Equal(t, 60*time.Second, cfg.OTPCooldown)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Equal(t, 6, cfg.OTPLength)
	assert.Equal(t, 10*time.Minute, cfg.OTPRetention)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, StoreRedis, cfg.OTPStore)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "civicauth.audit", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "ffffffffffffffffffffffffffffffffffff")
	t.Setenv("DATABASE_DSN", "postgres://override")
	t.Setenv("OTP_STORE", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := LoadFrom(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "ffffffffffffffffffffffffffffffffffff", cfg.JWTSecret)
	assert.Equal(t, "postgres://override", cfg.DSN)
	assert.Equal(t, StoreMemory, cfg.OTPStore)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad duration",
			yaml:    minimalYAML + "otp:\n  ttl: soon\n",
			wantErr: "invalid otp.ttl",
		},
		{
			name:    "missing secret",
			yaml:    "database:\n  dsn: x\ntwilio:\n  channel: log\n",
			wantErr: "jwt secret is required",
		},
		{
			name:    "cooldown longer than ttl",
			yaml:    minimalYAML + "otp:\n  ttl: 30s\n  cooldown: 60s\n",
			wantErr: "cooldown must be shorter",
		},
		{
			name:    "whatsapp without credentials",
			yaml:    "database:\n  dsn: x\njwt:\n  secret: \"0123456789abcdef0123456789abcdef\"\n",
			wantErr: "twilio credentials are required",
		},
		{
			name:    "unknown store",
			yaml:    minimalYAML + "otp:\n  store: etcd\n",
			wantErr: "unknown otp store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFrom(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not read config file")
}

func TestConfig_IsDevelopment(t *testing.T) {
	assert.True(t, (&Config{Env: "development"}).IsDevelopment())
	assert.False(t, (&Config{Env: "production"}).IsDevelopment())
}
