package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "bot")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "courses")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, RunModePolling, cfg.RunMode)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.Database.Migrate)
	assert.Contains(t, cfg.Games, "Minecraft")
	assert.Equal(t,
		"host=localhost port=5432 user=bot password=secret dbname=courses sslmode=disable",
		cfg.Database.DSN())
}

func TestLoad_MissingToken(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_TOKEN", "")
	require.NoError(t, os.Unsetenv("TELEGRAM_TOKEN"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "polling", cfg: Config{RunMode: RunModePolling}},
		{
			name: "webhook",
			cfg:  Config{RunMode: RunModeWebhook, WebhookURL: "https://example.org/hook", WebhookSecret: "s3cr3t_token-1"},
		},
		{name: "webhook without url", cfg: Config{RunMode: RunModeWebhook, WebhookSecret: "s3cr3t"}, wantErr: "WEBHOOK_URL"},
		{
			name:    "webhook without secret",
			cfg:     Config{RunMode: RunModeWebhook, WebhookURL: "https://example.org/hook"},
			wantErr: "WEBHOOK_SECRET",
		},
		{
			name:    "webhook secret with forbidden characters",
			cfg:     Config{RunMode: RunModeWebhook, WebhookURL: "https://example.org/hook", WebhookSecret: "not/allowed"},
			wantErr: "WEBHOOK_SECRET",
		},
		{name: "unknown mode", cfg: Config{RunMode: "push"}, wantErr: "RUN_MODE"},
		{
			name:    "negative ttl",
			cfg:     Config{RunMode: RunModePolling, Redis: Redis{SessionTTL: -time.Second}},
			wantErr: "SESSION_TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
