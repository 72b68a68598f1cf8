package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.CountdownNotification)
	assert.Equal(t, 15*time.Second, cfg.CountdownDialog)
	assert.Equal(t, 10*time.Second, cfg.CountdownBackground)
	assert.Equal(t, 3, cfg.MaxDispatchContacts)
	assert.Equal(t, 1.2, cfg.MagnitudeHigh)
	assert.Equal(t, 0.8, cfg.MagnitudeLow)
	assert.Equal(t, time.Second, cfg.MinSampleInterval)
	assert.Equal(t, 10, cfg.HistorySize)
	assert.Equal(t, 5*time.Second, cfg.DecelWindow)
	assert.Equal(t, []string{"test-id"}, cfg.PlaceholderEventIDs)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CLASSIFIER_URL", "http://classifier:8000/")
	t.Setenv("COUNTDOWN_DIALOG_MS", "2500")
	t.Setenv("MAGNITUDE_HIGH", "1.5")
	t.Setenv("PLACEHOLDER_EVENT_IDS", "test-id, demo ,")
	t.Setenv("STORE_BACKEND", "FIREBASE")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://classifier:8000", cfg.ClassifierURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.CountdownDialog)
	assert.Equal(t, 1.5, cfg.MagnitudeHigh)
	assert.Equal(t, []string{"test-id", "demo"}, cfg.PlaceholderEventIDs)
	assert.Equal(t, StoreFirebase, cfg.StoreBackend)
}

func TestLoadConfig_InvalidNumberFallsBack(t *testing.T) {
	t.Setenv("MAX_DISPATCH_CONTACTS", "three")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxDispatchContacts)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ClassifierURL:       "http://localhost:5000",
			MagnitudeHigh:       1.2,
			MagnitudeLow:        0.8,
			MaxDispatchContacts: 3,
			HistorySize:         10,
			StoreBackend:        StoreRedis,
			RedisAddr:           "localhost:6379",
			TelegramBotToken:    "token",
			TelegramChatID:      "42",
			DispatchGatewayURL:  "http://gateway",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "inverted gate", mutate: func(c *Config) { c.MagnitudeLow = 1.3 }, wantErr: "MAGNITUDE_LOW"},
		{name: "firebase without url", mutate: func(c *Config) { c.StoreBackend = StoreFirebase }, wantErr: "FIREBASE_DB_URL"},
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "sqlite" }, wantErr: "unknown STORE_BACKEND"},
		{name: "chat without token", mutate: func(c *Config) { c.TelegramBotToken = "" }, wantErr: "TELEGRAM"},
		{name: "log surface", mutate: func(c *Config) { c.TelegramBotToken, c.TelegramChatID = "", "" }},
		{name: "log dispatcher", mutate: func(c *Config) { c.DispatchGatewayURL = "" }},
		{name: "zero contacts", mutate: func(c *Config) { c.MaxDispatchContacts = 0 }, wantErr: "MAX_DISPATCH_CONTACTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
