package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		StorageDriver: "sqlite",
		SQLitePath:    "data/test.db",
		JWTSecret:     "test-secret-1234567890",
		JWTAlgorithm:  "HS256",
		AIProvider:    "mock",
		UserWeightKg:  70,
		DeviceBias:    0.9,
	}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateAcceptsGeminiProjectWithoutKey(t *testing.T) {
	cfg := validConfig()
	cfg.AIProvider = "gemini"
	cfg.GeminiProject = "cal2-prod"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown storage", mutate: func(c *Config) { c.StorageDriver = "mongo" }},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }},
		{name: "insecure secret", mutate: func(c *Config) { c.JWTSecret = "change-me-in-production" }},
		{name: "openai without key", mutate: func(c *Config) { c.AIProvider = "openai" }},
		{name: "gemini without credentials", mutate: func(c *Config) { c.AIProvider = "gemini" }},
		{name: "negative retries", mutate: func(c *Config) { c.MediaMaxRetries = -1 }},
		{name: "zero weight", mutate: func(c *Config) { c.UserWeightKg = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("MEDIA_MAX_RETRIES", "5")
	t.Setenv("USER_WEIGHT_KG", "82.5")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ACK_ENABLED", "false")
	t.Setenv("AI_PROVIDER", "Gemini")

	cfg := Load()
	require.Equal(t, 5, cfg.MediaMaxRetries)
	require.Equal(t, 82.5, cfg.UserWeightKg)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
	require.False(t, cfg.AckEnabled)
	require.Equal(t, "gemini", cfg.AIProvider)
	require.Equal(t, 300, cfg.MediaBackoffMillis)
}
