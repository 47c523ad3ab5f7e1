package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Channels: map[string]string{"https://t.me/+abc": "Home Goods"},
		Mode:     ModeHybrid,
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("no channels", func(t *testing.T) {
		cfg := validConfig()
		cfg.Channels = nil
		require.ErrorIs(t, cfg.Validate(), ErrNoChannels)
	})

	t.Run("bad mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = "stream"
		require.ErrorIs(t, cfg.Validate(), ErrInvalidMode)
	})

	t.Run("bad stop date", func(t *testing.T) {
		cfg := validConfig()
		cfg.StopDate = "not-a-date"
		require.Error(t, cfg.Validate())
	})
}

func TestStopTime(t *testing.T) {
	cfg := validConfig()

	ts, err := cfg.StopTime()
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	cfg.StopDate = "2024-03-01"
	ts, err = cfg.StopTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ts)
}

func TestAIConfigured(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.AIConfigured())

	cfg.LLMAPIKey = "key"
	assert.False(t, cfg.AIConfigured())

	cfg.AIEnabled = true
	assert.True(t, cfg.AIConfigured())
}
