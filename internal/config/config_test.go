package config

import (
	"testing"

	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/Carmen-Shannon/wave-profile/engine/wave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, renderer.BackendTypeWGPU, cfg.Backend)
	assert.Equal(t, wave.DefaultConfig(), cfg.Wave)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 600, cfg.Height)
	assert.Equal(t, renderer.PresentModeVSync, cfg.PresentMode)
	assert.Equal(t, renderer.MSAA4x, cfg.MSAA)
	assert.Equal(t, 1, cfg.Frames)
	assert.Equal(t, "wave_profile.png", cfg.Output)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("WAVE_BACKEND", "software")
	t.Setenv("WAVE_POINT_COUNT", "64")
	t.Setenv("WAVE_Q_VALUES", "0.1, 0.3")
	t.Setenv("WAVE_MAX_IN_FLIGHT", "2")
	t.Setenv("WAVE_PIPELINED", "true")
	t.Setenv("WAVE_DEBUG", "1")
	t.Setenv("WAVE_WIDTH", "320")
	t.Setenv("WAVE_HEIGHT", "240")
	t.Setenv("WAVE_PRESENT_MODE", "uncapped")
	t.Setenv("WAVE_MSAA", "1")
	t.Setenv("WAVE_FORCE_FALLBACK_ADAPTER", "true")
	t.Setenv("WAVE_FRAMES", "10")
	t.Setenv("WAVE_OUTPUT", "out.png")
	t.Setenv("WAVE_METRICS_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, renderer.BackendTypeSoftware, cfg.Backend)
	assert.Equal(t, 64, cfg.Wave.PointCount)
	assert.Equal(t, []float32{0.1, 0.3}, cfg.Wave.QValues)
	assert.Equal(t, 2, cfg.Wave.MaxInFlight)
	assert.True(t, cfg.Wave.Pipelined)
	assert.True(t, cfg.Wave.Debug)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
	assert.Equal(t, renderer.PresentModeUncapped, cfg.PresentMode)
	assert.Equal(t, renderer.MSAAOff, cfg.MSAA)
	assert.True(t, cfg.ForceFallbackAdapter)
	assert.Equal(t, 10, cfg.Frames)
	assert.Equal(t, "out.png", cfg.Output)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"WAVE_BACKEND", "metal"},
		{"WAVE_POINT_COUNT", "many"},
		{"WAVE_Q_VALUES", "0.1,x"},
		{"WAVE_PARAM_STRIDE", "wide"},
		{"WAVE_MAX_IN_FLIGHT", "-"},
		{"WAVE_PIPELINED", "sometimes"},
		{"WAVE_DEBUG", "maybe"},
		{"WAVE_WIDTH", "0"},
		{"WAVE_PRESENT_MODE", "mailbox"},
		{"WAVE_MSAA", "2"},
		{"WAVE_FRAMES", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidateAfterOverride(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.Frames = 0
	assert.EqualError(t, cfg.Validate(), "invalid WAVE_FRAMES: 0")

	cfg.Frames = 5
	cfg.Height = -1
	assert.EqualError(t, cfg.Validate(), "invalid surface size 800x-1")
}
