package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/wave-profile/common"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/Carmen-Shannon/wave-profile/engine/wave"
)

type Config struct {
	AppEnv   string
	LogLevel string

	Backend renderer.RendererBackendType
	Wave    wave.Config

	Width                int
	Height               int
	PresentMode          renderer.PresentMode
	MSAA                 renderer.MSAASampleCount
	ForceFallbackAdapter bool

	// Frames is the number of frames a headless run renders before writing Output.
	Frames      int
	Output      string
	MetricsAddr string
}

// Load reads the host configuration from WAVE_* variables on top of wave.DefaultConfig.
// The layout is not validated here; the orchestrator does that against the device.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:      common.Coalesce(os.Getenv("APP_ENV"), "development"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Backend:     renderer.BackendTypeWGPU,
		Wave:        wave.DefaultConfig(),
		Width:       800,
		Height:      600,
		PresentMode: renderer.PresentModeVSync,
		MSAA:        renderer.MSAA4x,
		Frames:      1,
		Output:      common.Coalesce(os.Getenv("WAVE_OUTPUT"), "wave_profile.png"),
		MetricsAddr: os.Getenv("WAVE_METRICS_ADDR"),
	}

	var err error
	if v := os.Getenv("WAVE_BACKEND"); v != "" {
		cfg.Backend, err = renderer.ParseBackendType(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_BACKEND: %w", err)
		}
	}
	if v := os.Getenv("WAVE_POINT_COUNT"); v != "" {
		cfg.Wave.PointCount, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_POINT_COUNT: %w", err)
		}
	}
	if v := os.Getenv("WAVE_Q_VALUES"); v != "" {
		cfg.Wave.QValues, err = parseFloats(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_Q_VALUES: %w", err)
		}
	}
	if v := os.Getenv("WAVE_PARAM_STRIDE"); v != "" {
		cfg.Wave.ParamStride, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_PARAM_STRIDE: %w", err)
		}
	}
	if v := os.Getenv("WAVE_MAX_IN_FLIGHT"); v != "" {
		cfg.Wave.MaxInFlight, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_MAX_IN_FLIGHT: %w", err)
		}
	}
	if v := os.Getenv("WAVE_PIPELINED"); v != "" {
		cfg.Wave.Pipelined, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_PIPELINED: %w", err)
		}
	}
	if v := os.Getenv("WAVE_DEBUG"); v != "" {
		cfg.Wave.Debug, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_DEBUG: %w", err)
		}
	}
	if v := os.Getenv("WAVE_WIDTH"); v != "" {
		cfg.Width, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_WIDTH: %w", err)
		}
	}
	if v := os.Getenv("WAVE_HEIGHT"); v != "" {
		cfg.Height, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_HEIGHT: %w", err)
		}
	}
	if v := os.Getenv("WAVE_PRESENT_MODE"); v != "" {
		switch v {
		case "vsync":
			cfg.PresentMode = renderer.PresentModeVSync
		case "uncapped":
			cfg.PresentMode = renderer.PresentModeUncapped
		default:
			return nil, fmt.Errorf("invalid WAVE_PRESENT_MODE: %q", v)
		}
	}
	if v := os.Getenv("WAVE_MSAA"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_MSAA: %w", err)
		}
		switch renderer.MSAASampleCount(n) {
		case renderer.MSAAOff, renderer.MSAA4x, renderer.MSAA8x, renderer.MSAA16x:
			cfg.MSAA = renderer.MSAASampleCount(n)
		default:
			return nil, fmt.Errorf("invalid WAVE_MSAA: %d samples", n)
		}
	}
	if v := os.Getenv("WAVE_FORCE_FALLBACK_ADAPTER"); v != "" {
		cfg.ForceFallbackAdapter, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_FORCE_FALLBACK_ADAPTER: %w", err)
		}
	}
	if v := os.Getenv("WAVE_FRAMES"); v != "" {
		cfg.Frames, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAVE_FRAMES: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that can be changed after Load, such as by command line flags.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", c.Width, c.Height)
	}
	if c.Frames < 1 {
		return fmt.Errorf("invalid WAVE_FRAMES: %d", c.Frames)
	}
	return nil
}

func parseFloats(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		out = append(out, float32(f))
	}
	return out, nil
}
