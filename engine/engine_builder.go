package engine

import (
	"time"

	"github.com/Carmen-Shannon/wave-profile/engine/profiler"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/Carmen-Shannon/wave-profile/engine/wave"
	"github.com/Carmen-Shannon/wave-profile/engine/window"
	"go.uber.org/zap"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithLogger sets the logger shared by the engine, renderer and orchestrator.
//
// Parameters:
//   - logger: the zap logger to use
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProfiler sets the profiler frames are reported to. Without it the engine creates an
// unregistered profiler.
//
// Parameters:
//   - p: the profiler to use
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithProfiling enables or disables periodic profiler stats in the log.
//
// Parameters:
//   - enabled: if true, enables profiler stats
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithWindow sets a pre-configured window rather than allowing the engine to create one.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithWindowOptions sets the options used when the engine creates its own window.
//
// Parameters:
//   - options: window builder options such as window.WithTitle or window.WithSize
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindowOptions(options ...window.WindowBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.windowOptions = append(e.windowOptions, options...)
	}
}

// WithHeadless runs the engine without a window, rendering into a frame of the given size.
// Only backends that need no surface (the software backend) can run headless.
//
// Parameters:
//   - width: frame width in pixels
//   - height: frame height in pixels
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithHeadless(width, height int) EngineBuilderOption {
	return func(e *engine) {
		e.headless = true
		e.headlessWidth = width
		e.headlessHeight = height
	}
}

// WithRendererOptions adds options passed to renderer.NewRenderer.
//
// Parameters:
//   - options: renderer builder options such as renderer.WithMSAA
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRendererOptions(options ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOptions = append(e.rendererOptions, options...)
	}
}

// WithOrchestratorOptions adds options passed to wave.NewOrchestrator.
//
// Parameters:
//   - options: orchestrator builder options such as wave.WithReadbackHook
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithOrchestratorOptions(options ...wave.OrchestratorBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.orchestratorOptions = append(e.orchestratorOptions, options...)
	}
}

// WithFrameLimit stops the engine after n rendered frames. Pass 0 to run until quit (default).
//
// Parameters:
//   - n: number of frames to render
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFrameLimit(n int) EngineBuilderOption {
	return func(e *engine) {
		if n < 0 {
			n = 0
		}
		e.frameLimit = n
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
