package renderer

import (
	"go.uber.org/zap"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithSurfaceSource sets the window whose surface the wgpu backend presents to.
// The surface size is taken from the source.
//
// Parameters:
//   - source: the surface source, usually a window.Window
//
// Returns:
//   - RendererBuilderOption: a function that applies the surface source option to a renderer
func WithSurfaceSource(source SurfaceSource) RendererBuilderOption {
	return func(r *renderer) {
		r.surfaceSource = source
	}
}

// WithSurfaceSize sets the frame size of backends without a surface source.
//
// Parameters:
//   - width: the frame width in pixels
//   - height: the frame height in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the size option to a renderer
func WithSurfaceSize(width, height int) RendererBuilderOption {
	return func(r *renderer) {
		r.width = width
		r.height = height
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count for the renderer.
// When not specified, the default is MSAA4x. Use MSAAOff to disable MSAA entirely.
// Higher values (MSAA8x, MSAA16x) are adapter-dependent and may not be supported
// by all hardware. The software backend always anti-aliases and ignores this option.
//
// Parameters:
//   - count: the MSAASampleCount to use (MSAAOff, MSAA4x, MSAA8x, or MSAA16x)
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingMSAA = &count
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). It does not select BackendTypeSoftware.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithWorkerCount sets the number of workers the software backend runs thread groups on.
// Defaults to one less than the number of CPUs.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker count option to a renderer
func WithWorkerCount(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.workers = n
	}
}

// WithLogger sets the logger used by the renderer.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(logger *zap.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCommandObserver installs a callback that sees every dispatch, layer, draw and submission.
//
// Parameters:
//   - observer: the callback
//
// Returns:
//   - RendererBuilderOption: a function that applies the observer option to a renderer
func WithCommandObserver(observer CommandObserver) RendererBuilderOption {
	return func(r *renderer) {
		r.observer = observer
	}
}

// WithStatusHook installs a hook that can force the completion status of batches by label.
//
// Parameters:
//   - hook: the status hook
//
// Returns:
//   - RendererBuilderOption: a function that applies the status hook option to a renderer
func WithStatusHook(hook StatusHook) RendererBuilderOption {
	return func(r *renderer) {
		r.statusHook = hook
	}
}
