package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/wave-profile/engine/profiler"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/Carmen-Shannon/wave-profile/engine/wave"
	"github.com/Carmen-Shannon/wave-profile/engine/window"
	"go.uber.org/zap"
)

// ErrRenderPanic is returned by Run when a frame panicked and the loop was stopped.
var ErrRenderPanic = errors.New("engine: render loop recovered from panic")

// engine implements the Engine interface.
// Coordinates the window message loop on the main thread with a render goroutine.
type engine struct {
	backend renderer.RendererBackendType
	cfg     wave.Config

	wg       sync.WaitGroup
	released bool

	quitChannel chan struct{}
	quitOnce    sync.Once
	renderErr   error

	window        window.Window
	windowOptions []window.WindowBuilderOption

	headless       bool
	headlessWidth  int
	headlessHeight int

	renderer        renderer.Renderer
	rendererOptions []renderer.RendererBuilderOption

	orchestrator        wave.Orchestrator
	orchestratorOptions []wave.OrchestratorBuilderOption

	logger           *zap.Logger
	profiler         *profiler.Profiler
	profilingEnabled bool

	frameLimit       int           // frames to render before quitting; 0 = until the window closes
	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	frameCallback    func(report wave.FrameReport)
}

// Engine hosts a wave profile orchestrator: it owns the window, the renderer and the frame loop.
type Engine interface {
	// Window returns the underlying window, or nil in headless mode.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer frames are drawn with, or nil when the device is unsupported.
	//
	// Returns:
	//   - renderer.Renderer: the renderer instance
	Renderer() renderer.Renderer

	// Orchestrator returns the wave profile orchestrator, or nil when the device is unsupported.
	//
	// Returns:
	//   - wave.Orchestrator: the orchestrator instance
	Orchestrator() wave.Orchestrator

	// EnableProfiler enables periodic profiler stats in the log.
	EnableProfiler()

	// DisableProfiler disables periodic profiler stats.
	DisableProfiler()

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SetFrameCallback registers the function called with the report of every rendered frame.
	//
	// Parameters:
	//   - callback: function receiving each frame report
	SetFrameCallback(callback func(report wave.FrameReport))

	// Run renders frames until the window closes, the frame limit is reached, Quit is called
	// or ctx is cancelled. In windowed mode it must be called from the main goroutine.
	// Resources are released before it returns.
	//
	// Parameters:
	//   - ctx: cancels the loop
	//
	// Returns:
	//   - error: ErrRenderPanic or an encoding error that stopped the loop
	Run(ctx context.Context) error

	// Quit signals the render loop to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates the window (unless headless), the renderer and the orchestrator.
// A windowed engine whose device is unsupported logs a warning and keeps the window alive
// without rendering.
//
// Parameters:
//   - backend: the renderer backend to use
//   - cfg: the wave profile configuration
//   - options: functional options for engine configuration (headless mode, logger, profiler, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: an error if the window, renderer, kernels or orchestrator could not be created
func NewEngine(backend renderer.RendererBackendType, cfg wave.Config, options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		backend:     backend,
		cfg:         cfg,
		quitChannel: make(chan struct{}),
		logger:      zap.NewNop(),
	}

	for _, opt := range options {
		opt(e)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if e.profiler == nil {
		p, err := profiler.NewProfiler(profiler.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.profiler = p
	}

	if !e.headless && e.window == nil {
		w, err := window.NewWindow(e.windowOptions...)
		if err != nil {
			return nil, fmt.Errorf("creating window: %w", err)
		}
		e.window = w
	}

	rendererOptions := append([]renderer.RendererBuilderOption{renderer.WithLogger(e.logger)}, e.rendererOptions...)
	if e.window != nil {
		rendererOptions = append(rendererOptions, renderer.WithSurfaceSource(e.window))
	} else {
		rendererOptions = append(rendererOptions, renderer.WithSurfaceSize(e.headlessWidth, e.headlessHeight))
	}

	r, err := renderer.NewRenderer(backend, rendererOptions...)
	if err != nil {
		if errors.Is(err, renderer.ErrUnsupportedDevice) && e.window != nil {
			e.logger.Warn("GPU rendering is not supported on this device", zap.Error(err))
			return e, nil
		}
		e.closeWindow()
		return nil, err
	}
	e.renderer = r

	kernels, err := wave.DefaultKernels(cfg)
	if err != nil {
		e.release()
		return nil, err
	}

	orchestratorOptions := append([]wave.OrchestratorBuilderOption{
		wave.WithLogger(e.logger),
		wave.WithProfiler(e.profiler),
	}, e.orchestratorOptions...)
	o, err := wave.NewOrchestrator(r, kernels, cfg, orchestratorOptions...)
	if err != nil {
		e.release()
		return nil, err
	}
	e.orchestrator = o

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			if err := e.renderer.Resize(width, height); err != nil {
				e.logger.Error("resize failed", zap.Int("width", width), zap.Int("height", height), zap.Error(err))
			}
		})
	}

	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Orchestrator() wave.Orchestrator {
	return e.orchestrator
}

func (e *engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.wg.Add(2)
	go e.handleRender(ctx)
	go e.handleQuit(ctx)

	if e.window != nil {
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				e.window.RequestClose()
			default:
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	}

	e.wg.Wait()
	e.release()
	return e.renderErr
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handleQuit turns a cancelled context into a quit signal.
func (e *engine) handleQuit(ctx context.Context) {
	defer e.wg.Done()
	select {
	case <-ctx.Done():
		e.signalQuit()
	case <-e.quitChannel:
	}
}

// handleRender runs the (optionally frame-limited) render loop in its own goroutine.
// Without an orchestrator the loop only paces itself, keeping the window responsive.
func (e *engine) handleRender(ctx context.Context) {
	defer e.wg.Done()

	rendered := 0
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		start := time.Now()
		if e.orchestrator != nil {
			if err := e.renderFrame(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, wave.ErrClosed) {
					e.renderErr = err
				}
				e.signalQuit()
				return
			}
			rendered++
			if e.frameLimit > 0 && rendered >= e.frameLimit {
				e.signalQuit()
				return
			}
		}

		if e.profilingEnabled {
			e.profiler.Tick()
		}

		limit := e.renderFrameLimit
		if e.orchestrator == nil && limit == 0 {
			limit = time.Second / 60
		}
		if limit > 0 {
			if remaining := limit - time.Since(start); remaining > 0 {
				select {
				case <-e.quitChannel:
					return
				case <-time.After(remaining):
				}
			}
		}
	}
}

// renderFrame runs one orchestrator frame, converting a panic into ErrRenderPanic.
func (e *engine) renderFrame(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render goroutine recovered from panic", zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()

	report, err := e.orchestrator.Frame(ctx)
	if err != nil {
		return err
	}
	if e.frameCallback != nil {
		e.frameCallback(report)
	}
	return nil
}

// release closes the orchestrator, the renderer and the window, in that order.
// The renderer stays reachable so its last snapshot can still be read.
func (e *engine) release() {
	if e.released {
		return
	}
	e.released = true
	if e.orchestrator != nil {
		e.orchestrator.Close()
	}
	if e.renderer != nil {
		e.renderer.Release()
	}
	e.closeWindow()
}

func (e *engine) closeWindow() {
	if e.window != nil {
		_ = e.window.Close()
	}
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) SetFrameCallback(callback func(report wave.FrameReport)) {
	e.frameCallback = callback
}
