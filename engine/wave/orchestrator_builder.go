package wave

import (
	"github.com/Carmen-Shannon/wave-profile/engine/profiler"
	"go.uber.org/zap"
)

// OrchestratorBuilderOption is a functional option applied to an orchestrator during construction via NewOrchestrator.
type OrchestratorBuilderOption func(*orchestrator)

// WithLogger sets the logger used by the orchestrator.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - OrchestratorBuilderOption: a function that applies the logger option to an orchestrator
func WithLogger(logger *zap.Logger) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProfiler sets the profiler frame outcomes are recorded on.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - OrchestratorBuilderOption: a function that applies the profiler option to an orchestrator
func WithProfiler(p *profiler.Profiler) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		if p != nil {
			o.profiler = p
		}
	}
}

// WithReadbackHook installs a hook receiving the profile and base buffers of every presented
// frame. Installing a hook enables readback without Config.Debug.
//
// Parameters:
//   - hook: the readback hook
//
// Returns:
//   - OrchestratorBuilderOption: a function that applies the hook option to an orchestrator
func WithReadbackHook(hook ReadbackHook) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.readbackHook = hook
	}
}
