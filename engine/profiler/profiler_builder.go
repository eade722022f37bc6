package profiler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ProfilerBuilderOption is a functional option applied to a profiler during construction via NewProfiler.
type ProfilerBuilderOption func(*Profiler)

// WithLogger sets the logger the periodic stats are written to.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the logger option to a profiler
func WithLogger(logger *zap.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRegisterer registers the profiler's metrics on reg.
//
// Parameters:
//   - reg: the Prometheus registerer, usually a *prometheus.Registry
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the registerer option to a profiler
func WithRegisterer(reg prometheus.Registerer) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.registerer = reg
	}
}

// WithUpdateInterval sets how often Tick logs stats.
//
// Parameters:
//   - d: the interval
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the interval option to a profiler
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}
