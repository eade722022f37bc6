package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const namespace = "waveprofile"

// Stage names used as metric labels.
const (
	StageCompute = "compute"
	StageRender  = "render"
)

// Profiler tracks frame rate and memory statistics for performance monitoring, and exports
// frame outcomes as Prometheus metrics. Stats are logged at a configurable interval.
type Profiler struct {
	mu             sync.Mutex
	logger         *zap.Logger
	registerer     prometheus.Registerer
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	framesPresented prometheus.Counter
	framesDropped   *prometheus.CounterVec
	stageSkipped    *prometheus.CounterVec
	framesInFlight  prometheus.Gauge
	frameDuration   prometheus.Histogram
}

// NewProfiler creates a new Profiler. Update interval defaults to 1 second. Metrics are only
// registered when WithRegisterer is given.
//
// Parameters:
//   - options: functional options such as WithLogger or WithRegisterer
//
// Returns:
//   - *Profiler: the newly created profiler instance
//   - error: an error if a metric could not be registered
func NewProfiler(options ...ProfilerBuilderOption) (*Profiler, error) {
	p := &Profiler{
		logger:         zap.NewNop(),
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
		framesPresented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_presented_total",
			Help:      "Frames whose render batch completed successfully.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped after a batch failed, by stage.",
		}, []string{"stage"}),
		stageSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_skipped_total",
			Help:      "Stages skipped because their pipeline is not ready.",
		}, []string{"stage"}),
		framesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frames_in_flight",
			Help:      "Frames whose GPU work is outstanding.",
		}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Wall time from slot acquisition to render completion.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	for _, opt := range options {
		opt(p)
	}

	if p.registerer != nil {
		for _, c := range []prometheus.Collector{p.framesPresented, p.framesDropped, p.stageSkipped, p.framesInFlight, p.frameDuration} {
			if err := p.registerer.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	// Alloc: live heap. TotalAlloc: cumulative, tracks churn. Sys: process footprint.
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			pause := p.memStats.PauseNs[i%256] / 1000
			if pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	p.logger.Info("profiler stats",
		zap.Float64("fps", fps),
		zap.Float64("heap_mb", allocMB),
		zap.Float64("alloc_rate_mb_s", allocRateMB),
		zap.Uint32("gc_count", gcCount),
		zap.Uint64("gc_last_pause_us", lastPauseUs),
		zap.Uint64("gc_max_pause_us", maxPauseUs),
		zap.Float64("sys_mb", sysMB),
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// FramePresented records a frame whose render batch completed.
//
// Parameters:
//   - d: the frame's wall time
func (p *Profiler) FramePresented(d time.Duration) {
	p.framesPresented.Inc()
	p.frameDuration.Observe(d.Seconds())
}

// FrameDropped records a frame dropped after a failed batch in stage.
func (p *Profiler) FrameDropped(stage string) {
	p.framesDropped.WithLabelValues(stage).Inc()
}

// StageSkipped records a stage skipped because its pipeline is not ready.
func (p *Profiler) StageSkipped(stage string) {
	p.stageSkipped.WithLabelValues(stage).Inc()
}

// SetInFlight sets the number of frames with outstanding GPU work.
func (p *Profiler) SetInFlight(n int) {
	p.framesInFlight.Set(float64(n))
}
