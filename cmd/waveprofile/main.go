package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Carmen-Shannon/wave-profile/engine"
	"github.com/Carmen-Shannon/wave-profile/engine/profiler"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/Carmen-Shannon/wave-profile/engine/window"
	"github.com/Carmen-Shannon/wave-profile/internal/config"
	"github.com/Carmen-Shannon/wave-profile/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "waveprofile: %v\n", err)
		os.Exit(2)
	}

	// ── Command line overrides ──────────────────────────────────────
	backend := flag.String("backend", cfg.Backend.String(), "renderer backend: wgpu or software (headless)")
	frames := flag.Int("frames", cfg.Frames, "frames to render in headless mode")
	output := flag.String("output", cfg.Output, "PNG written after a headless run")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on")
	flag.Parse()

	cfg.Backend, err = renderer.ParseBackendType(*backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "waveprofile: %v\n", err)
		os.Exit(2)
	}
	cfg.Frames = *frames
	cfg.Output = *output
	cfg.MetricsAddr = *metricsAddr
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "waveprofile: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: "waveprofile",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "waveprofile: building logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// ── Metrics ─────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prof, err := profiler.NewProfiler(profiler.WithLogger(log), profiler.WithRegisterer(reg))
	if err != nil {
		log.Fatal("registering metrics", zap.Error(err))
	}
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, log)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	// ── Engine ──────────────────────────────────────────────────────
	headless := cfg.Backend == renderer.BackendTypeSoftware
	options := []engine.EngineBuilderOption{
		engine.WithLogger(log),
		engine.WithProfiler(prof),
		engine.WithProfiling(true),
		engine.WithRendererOptions(
			renderer.WithPresentMode(cfg.PresentMode),
			renderer.WithMSAA(cfg.MSAA),
			renderer.WithForceSoftwareRenderer(cfg.ForceFallbackAdapter),
		),
	}
	if headless {
		options = append(options, engine.WithHeadless(cfg.Width, cfg.Height), engine.WithFrameLimit(cfg.Frames))
	} else {
		options = append(options, engine.WithWindowOptions(
			window.WithTitle("Wave Profile"),
			window.WithSize(cfg.Width, cfg.Height),
		))
	}

	eng, err := engine.NewEngine(cfg.Backend, cfg.Wave, options...)
	if err != nil {
		log.Fatal("starting wave profile", zap.Error(err))
	}

	log.Info("running",
		zap.Stringer("backend", cfg.Backend),
		zap.Bool("headless", headless),
		zap.Int("point_count", cfg.Wave.PointCount),
		zap.Float32s("q_values", cfg.Wave.QValues),
		zap.Bool("pipelined", cfg.Wave.Pipelined),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil {
		log.Error("render loop stopped", zap.Error(err))
		return
	}

	if headless {
		if err := writeSnapshot(eng.Renderer(), cfg.Output); err != nil {
			log.Error("writing snapshot", zap.String("output", cfg.Output), zap.Error(err))
			return
		}
		log.Info("snapshot written", zap.String("output", cfg.Output), zap.Int("frames", cfg.Frames))
	}
}

// serveMetrics exposes the registry on addr until the returned server is shut down.
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func writeSnapshot(r renderer.Renderer, path string) error {
	if r == nil {
		return errors.New("no renderer")
	}
	img, ok := r.Snapshot()
	if !ok {
		return errors.New("no frame was presented")
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
