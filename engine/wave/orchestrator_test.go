package wave

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/wave-profile/engine/mesh"
	"github.com/Carmen-Shannon/wave-profile/engine/params"
	"github.com/Carmen-Shannon/wave-profile/engine/profiler"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/shader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type commandLog struct {
	mu   sync.Mutex
	cmds []renderer.Command
}

func (l *commandLog) observe(cmd renderer.Command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = append(l.cmds, cmd)
}

func (l *commandLog) commands() []renderer.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]renderer.Command(nil), l.cmds...)
}

func (l *commandLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = nil
}

func newOrchestrator(t *testing.T, r renderer.Renderer, cfg Config, options ...OrchestratorBuilderOption) Orchestrator {
	t.Helper()
	kernels, err := DefaultKernels(cfg)
	require.NoError(t, err)
	o, err := NewOrchestrator(r, kernels, cfg, options...)
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func TestOrchestratorFrameCommandOrder(t *testing.T) {
	log := &commandLog{}
	r := newSoftwareRenderer(t, renderer.WithCommandObserver(log.observe))
	o := newOrchestrator(t, r, DefaultConfig())
	require.True(t, o.ComputeReady())
	require.True(t, o.RenderReady())

	report, err := o.Frame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), report.Frame)
	assert.Equal(t, 0, report.Slot)
	assert.Equal(t, renderer.CommandStatusSuccess, report.ComputeStatus)
	assert.Equal(t, renderer.CommandStatusSuccess, report.RenderStatus)
	assert.False(t, report.Dropped)
	assert.Equal(t, 4, report.Layers)

	cmds := log.commands()
	require.Len(t, cmds, 4+1+8+1)

	for i := range 4 {
		cmd := cmds[i]
		assert.Equal(t, renderer.CommandKindDispatch, cmd.Kind)
		assert.Equal(t, ComputeBatchLabel, cmd.Batch)
		assert.Equal(t, ComputePipelineKey, cmd.Pipeline)
		assert.Equal(t, [3]uint32{4, 1, 1}, cmd.WorkGroups)
		assert.Equal(t, fmt.Sprintf("profile_compute_0_%d", i), cmd.Provider)
	}
	assert.Equal(t, renderer.Command{Kind: renderer.CommandKindSubmit, Batch: ComputeBatchLabel}, cmds[4])

	for k := range 4 {
		layer := cmds[5+2*k]
		draw := cmds[6+2*k]

		assert.Equal(t, renderer.CommandKindLayer, layer.Kind)
		assert.Equal(t, FrameBatchLabel, layer.Batch)
		assert.Equal(t, LayerPassLabel, layer.Layer.Label)
		assert.Equal(t, LayerDebugGroup, layer.Layer.DebugGroup)
		if k == 0 {
			assert.Equal(t, renderer.LoadActionClear, layer.Layer.LoadAction)
			assert.Equal(t, ClearColor, layer.Layer.ClearColor)
		} else {
			assert.Equal(t, renderer.LoadActionLoad, layer.Layer.LoadAction)
		}

		assert.Equal(t, renderer.CommandKindDraw, draw.Kind)
		assert.Equal(t, RenderPipelineKey, draw.Pipeline)
		assert.Equal(t, fmt.Sprintf("profile_mesh_0_%d", 3-k), draw.Provider)
		assert.Equal(t, 6*(DefaultPointCount-1), draw.IndexCount)
	}
	assert.Equal(t, renderer.Command{Kind: renderer.CommandKindSubmit, Batch: FrameBatchLabel}, cmds[13])
}

func TestOrchestratorReadback(t *testing.T) {
	var mu sync.Mutex
	readbacks := map[uint64][]Readback{}
	hook := func(rb Readback) {
		mu.Lock()
		defer mu.Unlock()
		readbacks[rb.Frame] = append(readbacks[rb.Frame], rb)
	}

	cfg := DefaultConfig()
	r := newSoftwareRenderer(t)
	o := newOrchestrator(t, r, cfg, WithReadbackHook(hook))

	for range 2 {
		_, err := o.Frame(context.Background())
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, readbacks[1], 4)
	require.Len(t, readbacks[2], 4)

	m, err := mesh.NewMesh(cfg.PointCount)
	require.NoError(t, err)
	base := m.Vertices()

	for i, rb := range readbacks[1] {
		assert.Equal(t, i, rb.Profile)
		assert.Equal(t, cfg.QValues[i], rb.QValue)
		assert.Equal(t, base, rb.Base)
		require.Len(t, rb.Transformed, cfg.VertexCount())

		height := cfg.HeightBase + cfg.HeightScale*rb.QValue
		for v, p := range base {
			phase := 2 * math.Pi * float64(p.X)
			wantX := float64(p.X) - float64(rb.QValue*cfg.Amplitude)*math.Sin(phase)
			wantY := -1.0
			if p.Y > 0 {
				wantY = float64(height) + float64(cfg.Amplitude)*math.Cos(phase)
			}
			assert.InDelta(t, wantX, rb.Transformed[v].X, 1e-5, "profile %d vertex %d x", i, v)
			assert.InDelta(t, wantY, rb.Transformed[v].Y, 1e-5, "profile %d vertex %d y", i, v)
		}

		// the compute stage is a pure function of its inputs
		assert.Equal(t, rb.Transformed, readbacks[2][i].Transformed)
	}
}

func TestOrchestratorDebugLogsReadback(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := DefaultConfig()
	cfg.Debug = true
	o := newOrchestrator(t, newSoftwareRenderer(t), cfg, WithLogger(zap.New(core)))

	_, err := o.Frame(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("profile readback").All()
	require.Len(t, entries, 4)
	assert.Equal(t, int64(0), entries[0].ContextMap()["profile"])
}

func TestOrchestratorSnapshot(t *testing.T) {
	r := newSoftwareRenderer(t)
	o := newOrchestrator(t, r, DefaultConfig())

	_, err := o.Frame(context.Background())
	require.NoError(t, err)

	img, ok := r.Snapshot()
	require.True(t, ok)

	// above every crest only the clear colour remains
	assert.Equal(t, color.RGBAModel.Convert(color.NRGBA{A: 255}), img.At(0, 0))

	// the bottom edge is covered by the front layer, drawn last with falloff^4
	front := LayerConstants(4, DefaultLayerFalloff)[3].Colour
	got := color.NRGBAModel.Convert(img.At(32, 63)).(color.NRGBA)
	assert.InDelta(t, float64(front[0])*255, float64(got.R), 1)
	assert.InDelta(t, float64(front[1])*255, float64(got.G), 1)
	assert.Equal(t, uint8(255), got.B)
	assert.Equal(t, uint8(255), got.A)
}

func TestOrchestratorDropsFailedBatch(t *testing.T) {
	tests := []struct {
		name      string
		failLabel string
		stage     string
		wantCmds  int
	}{
		{name: "compute", failLabel: ComputeBatchLabel, stage: profiler.StageCompute, wantCmds: 5},
		{name: "render", failLabel: FrameBatchLabel, stage: profiler.StageRender, wantCmds: 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)
			cmdLog := &commandLog{}
			fail := true
			hook := func(label string) renderer.CommandStatus {
				if fail && label == tt.failLabel {
					return renderer.CommandStatusError
				}
				return renderer.CommandStatusSuccess
			}
			reg := prometheus.NewRegistry()
			prof, err := profiler.NewProfiler(profiler.WithRegisterer(reg))
			require.NoError(t, err)

			r := newSoftwareRenderer(t, renderer.WithStatusHook(hook), renderer.WithCommandObserver(cmdLog.observe))
			o := newOrchestrator(t, r, DefaultConfig(), WithLogger(zap.New(core)), WithProfiler(prof))

			report, err := o.Frame(context.Background())
			require.NoError(t, err)
			assert.True(t, report.Dropped)
			assert.Equal(t, tt.stage, report.DroppedStage)
			assert.Len(t, cmdLog.commands(), tt.wantCmds)

			entries := logs.FilterMessage("command batch failed, frame dropped").All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, tt.failLabel, fields["batch_label"])
			assert.Equal(t, "error", fields["status"])

			count, err := testutil.GatherAndCount(reg, "waveprofile_frames_dropped_total")
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			// the next frame proceeds
			fail = false
			cmdLog.reset()
			report, err = o.Frame(context.Background())
			require.NoError(t, err)
			assert.False(t, report.Dropped)
			assert.Len(t, cmdLog.commands(), 14)
		})
	}
}

func TestOrchestratorSlotsFollowPacing(t *testing.T) {
	tests := []struct {
		name      string
		pipelined bool
		slots     int64
	}{
		{name: "serialized ignores max in flight", pipelined: false, slots: 1},
		{name: "pipelined uses max in flight", pipelined: true, slots: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			cfg := DefaultConfig()
			cfg.MaxInFlight = 2
			cfg.Pipelined = tt.pipelined
			o := newOrchestrator(t, newSoftwareRenderer(t), cfg, WithLogger(zap.New(core)))

			ready := logs.FilterMessage("wave profile ready").All()
			require.Len(t, ready, 1)
			assert.Equal(t, tt.slots, ready[0].ContextMap()["slots"])

			seen := map[int]bool{}
			for range 4 {
				report, err := o.Frame(context.Background())
				require.NoError(t, err)
				seen[report.Slot] = true
			}
			for slot := range seen {
				assert.Less(t, int64(slot), tt.slots)
			}
		})
	}
}

func TestOrchestratorSkipsUnreadyCompute(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cmdLog := &commandLog{}
	cfg := DefaultConfig()
	kernels, err := DefaultKernels(cfg)
	require.NoError(t, err)

	// without a Go kernel the software backend cannot build the pipeline
	kernels.Compute, err = shader.NewShader(ComputePipelineKey, shader.ShaderTypeCompute, profileKernelSource,
		shader.WithPreProcessor(shader.NewPreProcessor(shader.WithWorkgroupSize(uint32(cfg.ThreadsPerGroup())))),
	)
	require.NoError(t, err)

	r := newSoftwareRenderer(t, renderer.WithCommandObserver(cmdLog.observe))
	o, err := NewOrchestrator(r, kernels, cfg, WithLogger(zap.New(core)))
	require.NoError(t, err)
	defer o.Close()

	assert.False(t, o.ComputeReady())
	assert.True(t, o.RenderReady())

	compileErrors := logs.FilterMessage("pipeline failed to compile").All()
	require.Len(t, compileErrors, 1)
	assert.Equal(t, ComputePipelineKey, compileErrors[0].ContextMap()["pipeline_key"])

	// nothing has written the profile buffers, so the layers are not drawn either
	cmdLog.reset()
	for range 2 {
		report, err := o.Frame(context.Background())
		require.NoError(t, err)
		assert.True(t, report.ComputeSkipped)
		assert.True(t, report.RenderSkipped)
		assert.False(t, report.Dropped)
		assert.Zero(t, report.Layers)
	}
	assert.Empty(t, cmdLog.commands())
	assert.Equal(t, 4, logs.FilterMessage("stage skipped, pipeline not ready").Len())
	assert.Equal(t, 1, logs.FilterMessage("pipeline failed to compile").Len())
}

func TestOrchestratorSkipsUnreadyRender(t *testing.T) {
	cfg := DefaultConfig()
	kernels, err := DefaultKernels(cfg)
	require.NoError(t, err)
	kernels.Fragment = nil

	cmdLog := &commandLog{}
	r := newSoftwareRenderer(t, renderer.WithCommandObserver(cmdLog.observe))
	o, err := NewOrchestrator(r, kernels, cfg)
	require.NoError(t, err)
	defer o.Close()

	report, err := o.Frame(context.Background())
	require.NoError(t, err)
	assert.False(t, report.ComputeSkipped)
	assert.True(t, report.RenderSkipped)
	assert.Len(t, cmdLog.commands(), 5)
}

func TestNewOrchestratorLayoutErrors(t *testing.T) {
	r := newSoftwareRenderer(t)
	kernels, err := DefaultKernels(DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "stride", mutate: func(c *Config) { c.ParamStride = 64 }, want: params.ErrStrideMismatch},
		{name: "thread group width", mutate: func(c *Config) { c.ThreadGroupWidth = 3 }, want: ErrThreadGroupWidth},
		{name: "kernel workgroup", mutate: func(c *Config) { c.ThreadGroupWidth = 8 }, want: ErrWorkgroupMismatch},
		{name: "thread limit", mutate: func(c *Config) { c.PointCount = 1024 }, want: ErrThreadGroupLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewOrchestrator(r, kernels, cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOrchestratorPipelined(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipelined = true

	var mu sync.Mutex
	slots := map[int]bool{}
	hook := func(rb Readback) {
		mu.Lock()
		defer mu.Unlock()
		slots[rb.Slot] = true
	}

	r := newSoftwareRenderer(t)
	o := newOrchestrator(t, r, cfg, WithReadbackHook(hook))

	for range 6 {
		report, err := o.Frame(context.Background())
		require.NoError(t, err)
		assert.Less(t, report.Slot, MaxBuffers)
		assert.Equal(t, renderer.CommandStatusSuccess, report.ComputeStatus)
		assert.Equal(t, renderer.CommandStatusUnknown, report.RenderStatus)
	}
	o.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, slots)

	_, err := o.Frame(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOrchestratorFrameHonoursContext(t *testing.T) {
	o := newOrchestrator(t, newSoftwareRenderer(t), DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Frame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
