package wave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/wave-profile/common"
	"github.com/Carmen-Shannon/wave-profile/engine/mesh"
	"github.com/Carmen-Shannon/wave-profile/engine/params"
	"github.com/Carmen-Shannon/wave-profile/engine/profiler"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// ErrClosed is returned by Frame after Close.
var ErrClosed = errors.New("wave: orchestrator closed")

// FrameReport describes what one call to Frame did.
type FrameReport struct {
	Frame uint64
	Slot  int

	ComputeStatus renderer.CommandStatus
	RenderStatus  renderer.CommandStatus

	ComputeSkipped bool
	RenderSkipped  bool

	// Dropped is set when a batch did not succeed; DroppedStage names it.
	Dropped      bool
	DroppedStage string

	// Layers is the number of layers encoded.
	Layers int

	// Duration is zero for pipelined frames, whose render completion is awaited after Frame returns.
	Duration time.Duration
}

// Readback is the content of the debug readback of one profile.
type Readback struct {
	Frame   uint64
	Slot    int
	Profile int
	QValue  float32

	// Transformed is the profile buffer after the compute stage.
	Transformed []mesh.ProfileCoord

	// Base is the shared base vertex buffer.
	Base []mesh.ProfileCoord
}

// ReadbackHook receives debug readbacks, one call per profile.
type ReadbackHook func(rb Readback)

// frameSlot holds the resources one in-flight frame writes.
type frameSlot struct {
	profiles  []bind_group_provider.Buffer
	constants bind_group_provider.Buffer

	compute []bind_group_provider.BindGroupProvider
	meshes  []bind_group_provider.BindGroupProvider
	layers  []bind_group_provider.BindGroupProvider
}

type orchestrator struct {
	mu *sync.Mutex

	r            renderer.Renderer
	cfg          Config
	logger       *zap.Logger
	profiler     *profiler.Profiler
	readbackHook ReadbackHook

	mesh       mesh.Mesh
	store      params.Store
	dispatcher Dispatcher
	sequencer  Sequencer
	inflight   Synchronizer

	computeReady bool
	renderReady  bool

	baseBuffer   bind_group_provider.Buffer
	indexBuffer  bind_group_provider.Buffer
	paramsBuffer bind_group_provider.Buffer
	slots        []*frameSlot

	frames  atomic.Uint64
	pending *sync.WaitGroup
	closed  bool
}

// Orchestrator owns the pipeline's resources and runs one compute-then-render frame per call.
type Orchestrator interface {
	// Frame acquires a slot, transforms every profile, draws the layers and presents.
	// Unless the config is pipelined, it returns after the render batch completes.
	// A failed batch drops the frame without returning an error.
	//
	// Parameters:
	//   - ctx: bounds only the wait for a free slot
	//
	// Returns:
	//   - FrameReport: what the frame did
	//   - error: the context error, ErrClosed, or an encoding error
	Frame(ctx context.Context) (FrameReport, error)

	// Config returns the configuration the orchestrator was built with.
	Config() Config

	// ComputeReady reports whether the compute pipeline compiled.
	ComputeReady() bool

	// RenderReady reports whether the render pipeline compiled.
	RenderReady() bool

	// Close waits for outstanding frames and releases the orchestrator's buffers.
	Close()
}

var _ Orchestrator = &orchestrator{}

// NewOrchestrator validates the layout, registers the pipelines and allocates every buffer.
// A pipeline that fails to compile is logged and left unready; its stage is skipped on every frame.
//
// Parameters:
//   - r: the renderer to run on
//   - kernels: the compute, vertex and fragment shaders
//   - cfg: the pipeline configuration
//   - options: functional options such as WithLogger, WithProfiler or WithReadbackHook
//
// Returns:
//   - Orchestrator: the orchestrator
//   - error: a wrapped layout error, or a buffer allocation error
func NewOrchestrator(r renderer.Renderer, kernels Kernels, cfg Config, options ...OrchestratorBuilderOption) (Orchestrator, error) {
	o := &orchestrator{
		mu:      &sync.Mutex{},
		r:       r,
		cfg:     cfg,
		logger:  zap.NewNop(),
		pending: &sync.WaitGroup{},
	}
	for _, opt := range options {
		opt(o)
	}
	if o.profiler == nil {
		p, err := profiler.NewProfiler(profiler.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		o.profiler = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := mesh.NewMesh(cfg.PointCount)
	if err != nil {
		return nil, err
	}
	o.mesh = m

	store, err := params.NewStore(cfg.QValues, cfg.ParamStride,
		params.WithAmplitude(cfg.Amplitude),
		params.WithHeight(cfg.HeightBase, cfg.HeightScale),
	)
	if err != nil {
		return nil, err
	}
	o.store = store

	align := r.Limits().MinUniformBufferOffsetAlignment
	if align == 0 || uint32(cfg.ParamStride)%align != 0 {
		return nil, fmt.Errorf("%w: stride %d, alignment %d", ErrStrideAlignment, cfg.ParamStride, align)
	}

	dispatcher, err := NewDispatcher(r, kernels.Compute, ComputePipelineKey, cfg)
	if err != nil {
		return nil, err
	}
	o.dispatcher = dispatcher
	o.sequencer = NewSequencer(r, RenderPipelineKey, cfg.ProfileCount(), cfg.LayerFalloff)

	o.inflight, err = NewSynchronizer(cfg.slotCount())
	if err != nil {
		return nil, err
	}

	o.computeReady = o.register(pipeline.NewPipeline(ComputePipelineKey, pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(kernels.Compute),
	), kernels.Compute != nil)
	o.renderReady = o.register(pipeline.NewPipeline(RenderPipelineKey, pipeline.PipelineTypeRender,
		pipeline.WithLabel(RenderPipelineLabel),
		pipeline.WithVertexShader(kernels.Vertex),
		pipeline.WithFragmentShader(kernels.Fragment),
		pipeline.WithCullMode(wgpu.CullModeNone),
		pipeline.WithFrontFace(wgpu.FrontFaceCW),
		pipeline.WithBlendEnabled(true),
	), kernels.Vertex != nil && kernels.Fragment != nil)

	if err := o.allocate(); err != nil {
		o.release()
		return nil, err
	}

	o.logger.Info("wave profile ready",
		zap.Int("point_count", cfg.PointCount),
		zap.Int("profiles", cfg.ProfileCount()),
		zap.Int("threads_per_group", o.dispatcher.ThreadsPerGroup()),
		zap.Int("slots", len(o.slots)),
		zap.Bool("pipelined", cfg.Pipelined),
		zap.Bool("compute_ready", o.computeReady),
		zap.Bool("render_ready", o.renderReady),
	)
	return o, nil
}

// register compiles p and reports whether it is usable.
func (o *orchestrator) register(p pipeline.Pipeline, haveShaders bool) bool {
	if !haveShaders {
		o.logger.Error("pipeline is missing a shader", zap.String("pipeline_key", p.PipelineKey()))
		return false
	}
	if err := o.r.RegisterPipelines(p); err != nil {
		o.logger.Error("pipeline failed to compile",
			zap.String("pipeline_key", p.PipelineKey()),
			zap.Error(err),
		)
		return false
	}
	// the renderer keeps the first pipeline registered under a key
	registered := o.r.Pipeline(p.PipelineKey())
	return registered != nil && registered.Ready()
}

// allocate creates the shared buffers and every slot's buffers and bind groups.
func (o *orchestrator) allocate() error {
	var err error
	vertexBytes := o.mesh.VertexBytes()
	o.baseBuffer, err = o.r.CreateBuffer("Base Vertex Buffer", uint64(len(vertexBytes)),
		wgpu.BufferUsageStorage|wgpu.BufferUsageVertex|wgpu.BufferUsageCopySrc, vertexBytes)
	if err != nil {
		return err
	}
	indexBytes := o.mesh.IndexBytes()
	o.indexBuffer, err = o.r.CreateBuffer("Index Buffer", common.AlignUp(uint64(len(indexBytes)), 4),
		wgpu.BufferUsageIndex, indexBytes)
	if err != nil {
		return err
	}
	paramBytes := o.store.Bytes()
	o.paramsBuffer, err = o.r.CreateBuffer("Wave Params Buffer", uint64(len(paramBytes)),
		wgpu.BufferUsageUniform, paramBytes)
	if err != nil {
		return err
	}

	fc := params.NewFrameConstants()
	constantsSize := uint64(fc.Size())
	stride := uint64(o.cfg.ParamStride)
	n := o.cfg.ProfileCount()

	for slot := range o.cfg.slotCount() {
		s := &frameSlot{}
		o.slots = append(o.slots, s)

		s.constants, err = o.r.CreateBuffer(fmt.Sprintf("Frame Constants %d", slot), stride*uint64(n),
			wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, nil)
		if err != nil {
			return err
		}
		for i := range n {
			profile, err := o.r.CreateBuffer(fmt.Sprintf("Profile Buffer %d/%d", slot, i), uint64(len(vertexBytes)),
				wgpu.BufferUsageStorage|wgpu.BufferUsageVertex|wgpu.BufferUsageCopySrc, nil)
			if err != nil {
				return err
			}
			s.profiles = append(s.profiles, profile)

			s.compute = append(s.compute, bind_group_provider.NewBindGroupProvider(
				fmt.Sprintf("profile_compute_%d_%d", slot, i),
				bind_group_provider.WithBinding(0, o.baseBuffer),
				bind_group_provider.WithBinding(1, profile),
				bind_group_provider.WithBindingRange(2, o.paramsBuffer, o.store.Offset(i), o.store.EntrySize()),
			))
			s.meshes = append(s.meshes, bind_group_provider.NewBindGroupProvider(
				fmt.Sprintf("profile_mesh_%d_%d", slot, i),
				bind_group_provider.WithVertexBuffer(profile),
				bind_group_provider.WithIndexBuffer(o.indexBuffer, o.mesh.IndexCount()),
			))
		}
		for k := range n {
			s.layers = append(s.layers, bind_group_provider.NewBindGroupProvider(
				fmt.Sprintf("layer_constants_%d_%d", slot, k),
				bind_group_provider.WithBindingRange(0, s.constants, stride*uint64(k), constantsSize),
			))
		}

		if o.computeReady {
			for _, p := range s.compute {
				if err := o.r.InitBindGroup(p, ComputePipelineKey, 0); err != nil {
					return fmt.Errorf("bind %s: %w", p.Label(), err)
				}
			}
		}
		if o.renderReady {
			for _, p := range s.layers {
				if err := o.r.InitBindGroup(p, RenderPipelineKey, 0); err != nil {
					return fmt.Errorf("bind %s: %w", p.Label(), err)
				}
			}
		}
	}
	return nil
}

func (o *orchestrator) Config() Config {
	return o.cfg
}

func (o *orchestrator) ComputeReady() bool {
	return o.computeReady
}

func (o *orchestrator) RenderReady() bool {
	return o.renderReady
}

func (o *orchestrator) Frame(ctx context.Context) (FrameReport, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return FrameReport{}, ErrClosed
	}
	o.pending.Add(1)
	o.mu.Unlock()

	start := time.Now()
	slot, err := o.inflight.Acquire(ctx)
	if err != nil {
		o.pending.Done()
		return FrameReport{}, err
	}
	o.profiler.SetInFlight(o.inflight.InFlight())

	// the slot is returned here unless a pipelined completion takes it over
	owned := true
	defer func() {
		if owned {
			o.finish(slot)
		}
	}()

	report := FrameReport{
		Frame:         o.frames.Add(1),
		Slot:          slot,
		ComputeStatus: renderer.CommandStatusUnknown,
		RenderStatus:  renderer.CommandStatusUnknown,
	}
	sub, err := o.encode(&report)
	if err != nil || sub == nil {
		return report, err
	}

	if o.cfg.Pipelined {
		owned = false
		go func() {
			defer o.finish(slot)
			o.complete(report, sub, start)
		}()
		return report, nil
	}

	return o.complete(report, sub, start), nil
}

// encode runs the compute stage and submits the render batch. A nil submission with a nil
// error means the frame ended early.
func (o *orchestrator) encode(report *FrameReport) (renderer.Submission, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.slots[report.Slot]

	// the profile buffers hold nothing worth drawing until compute has written them
	if !o.computeReady {
		report.ComputeSkipped = true
		o.skip(report, profiler.StageCompute, ComputePipelineKey)
		report.RenderSkipped = true
		o.skip(report, profiler.StageRender, RenderPipelineKey)
		return nil, nil
	}

	status, err := o.dispatcher.Dispatch(s.compute)
	report.ComputeStatus = status
	if err != nil {
		return nil, err
	}
	if status != renderer.CommandStatusSuccess {
		o.drop(report, profiler.StageCompute, ComputeBatchLabel, status)
		return nil, nil
	}

	if !o.renderReady {
		report.RenderSkipped = true
		o.skip(report, profiler.StageRender, RenderPipelineKey)
		return nil, nil
	}
	sub, err := o.sequencer.Render(s.meshes, s.layers)
	if err != nil {
		return nil, err
	}
	report.Layers = o.sequencer.Layers()
	return sub, nil
}

// complete waits for the render batch and records the outcome.
func (o *orchestrator) complete(report FrameReport, sub renderer.Submission, start time.Time) FrameReport {
	report.RenderStatus = sub.Wait()
	if report.RenderStatus != renderer.CommandStatusSuccess {
		o.drop(&report, profiler.StageRender, sub.Label(), report.RenderStatus)
		return report
	}
	if !o.cfg.Pipelined {
		report.Duration = time.Since(start)
	}
	o.profiler.FramePresented(time.Since(start))

	if o.cfg.Debug || o.readbackHook != nil {
		o.readback(report)
	}
	return report
}

func (o *orchestrator) skip(report *FrameReport, stage, pipelineKey string) {
	o.logger.Debug("stage skipped, pipeline not ready",
		zap.String("stage", stage),
		zap.String("pipeline_key", pipelineKey),
		zap.Uint64("frame", report.Frame),
	)
	o.profiler.StageSkipped(stage)
}

func (o *orchestrator) drop(report *FrameReport, stage, label string, status renderer.CommandStatus) {
	report.Dropped = true
	report.DroppedStage = stage
	o.logger.Error("command batch failed, frame dropped",
		zap.String("batch_label", label),
		zap.Stringer("status", status),
		zap.Uint64("frame", report.Frame),
		zap.Int("slot", report.Slot),
	)
	o.profiler.FrameDropped(stage)
}

// readback copies the base buffer and every profile buffer of the frame's slot to the host.
func (o *orchestrator) readback(report FrameReport) {
	baseBytes, err := o.r.ReadBuffer(o.baseBuffer)
	if err != nil {
		o.logger.Error("readback failed", zap.String("buffer", o.baseBuffer.Label()), zap.Error(err))
		return
	}
	base := mesh.UnmarshalProfileCoords(baseBytes)

	for i, buf := range o.slots[report.Slot].profiles {
		data, err := o.r.ReadBuffer(buf)
		if err != nil {
			o.logger.Error("readback failed", zap.String("buffer", buf.Label()), zap.Error(err))
			return
		}
		rb := Readback{
			Frame:       report.Frame,
			Slot:        report.Slot,
			Profile:     i,
			QValue:      o.cfg.QValues[i],
			Transformed: mesh.UnmarshalProfileCoords(data),
			Base:        base,
		}
		o.logger.Debug("profile readback",
			zap.Uint64("frame", rb.Frame),
			zap.Int("profile", rb.Profile),
			zap.Float32("q_value", rb.QValue),
			zap.Float32s("transformed", common.Float32sFromBytes(data)),
			zap.Float32s("base", common.Float32sFromBytes(baseBytes)),
		)
		if o.readbackHook != nil {
			o.readbackHook(rb)
		}
	}
}

// finish returns the slot of a completed frame.
func (o *orchestrator) finish(slot int) {
	o.inflight.Release(slot)
	o.profiler.SetInFlight(o.inflight.InFlight())
	o.pending.Done()
}

func (o *orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.pending.Wait()
	o.release()
}

// release frees every buffer and bind group the orchestrator allocated.
func (o *orchestrator) release() {
	for _, s := range o.slots {
		for _, p := range s.compute {
			p.Release()
		}
		for _, p := range s.layers {
			p.Release()
		}
		for _, b := range s.profiles {
			b.Release()
		}
		if s.constants != nil {
			s.constants.Release()
		}
	}
	o.slots = nil
	for _, b := range []bind_group_provider.Buffer{o.baseBuffer, o.indexBuffer, o.paramsBuffer} {
		if b != nil {
			b.Release()
		}
	}
}
