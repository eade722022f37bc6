package profiler

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestProfilerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewProfiler(WithRegisterer(reg))
	require.NoError(t, err)

	p.FramePresented(5 * time.Millisecond)
	p.FramePresented(7 * time.Millisecond)
	p.FrameDropped(StageCompute)
	p.StageSkipped(StageRender)
	p.StageSkipped(StageRender)
	p.SetInFlight(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.framesPresented))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.framesDropped.WithLabelValues(StageCompute)))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.framesDropped.WithLabelValues(StageRender)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.stageSkipped.WithLabelValues(StageRender)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.framesInFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(p.frameDuration))

	count, err := testutil.GatherAndCount(reg, "waveprofile_frames_presented_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProfilerDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewProfiler(WithRegisterer(reg))
	require.NoError(t, err)

	_, err = NewProfiler(WithRegisterer(reg))
	assert.Error(t, err)
}

func TestProfilerTick(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p, err := NewProfiler(WithLogger(zap.New(core)), WithUpdateInterval(time.Hour))
	require.NoError(t, err)

	assert.False(t, p.Tick())
	assert.Equal(t, 0, logs.Len())

	p.lastTime = time.Now().Add(-2 * time.Hour)
	assert.True(t, p.Tick())
	require.Equal(t, 1, logs.FilterMessage("profiler stats").Len())
	assert.Equal(t, 0, p.frameCount)
}
