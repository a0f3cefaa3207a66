//go:build !production

package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/renderloop/pkg/core"
	"github.com/go-drift/renderloop/pkg/pipeline"
	rltest "github.com/go-drift/renderloop/pkg/testing"
	"github.com/go-drift/renderloop/pkg/timing"
)

func TestRun_EmitsTimingSample(t *testing.T) {
	clk := rltest.NewFakeClock()
	clk.SetStep(time.Millisecond)
	prev := timing.SetClock(clk)
	timing.Enable(timing.AppLoop)
	t.Cleanup(func() {
		timing.Disable(timing.AppLoop)
		timing.SetClock(prev)
	})

	probe := timing.NewProbe(8)
	p := pipeline.New(nil, pipeline.WithProbe(probe))
	p.Run(rltest.NewInstance("root"), core.Options{Name: "timed"}, nil, nil)

	snap := probe.Buffer().Snapshot()
	require.Len(t, snap.Samples, 1)
	sample := snap.Samples[0]
	assert.Equal(t, "timed", sample.Name)
	assert.Equal(t, 1, sample.Pass)
	// Seven marks one millisecond apart.
	assert.InDelta(t, 6.0, sample.Phases.TotalMs, 0.001)
	assert.InDelta(t, 1.0, sample.Overhead.HostMs, 0.001)
}

func TestRun_NoSampleWhenDisabled(t *testing.T) {
	probe := timing.NewProbe(8)
	p := pipeline.New(nil, pipeline.WithProbe(probe))

	p.Run(rltest.NewInstance("root"), core.Options{}, nil, nil)

	assert.Equal(t, 0, probe.Buffer().Len())
}
