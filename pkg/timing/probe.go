package timing

import (
	"github.com/go-drift/renderloop/pkg/logging"
)

// Overhead splits a pass between time spent in the render loop itself and
// time spent in the host renderer.
type Overhead struct {
	CoreMs float64 `json:"coreMs"`
	HostMs float64 `json:"hostMs"`
}

// Breakdown is the per-phase duration of a pass (ms).
type Breakdown struct {
	TotalMs   float64 `json:"totalMs"`
	ExploreMs float64 `json:"exploreMs"`
	PrepareMs float64 `json:"prepareMs"`
	RenderMs  float64 `json:"renderMs"`
	HostMs    float64 `json:"hostMs"`
	CleanupMs float64 `json:"cleanupMs"`
}

// Sample is one emitted pass report.
type Sample struct {
	Timestamp int64     `json:"ts"`
	Name      string    `json:"name"`
	Pass      int       `json:"pass"`
	Overhead  Overhead  `json:"overhead"`
	Phases    Breakdown `json:"phases"`
}

// OverheadOf derives the core/host split from a record.
func OverheadOf(r *Record) Overhead {
	core := r.BeforeCommit.Sub(r.Start) + r.AfterCleanup.Sub(r.AfterCommit)
	return Overhead{
		CoreMs: durationToMillis(core),
		HostMs: durationToMillis(r.AfterCommit.Sub(r.BeforeCommit)),
	}
}

// BreakdownOf derives the phase breakdown from a record.
func BreakdownOf(r *Record) Breakdown {
	return Breakdown{
		TotalMs:   durationToMillis(r.AfterCleanup.Sub(r.Start)),
		ExploreMs: durationToMillis(r.AfterExplore.Sub(r.Start)),
		PrepareMs: durationToMillis(r.AfterPrepare.Sub(r.AfterExplore)),
		RenderMs:  durationToMillis(r.AfterRender.Sub(r.AfterPrepare)),
		HostMs:    durationToMillis(r.AfterCommit.Sub(r.BeforeCommit)),
		CleanupMs: durationToMillis(r.AfterCleanup.Sub(r.AfterCommit)),
	}
}

// Probe creates records and emits reports into a Buffer.
type Probe struct {
	buffer *Buffer
}

// NewProbe creates a probe whose buffer holds capacity samples.
func NewProbe(capacity int) *Probe {
	return &Probe{buffer: NewBuffer(capacity)}
}

// Default is the probe used by pipelines that are not given one.
var Default = NewProbe(0)

// Buffer returns the sample buffer.
func (p *Probe) Buffer() *Buffer {
	return p.buffer
}

// Begin starts a record for a pass. It returns nil, without reading the
// clock, when no report is enabled.
func (p *Probe) Begin() *Record {
	if !reporting() {
		return nil
	}
	return &Record{Start: now()}
}

// Emit logs the enabled reports for rec and stores a sample. It does
// nothing for a nil record.
func (p *Probe) Emit(name string, pass int, rec *Record) {
	if rec == nil {
		return
	}
	sample := Sample{
		Timestamp: rec.Start.UnixMilli(),
		Name:      name,
		Pass:      pass,
		Overhead:  OverheadOf(rec),
		Phases:    BreakdownOf(rec),
	}

	log := logging.Component("timing")
	if Enabled(HostRender) {
		log.Info().
			Int("pass", pass).
			Float64("core_ms", round(sample.Overhead.CoreMs, 2)).
			Float64("host_ms", round(sample.Overhead.HostMs, 2)).
			Msg("render overhead")
	}
	if Enabled(AppLoop) {
		log.Info().
			Int("pass", pass).
			Str("name", name).
			Float64("total_ms", round(sample.Phases.TotalMs, 1)).
			Float64("explore_ms", round(sample.Phases.ExploreMs, 1)).
			Float64("prepare_ms", round(sample.Phases.PrepareMs, 1)).
			Float64("render_ms", round(sample.Phases.RenderMs, 1)).
			Float64("host_ms", round(sample.Phases.HostMs, 1)).
			Float64("cleanup_ms", round(sample.Phases.CleanupMs, 1)).
			Msg("render pass")
	}
	if p.buffer != nil {
		p.buffer.Add(sample)
	}
}

func round(v float64, digits int) float64 {
	scale := 1.0
	for range digits {
		scale *= 10
	}
	return float64(int64(v*scale+0.5)) / scale
}
