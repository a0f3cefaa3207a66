package errors

import (
	"github.com/go-drift/renderloop/pkg/logging"
)

// LogHandler is an ErrorHandler that writes through the process logger.
type LogHandler struct {
	// Verbose enables detailed output including stack traces.
	Verbose bool
}

// HandleError logs a DriftError. Divergence is logged as a warning since
// the pass still commits.
func (h *LogHandler) HandleError(err *DriftError) {
	if err == nil {
		return
	}
	log := logging.Logger()
	ev := log.Error()
	if err.Kind == KindDivergence {
		ev = log.Warn()
	}
	ev = ev.Str("op", err.Op).Stringer("kind", err.Kind)
	if err.Binding != "" {
		ev = ev.Str("binding", err.Binding)
	}
	if h.Verbose && err.StackTrace != "" {
		ev = ev.Str("stack", err.StackTrace)
	}
	ev.Err(err.Err).Msg("render loop error")
}

// HandlePhaseError logs a PhaseError.
func (h *LogHandler) HandlePhaseError(err *PhaseError) {
	if err == nil {
		return
	}
	log := logging.Logger()
	ev := log.Error().Str("phase", err.Phase)
	if err.Instance != "" {
		ev = ev.Str("instance", err.Instance)
	}
	if h.Verbose && err.StackTrace != "" {
		ev = ev.Str("stack", err.StackTrace)
	}
	ev.Msg(err.Error())
}
