package errors

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

type handlerBox struct{ h ErrorHandler }

var current atomic.Pointer[handlerBox]

func init() {
	current.Store(&handlerBox{h: &LogHandler{}})
}

// SetHandler installs the process-wide handler that receives reported
// errors. A nil handler restores the LogHandler.
func SetHandler(h ErrorHandler) {
	if h == nil {
		h = &LogHandler{}
	}
	current.Store(&handlerBox{h: h})
}

// Handler returns the installed handler.
func Handler() ErrorHandler {
	return current.Load().h
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now()
	}
}

// Report forwards err to the installed handler, stamping it first.
func Report(err *DriftError) {
	if err == nil {
		return
	}
	stamp(&err.Timestamp)
	Handler().HandleError(err)
}

// ReportPhaseError forwards a failed phase to the installed handler.
func ReportPhaseError(err *PhaseError) {
	if err == nil {
		return
	}
	stamp(&err.Timestamp)
	Handler().HandlePhaseError(err)
}

// Contract panics with a KindContract DriftError. Contract violations are
// programming errors; RecoverPhase re-panics them.
func Contract(op string, err error) {
	panic(&DriftError{
		Op:         op,
		Kind:       KindContract,
		Err:        err,
		StackTrace: CaptureStack(),
		Timestamp:  time.Now(),
	})
}

// RecoverPhase turns a panic raised while a host drives a binding into a
// reported *PhaseError stored in *target. It must be deferred directly.
// Contract violations are not recovered.
//
//	var failure *errors.PhaseError
//	func() {
//	    defer errors.RecoverPhase("rerender", &failure)
//	    binding.Rerender(props)
//	}()
func RecoverPhase(phase string, target **PhaseError) {
	r := recover()
	if r == nil {
		return
	}
	if derr, ok := r.(*DriftError); ok && derr.Kind == KindContract {
		panic(derr)
	}
	perr, ok := r.(*PhaseError)
	if !ok {
		perr = &PhaseError{Phase: phase, Recovered: r, StackTrace: CaptureStack()}
		if err, isErr := r.(error); isErr {
			perr.Err = err
		}
	}
	ReportPhaseError(perr)
	if target != nil {
		*target = perr
	}
}

// CaptureStack formats the caller's stack, one "function (file:line)" entry
// per line.
func CaptureStack() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	if n == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s (%s:%d)\n", f.Function, f.File, f.Line)
		if !more {
			return b.String()
		}
	}
}
