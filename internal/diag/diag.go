// Package diag implements the engine's diagnostic sink: a synchronous,
// lock-free receiver of structured severity/origin/text/errno records,
// with a tunable abort threshold that the rest of the engine consults to
// decide whether to unwind the current operation.
package diag

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/open-edge-platform/xorriso-engine/internal/utils/logger"
)

// Severity is the engine's severity lattice: DEBUG < UPDATE < NOTE <
// WARNING < SORRY < FAILURE < FATAL < ABORT.
type Severity int

const (
	DEBUG Severity = iota
	UPDATE
	NOTE
	WARNING
	SORRY
	FAILURE
	FATAL
	ABORT
)

func (s Severity) String() string {
	switch s {
	case DEBUG:
		return "DEBUG"
	case UPDATE:
		return "UPDATE"
	case NOTE:
		return "NOTE"
	case WARNING:
		return "WARNING"
	case SORRY:
		return "SORRY"
	case FAILURE:
		return "FAILURE"
	case FATAL:
		return "FATAL"
	case ABORT:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// Record is one structured diagnostic message.
type Record struct {
	Severity Severity
	Origin   string
	Text     string
	Errno    int
}

// Sink receives Records. It is deliberately synchronous and allocation-light;
// any buffering is the caller's concern.
type Sink struct {
	AbortThreshold Severity
	log            *zap.SugaredLogger
}

// NewSink builds a Sink with the given abort threshold (FAILURE is the
// engine-wide default: anything at or above FAILURE requests an unwind).
func NewSink(abortThreshold Severity) *Sink {
	return &Sink{AbortThreshold: abortThreshold, log: logger.Logger()}
}

// Record mirrors the message to the process logger at the matching level
// and reports whether the caller should treat this as an abort request.
func (s *Sink) Record(severity Severity, origin, text string, errno int) (shouldAbort bool) {
	msg := text
	if errno != 0 {
		msg = fmt.Sprintf("%s (errno %d)", text, errno)
	}
	switch {
	case severity >= FATAL:
		s.log.Errorf("[%s] %s: %s", severity, origin, msg)
	case severity >= FAILURE:
		s.log.Errorf("[%s] %s: %s", severity, origin, msg)
	case severity >= WARNING:
		s.log.Warnf("[%s] %s: %s", severity, origin, msg)
	case severity >= NOTE:
		s.log.Infof("[%s] %s: %s", severity, origin, msg)
	default:
		s.log.Debugf("[%s] %s: %s", severity, origin, msg)
	}
	return severity >= s.AbortThreshold
}

// WithAbortThreshold temporarily lowers (or raises) the abort threshold,
// returning a restore function. internal/readopts uses it to tolerate
// SORRY-level trouble for the duration of a best-effort image load.
func (s *Sink) WithAbortThreshold(t Severity) (restore func()) {
	prev := s.AbortThreshold
	s.AbortThreshold = t
	return func() { s.AbortThreshold = prev }
}
