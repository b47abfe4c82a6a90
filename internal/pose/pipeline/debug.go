package pipeline

import (
	"io"
	"log"
)

// Leveled debug logging for the frame pipeline:
//
//   - ops: rare operator-facing events (start/stop, config changes, errors)
//   - diag: per-frame anomalies worth keeping while tuning (decode failures,
//     inference errors, unusual track churn)
//   - trace: per-frame firehose, off unless actively debugging
//
// All levels are disabled until SetLogWriters installs writers.
var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters installs the pipeline's leveled log writers. A nil writer
// disables that level.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger(ops)
	diagLogger = newLogger(diag)
	traceLogger = newLogger(trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[pipeline] ", log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...any) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

func diagf(format string, args ...any) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

func tracef(format string, args ...any) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
