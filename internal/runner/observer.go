package runner

// Level classifies messages delivered to a LogFunc.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// LogFunc receives job narration. It is invoked on the job's worker
// goroutine; callers that render elsewhere must hand the message off
// themselves (a channel, a UI queue).
type LogFunc func(msg string, level Level)

// ProgressFunc receives raw progress counts after each file is fully
// written. written increases by exactly one per call; total is constant
// for the lifetime of a job. Percentage derivation is the caller's
// concern, which keeps the core format-agnostic.
type ProgressFunc func(written, total int)
