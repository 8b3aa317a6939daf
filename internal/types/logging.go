package types

// LogLevel is the configured verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// RunMode is the process role selected at deploy time.
type RunMode string

const (
	ModeLocal  RunMode = "local"
	ModeAPI    RunMode = "api"
	ModeWorker RunMode = "worker"
)
