package constants

// Middleware names
const (
	TRACE_MIDDLEWARE = "trace"
)
