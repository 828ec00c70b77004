package constants

// Status codes used in command responses and writable property acks.
const (
	StatusSuccess       = 200
	StatusBadRequest    = 400
	StatusNotFound      = 404
	StatusInternalError = 500
)

// Command names
const (
	CommandGetMaxMinReport = "getMaxMinReport"
	CommandReboot          = "reboot"
)
