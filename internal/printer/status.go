package printer

import "strings"

// StatusKey is the reserved store key holding the connection status.
const StatusKey = "connection_status"

// Connection status values.
const (
	StatusDisconnected = "DISCONNECTED"
	StatusConnected    = "CONNECTED"

	errorStatusPrefix = "ERROR"
)

// ErrorStatus formats a transport failure as a connection status.
func ErrorStatus(err error) string {
	if err == nil {
		return errorStatusPrefix + ": unknown error"
	}
	return errorStatusPrefix + ": " + err.Error()
}

// IsErrorStatus reports whether status describes a failed connection.
func IsErrorStatus(status string) bool {
	return strings.HasPrefix(status, errorStatusPrefix)
}
