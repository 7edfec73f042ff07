package integration

import (
	"fmt"
	"net"
	"strings"

	"github.com/nerrad567/creality-bridge/internal/printer"
)

const maxNameLength = 100

// Normalize trims fields and applies the default port.
func Normalize(e *Entry) {
	e.IP = strings.TrimSpace(e.IP)
	e.Name = strings.TrimSpace(e.Name)
	if e.Port == 0 {
		e.Port = printer.DefaultPort
	}
	if e.Source == "" {
		e.Source = SourceAPI
	}
}

// Validate checks an entry after Normalize.
func Validate(e Entry) error {
	if e.IP == "" {
		return fmt.Errorf("%w: ip is required", ErrInvalidEntry)
	}
	if strings.ContainsAny(e.IP, "/ ") {
		return fmt.Errorf("%w: ip %q is not a host", ErrInvalidEntry, e.IP)
	}
	if strings.Contains(e.IP, ":") && net.ParseIP(e.IP) == nil {
		return fmt.Errorf("%w: ip %q must not include a port", ErrInvalidEntry, e.IP)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEntry, e.Port)
	}
	if len(e.Name) > maxNameLength {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidEntry, maxNameLength)
	}
	switch e.Source {
	case SourceConfig, SourceAPI:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidEntry, e.Source)
	}
	return nil
}
