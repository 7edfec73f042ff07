package integration

import (
	"time"

	"github.com/nerrad567/creality-bridge/internal/printer"
)

// Entry sources.
const (
	SourceConfig = "config"
	SourceAPI    = "api"
)

// Entry is one configured printer.
type Entry struct {
	ID   string `json:"id"`
	IP   string `json:"ip"`
	Port int    `json:"port"`

	// Password is accepted and stored but not used by the telemetry feed.
	Password string `json:"-"`

	Name      string    `json:"name,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns Name, or a name derived from the IP.
func (e Entry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return "Creality Printer " + e.IP
}

// URL returns the printer's telemetry endpoint.
func (e Entry) URL() string {
	port := e.Port
	if port == 0 {
		port = printer.DefaultPort
	}
	return printer.BuildURL(e.IP, port)
}
