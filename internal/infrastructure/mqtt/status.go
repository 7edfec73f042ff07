package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bridge status values on creality/system/status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Reasons attached to offline status documents.
const (
	ReasonShutdown   = "graceful_shutdown"
	ReasonUnexpected = "unexpected_disconnect"
)

// BridgeStatus is the retained document on creality/system/status.
// Home Assistant reads Status through the availability template; the rest
// describes the bridge for dashboards.
type BridgeStatus struct {
	Status            string `json:"status"`
	Version           string `json:"version,omitempty"`
	ClientID          string `json:"client_id"`
	Printers          *int   `json:"printers,omitempty"`
	PrintersConnected *int   `json:"printers_connected,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Timestamp         string `json:"timestamp"`
}

// PublishStatus publishes the retained online document with current
// printer counts. Call it when the set of printers changes.
func (c *Client) PublishStatus() error {
	return c.Publish(Topics{}.SystemStatus(), []byte(c.statusDocument(StatusOnline, "")), byte(c.cfg.QoS), true)
}

// statusDocument builds a status payload. Printer counts are only known
// while running, so the will and offline documents carry none.
func (c *Client) statusDocument(status, reason string) string {
	doc := BridgeStatus{
		Status:    status,
		Version:   c.version,
		ClientID:  c.cfg.Broker.ClientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if status == StatusOnline && c.printers != nil {
		loaded, connected := c.printers()
		doc.Printers = &loaded
		doc.PrintersConnected = &connected
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Sprintf(`{"status":%q}`, status)
	}
	return string(data)
}
