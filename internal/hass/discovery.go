package hass

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/creality-bridge/internal/entity"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/creality-bridge/internal/printer"
)

// Payloads published on availability topics.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// availabilityModeAll marks an entity unavailable if any listed topic is offline.
const availabilityModeAll = "all"

// systemStatusTemplate extracts the status from the bridge's JSON LWT.
const systemStatusTemplate = "{{ value_json.status }}"

type availability struct {
	Topic         string `json:"topic"`
	ValueTemplate string `json:"value_template,omitempty"`
}

type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// discoveryDocument is the body of a Home Assistant MQTT discovery message.
type discoveryDocument struct {
	Name             string         `json:"name"`
	UniqueID         string         `json:"unique_id"`
	ObjectID         string         `json:"object_id"`
	StateTopic       string         `json:"state_topic"`
	Availability     []availability `json:"availability"`
	AvailabilityMode string         `json:"availability_mode"`
	Icon             string         `json:"icon,omitempty"`
	Device           device         `json:"device"`
	Origin           origin         `json:"origin"`
}

type origin struct {
	Name string `json:"name"`
}

func deviceBlock(info entity.DeviceInfo) device {
	ids := make([]string, 0, len(info.Identifiers))
	for _, pair := range info.Identifiers {
		ids = append(ids, pair[0]+"_"+pair[1])
	}
	return device{
		Identifiers:  ids,
		Name:         info.Name,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
	}
}

// buildDiscovery renders the discovery topic and document for a sensor.
// The connection status sensor only depends on the bridge being online so
// it keeps reporting while the printer is unreachable.
func buildDiscovery(topics mqtt.Topics, entryID string, e entity.Entity) (string, []byte, error) {
	avail := []availability{{
		Topic:         topics.SystemStatus(),
		ValueTemplate: systemStatusTemplate,
	}}
	if e.Key() != printer.StatusKey {
		avail = append(avail, availability{Topic: topics.EntryAvailability(entryID)})
	}

	doc := discoveryDocument{
		Name:             e.Name(),
		UniqueID:         e.UniqueID(),
		ObjectID:         mqtt.ObjectID(e.UniqueID()),
		StateTopic:       topics.SensorState(entryID, e.Key()),
		Availability:     avail,
		AvailabilityMode: availabilityModeAll,
		Icon:             e.Icon(),
		Device:           deviceBlock(e.Device()),
		Origin:           origin{Name: "creality-bridge"},
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("encoding discovery for %s: %w", e.UniqueID(), err)
	}
	return topics.DiscoveryConfig(string(e.Kind()), entryID, e.Key()), payload, nil
}

// availabilityFor maps a connection status to an availability payload.
func availabilityFor(status string) string {
	if status == printer.StatusConnected {
		return PayloadOnline
	}
	return PayloadOffline
}
