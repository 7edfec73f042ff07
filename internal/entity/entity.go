package entity

import (
	"fmt"

	"github.com/nerrad567/creality-bridge/internal/printer"
)

// Domain namespaces device identifiers.
const Domain = "creality_bridge"

// Kind is the entity platform type.
type Kind string

// Entity kinds.
const (
	KindSensor Kind = "sensor"
	KindCamera Kind = "camera"
)

// StateReader is the read side of printer.Store.
type StateReader interface {
	Get(key string) (any, bool)
	Keys() []string
}

var _ StateReader = (*printer.Store)(nil)

// Entity is a read-only view of part of a printer's state.
type Entity interface {
	UniqueID() string
	Name() string
	Kind() Kind
	// Key is the store key backing the entity, empty for the camera.
	Key() string
	// State returns the current value and whether one is present.
	State() (any, bool)
	Icon() string
	Device() DeviceInfo
}

// DeviceInfo groups a printer's entities under one device.
type DeviceInfo struct {
	Identifiers  [][2]string `json:"identifiers"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model"`
}

// NewDeviceInfo describes the printer behind entryID.
func NewDeviceInfo(entryID, host string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  [][2]string{{Domain, entryID}},
		Name:         "Creality Printer " + host,
		Manufacturer: "Creality",
		Model:        "Unknown Model",
	}
}

// View is the serialisable form of an entity.
type View struct {
	UniqueID     string     `json:"unique_id"`
	Name         string     `json:"name"`
	Kind         Kind       `json:"kind"`
	Key          string     `json:"key,omitempty"`
	State        any        `json:"state"`
	HasState     bool       `json:"has_state"`
	Icon         string     `json:"icon,omitempty"`
	StreamSource string     `json:"stream_source,omitempty"`
	Device       DeviceInfo `json:"device"`
}

// Describe renders e as a View.
func Describe(e Entity) View {
	state, ok := e.State()
	v := View{
		UniqueID: e.UniqueID(),
		Name:     e.Name(),
		Kind:     e.Kind(),
		Key:      e.Key(),
		State:    state,
		HasState: ok,
		Icon:     e.Icon(),
		Device:   e.Device(),
	}
	if cam, isCam := e.(*Camera); isCam {
		v.StreamSource = cam.StreamSource()
	}
	return v
}

// FormatState renders a state value as a plain string, the way it is
// published to MQTT. Absent states render as "unknown".
func FormatState(v any, ok bool) string {
	if !ok || v == nil {
		return "unknown"
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
