package entity

import "github.com/nerrad567/creality-bridge/internal/printer"

// Status sensor icons.
const (
	IconConnected    = "mdi:check-circle"
	IconError        = "mdi:alert-circle"
	IconDisconnected = "mdi:close-circle"
)

// StatusSensor reports the printer connection status.
type StatusSensor struct {
	entryID string
	device  DeviceInfo
	store   StateReader
}

// NewStatusSensor returns the connection status sensor for entryID.
func NewStatusSensor(entryID string, device DeviceInfo, store StateReader) *StatusSensor {
	return &StatusSensor{entryID: entryID, device: device, store: store}
}

func (s *StatusSensor) UniqueID() string   { return s.entryID + "_" + printer.StatusKey }
func (s *StatusSensor) Name() string       { return "Creality Connection Status" }
func (s *StatusSensor) Kind() Kind         { return KindSensor }
func (s *StatusSensor) Key() string        { return printer.StatusKey }
func (s *StatusSensor) Device() DeviceInfo { return s.device }

// State is the status string, DISCONNECTED when unset.
func (s *StatusSensor) State() (any, bool) {
	return s.status(), true
}

func (s *StatusSensor) status() string {
	v, ok := s.store.Get(printer.StatusKey)
	if !ok {
		return printer.StatusDisconnected
	}
	if str, isStr := v.(string); isStr {
		return str
	}
	return FormatState(v, true)
}

// Icon reflects the connection status.
func (s *StatusSensor) Icon() string {
	status := s.status()
	switch {
	case status == printer.StatusConnected:
		return IconConnected
	case printer.IsErrorStatus(status):
		return IconError
	default:
		return IconDisconnected
	}
}

// Sensor exposes one telemetry key.
type Sensor struct {
	entryID string
	key     string
	device  DeviceInfo
	store   StateReader
}

// NewSensor returns the sensor for key.
func NewSensor(entryID, key string, device DeviceInfo, store StateReader) *Sensor {
	return &Sensor{entryID: entryID, key: key, device: device, store: store}
}

func (s *Sensor) UniqueID() string   { return s.entryID + "_" + s.key }
func (s *Sensor) Name() string       { return "Creality " + s.key }
func (s *Sensor) Kind() Kind         { return KindSensor }
func (s *Sensor) Key() string        { return s.key }
func (s *Sensor) Icon() string       { return "" }
func (s *Sensor) Device() DeviceInfo { return s.device }

// State returns the store value, if any.
func (s *Sensor) State() (any, bool) {
	return s.store.Get(s.key)
}
