package entity

import (
	"context"
	"net"
)

// CameraCapabilityKey is the store key that advertises camera support.
const CameraCapabilityKey = "webrtcSupport"

// cameraStreamPort is where the printer serves its camera stream.
const cameraStreamPort = "8000"

// CameraSupported reports whether a webrtcSupport value advertises a camera.
// Accepted values are 1, "1", true and "true".
func CameraSupported(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val == 1
	case int:
		return val == 1
	case float64:
		return val == 1
	case string:
		return val == "1" || val == "true"
	default:
		return false
	}
}

// Camera exposes the printer's camera stream.
type Camera struct {
	entryID string
	host    string
	device  DeviceInfo
}

// NewCamera returns the camera entity for the printer at host.
func NewCamera(entryID, host string, device DeviceInfo) *Camera {
	return &Camera{entryID: entryID, host: host, device: device}
}

func (c *Camera) UniqueID() string   { return c.entryID + "_camera" }
func (c *Camera) Name() string       { return "Creality Camera " + c.host }
func (c *Camera) Kind() Kind         { return KindCamera }
func (c *Camera) Key() string        { return "" }
func (c *Camera) Icon() string       { return "mdi:cctv" }
func (c *Camera) Device() DeviceInfo { return c.device }

// State is always "idle"; the camera has no recording state.
func (c *Camera) State() (any, bool) { return "idle", true }

// StreamSource returns the stream URL on the printer.
func (c *Camera) StreamSource() string {
	return "http://" + net.JoinHostPort(c.host, cameraStreamPort)
}

// Snapshot is not supported by the printer.
func (c *Camera) Snapshot(context.Context) ([]byte, error) {
	return nil, ErrSnapshotUnsupported
}
