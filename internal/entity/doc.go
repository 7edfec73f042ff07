// Package entity exposes a printer's store as read-only entities.
//
// Every printer gets a connection status sensor, one sensor per telemetry
// key and, when the printer reports webrtcSupport, a camera. Entities hold
// no state of their own; they read the printer.Store on demand.
//
// A Platform owns the entity set for one printer. It subscribes to the
// printer's Broadcaster and, on every update, tells its Listeners which
// entities to refresh. In lazy discovery mode it also creates entities for
// keys that appear after setup. Entities are never removed while the
// printer is configured.
package entity
