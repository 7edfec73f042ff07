// Package integration manages configured printers ("entries") and their
// runtime wiring.
//
// An Entry is the persisted configuration of one printer. Entries are
// unique by IP address. When an entry is set up, the Manager builds its
// Runtime: a printer.Store, a printer.Broadcaster, a printer.Client running
// in its own goroutine and an entity.Platform subscribed to the
// broadcaster. Sinks (MQTT publishing, the WebSocket hub, telemetry) attach
// to each runtime as it is created and detach when it is unloaded.
//
// Entries come from two places: the printers section of the configuration
// file, seeded into the repository on Start, and the HTTP API.
package integration
