// Package telemetry records printer updates outside the live store.
//
// Recorder is an integration sink that subscribes to each entry's
// broadcaster and writes:
//   - numeric and boolean telemetry values plus connection status
//     transitions to InfluxDB
//   - full snapshots to the SQLite state_history table, on every status
//     change and at most once per history interval otherwise
//
// History survives restarts and is served by the HTTP API even when no
// time-series database is configured.
package telemetry
