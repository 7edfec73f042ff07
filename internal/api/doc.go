// Package api implements the HTTP REST API and WebSocket server for the bridge.
//
// This package provides:
//   - REST endpoints to list, add and remove printer entries
//   - Read-only views of each printer's state, entities, camera and history
//   - A WebSocket hub that relays every printer update to subscribed clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - JWT bearer authentication on mutating routes
//
// # Architecture
//
// The server sits beside the MQTT publisher as a second consumer of the
// integration runtimes. Entry changes go through the integration manager,
// which sets up or tears down the printer connection. The Hub is registered
// as an integration sink so it observes every runtime's update stream.
//
// # Security
//
// When security.jwt.secret is set, POST and DELETE on /entries require an
// HS256 bearer token signed with that secret. Reads and the WebSocket stream
// stay open so dashboards on the local network can use them unauthenticated.
// With no secret configured the API is fully open.
package api
