// Package printer maintains a live telemetry view of one Creality printer.
//
// A Client dials the printer's WebSocket feed (ws://<ip>:<port>), decodes
// each JSON frame and merges it into a Store. After every mutation it
// publishes an Update through a Broadcaster so that observers (entity
// adapters, MQTT publishing, telemetry sinks) can refresh.
//
// The printer pushes flat JSON objects whose values are often numbers
// encoded as strings. Decode coerces those strings to int64 or float64
// before they reach the store.
//
// Connection health is reported through the reserved store key
// "connection_status":
//
//	DISCONNECTED        before the first connection, or after a clean close
//	CONNECTED           WebSocket handshake completed
//	ERROR: <reason>     last attempt failed; a reconnect is scheduled
//
// Threading:
//   - Client.Run is the only writer of its Store.
//   - Store reads are safe from any goroutine.
//   - Each Broadcaster subscriber has its own queue and goroutine, so a
//     slow observer never stalls the connection loop.
//
// Usage:
//
//	store := printer.NewStore()
//	bus := printer.NewBroadcaster(entryID, 0)
//	client, err := printer.NewClient(printer.ClientConfig{
//	    EntryID: entryID,
//	    Host:    "192.168.1.50",
//	}, store, bus)
//	go client.Run(ctx)
//	defer client.Stop()
package printer
