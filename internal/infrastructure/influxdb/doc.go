// Package influxdb provides InfluxDB connectivity for the bridge.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, printer metric writing, and health monitoring.
//
// # Data Layout
//
//	printer_metrics,entry_id=<id>,key=<telemetry key> value=<float>|flag=<bool>
//	printer_status,entry_id=<id> status="CONNECTED",connected=true
//
// Numeric and boolean values use separate fields so a key whose type
// changes never causes a field type conflict.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePrinterMetric("01J9...", "nozzleTemp", 215.3, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking and batched according to batch_size and
// flush_interval; asynchronous failures are logged and counted in
// WriteStats. Timestamps are written at millisecond precision.
package influxdb
