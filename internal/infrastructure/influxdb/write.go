package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementMetrics = "printer_metrics"
	MeasurementStatus  = "printer_status"
)

// Field names. Numbers and booleans use separate fields so a key whose
// type changes between firmware versions never causes a field conflict.
const (
	fieldValue     = "value"
	fieldFlag      = "flag"
	fieldStatus    = "status"
	fieldConnected = "connected"
)

// metricField maps a decoded telemetry value to its field. Strings and
// nested values have no time-series form.
func metricField(value any) (string, any, bool) {
	switch v := value.(type) {
	case float64:
		return fieldValue, v, true
	case int64:
		return fieldValue, float64(v), true
	case int:
		return fieldValue, float64(v), true
	case bool:
		return fieldFlag, v, true
	default:
		return "", nil, false
	}
}

// WritePrinterMetric queues one telemetry value tagged by entry and key.
// It reports false when the value was skipped or the client is closed.
func (c *Client) WritePrinterMetric(entryID, key string, value any, ts time.Time) bool {
	if !c.IsConnected() {
		return false
	}
	field, v, ok := metricField(value)
	if !ok {
		c.skipped.Add(1)
		return false
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementMetrics,
		map[string]string{"entry_id": entryID, "key": key},
		map[string]any{field: v},
		ts,
	))
	c.queued.Add(1)
	return true
}

// WritePrinterStatus queues a connection status transition.
func (c *Client) WritePrinterStatus(entryID, status string, connected bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementStatus,
		map[string]string{"entry_id": entryID},
		map[string]any{fieldStatus: status, fieldConnected: connected},
		ts,
	))
	c.queued.Add(1)
}
