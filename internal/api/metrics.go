package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/creality-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/creality-bridge/internal/printer"
)

// writeStatsReporter is implemented by the InfluxDB client.
type writeStatsReporter interface {
	WriteStats() influxdb.WriteStats
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Outputs       OutputMetrics    `json:"outputs"`
	Printers      PrinterMetrics   `json:"printers"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// OutputMetrics reports the optional output connections. A nil field means
// the output is not configured.
type OutputMetrics struct {
	MQTTConnected     *bool                `json:"mqtt_connected,omitempty"`
	InfluxDBConnected *bool                `json:"influxdb_connected,omitempty"`
	InfluxDBWrites    *influxdb.WriteStats `json:"influxdb_writes,omitempty"`
}

// PrinterMetrics aggregates every loaded printer.
type PrinterMetrics struct {
	Total          int    `json:"total"`
	Connected      int    `json:"connected"`
	Errored        int    `json:"errored"`
	FramesReceived uint64 `json:"frames_received"`
	DecodeErrors   uint64 `json:"decode_errors"`
	UpdatesDropped uint64 `json:"updates_dropped"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns process, output and printer metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Printers: s.printerMetrics(),
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.mqtt != nil {
		connected := s.mqtt.IsConnected()
		metrics.Outputs.MQTTConnected = &connected
	}
	if s.influx != nil {
		connected := s.influx.IsConnected()
		metrics.Outputs.InfluxDBConnected = &connected
		if r, ok := s.influx.(writeStatsReporter); ok {
			stats := r.WriteStats()
			metrics.Outputs.InfluxDBWrites = &stats
		}
	}
	if s.db != nil {
		stats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			Idle:            stats.Idle,
			WaitCount:       stats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) printerMetrics() PrinterMetrics {
	var m PrinterMetrics
	for _, rt := range s.manager.Runtimes() {
		m.Total++
		stats := rt.Client.Stats()
		if stats.Connected {
			m.Connected++
		}
		if printer.IsErrorStatus(rt.Store.Status()) {
			m.Errored++
		}
		m.FramesReceived += stats.FramesReceived
		m.DecodeErrors += stats.DecodeErrors
		m.UpdatesDropped += rt.Bus.Dropped()
	}
	return m
}
