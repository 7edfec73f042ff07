package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/creality-bridge/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	// Printers report a few frames per second; millisecond timestamps keep
	// consecutive samples apart without nanosecond line bloat.
	writePrecision = time.Millisecond
)

// Logger receives asynchronous write failures.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// WriteStats counts telemetry points handed to the batch writer.
type WriteStats struct {
	Queued      uint64    `json:"queued"`
	Skipped     uint64    `json:"skipped"` // values with no numeric or boolean form
	WriteErrors uint64    `json:"write_errors"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
}

// Client writes printer telemetry to an InfluxDB v2 bucket.
//
// Writes are non-blocking and batched by the underlying write API;
// batch failures surface asynchronously and are logged and counted.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   Logger
	closed   atomic.Bool

	queued      atomic.Uint64
	skipped     atomic.Uint64
	writeErrors atomic.Uint64
	lastError   atomic.Pointer[writeFailure]
}

type writeFailure struct {
	msg string
	at  time.Time
}

// Connect pings the server and starts the batched write API for the
// configured org and bucket. logger may be nil.
func Connect(cfg config.InfluxDBConfig, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive here
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(time.Duration(flushInterval) * time.Second / time.Millisecond)).
		SetPrecision(writePrecision)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger,
	}
	go c.drainErrors()
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("ping: server not healthy")
	}
	return nil
}

// drainErrors consumes the write API's error channel until it is closed.
func (c *Client) drainErrors() {
	for err := range c.writeAPI.Errors() {
		c.logger.Error("InfluxDB batch write failed", "error", err)
		c.lastError.Store(&writeFailure{msg: err.Error(), at: time.Now()})
		c.writeErrors.Add(1)
	}
}

// Close flushes buffered points and releases the client. It is safe to
// call more than once.
func (c *Client) Close() error {
	if c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. Server reachability is
// checked by HealthCheck.
func (c *Client) IsConnected() bool {
	return c.client != nil && !c.closed.Load()
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// WriteStats returns the write counters.
func (c *Client) WriteStats() WriteStats {
	s := WriteStats{
		Queued:      c.queued.Load(),
		Skipped:     c.skipped.Load(),
		WriteErrors: c.writeErrors.Load(),
	}
	if f := c.lastError.Load(); f != nil {
		s.LastError = f.msg
		s.LastErrorAt = f.at
	}
	return s
}
