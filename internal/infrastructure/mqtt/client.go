package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/creality-bridge/internal/infrastructure/config"
)

// newPahoClient constructs the underlying paho client. Tests replace it
// with a fake so no broker is needed.
var newPahoClient = pahomqtt.NewClient

// Logger is the subset of logging.Logger the client writes to.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PrinterCounter reports how many printer entries are loaded and how many
// of them currently hold a telemetry connection.
type PrinterCounter func() (loaded, connected int)

// Option customises Connect.
type Option func(*Client)

// WithVersion stamps the bridge version into status payloads.
func WithVersion(version string) Option {
	return func(c *Client) { c.version = version }
}

// WithPrinterCounter adds printer counts to the online status payload.
func WithPrinterCounter(fn PrinterCounter) Option {
	return func(c *Client) { c.printers = fn }
}

// WithLogger sets the connection and handler logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is the bridge's connection to the MQTT broker.
//
// It owns the bridge status topic: a retained online document carrying the
// bridge version and printer counts, replaced by the broker-held will when
// the bridge vanishes. Subscriptions are re-established and reconnect hooks
// run every time paho restores a lost session, so entry availability and
// state can be re-sent.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	cfg     config.MQTTConfig
	version string
	logger  Logger

	printers PrinterCounter

	connected atomic.Bool
	// sessions counts successful connects; hooks run from the second on.
	sessions atomic.Uint64

	subMu         sync.Mutex
	subscriptions map[string]subscription

	hookMu         sync.Mutex
	reconnectHooks []func()
}

// Connect dials the broker and publishes the bridge's online status.
//
// The will on creality/system/status is registered before connecting so
// Home Assistant marks every printer entity unavailable if the bridge
// process dies.
func Connect(cfg config.MQTTConfig, options ...Option) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		logger:        noopLogger{},
		subscriptions: make(map[string]subscription),
	}
	for _, opt := range options {
		opt(c)
	}

	opts := buildClientOptions(cfg)
	opts.SetWill(Topics{}.SystemStatus(), c.statusDocument(StatusOffline, ReasonUnexpected), lwtQoS, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logger.Warn("MQTT reconnecting", "broker", brokerURL(cfg))
	})

	c.client = newPahoClient(opts)
	if err := await(c.client.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The connect handler runs asynchronously; publishing is allowed as
	// soon as the connect token completes.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	n := c.sessions.Add(1)

	c.restoreSubscriptions()
	if err := c.PublishStatus(); err != nil {
		c.logger.Warn("publishing bridge status failed", "error", err)
	}

	if n == 1 {
		return
	}
	c.logger.Info("MQTT reconnected", "broker", brokerURL(c.cfg), "session", n)
	c.hookMu.Lock()
	hooks := append([]func(){}, c.reconnectHooks...)
	c.hookMu.Unlock()
	for _, hook := range hooks {
		hook()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)
	c.logger.Warn("MQTT connection lost", "broker", brokerURL(c.cfg), "error", err)
}

// OnReconnect registers fn to run after paho restores a lost session.
// Messages published while disconnected are dropped, so outputs use this
// to re-send their retained topics.
func (c *Client) OnReconnect(fn func()) {
	if fn == nil {
		return
	}
	c.hookMu.Lock()
	c.reconnectHooks = append(c.reconnectHooks, fn)
	c.hookMu.Unlock()
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			c.statusDocument(StatusOffline, ReasonShutdown))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck verifies the broker connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker session is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}
