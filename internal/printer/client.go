package printer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Default connection settings.
const (
	// DefaultPort is the printer's WebSocket telemetry port.
	DefaultPort = 9999

	// defaultHandshakeTimeout bounds the WebSocket opening handshake.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultReadLimit caps a single inbound frame.
	defaultReadLimit = 1 << 20

	// pingWriteTimeout bounds a single keepalive ping write.
	pingWriteTimeout = 5 * time.Second
)

// ClientConfig configures a printer connection.
type ClientConfig struct {
	// EntryID scopes notifications and log lines.
	EntryID string

	// Host is the printer's IP address or hostname. Required.
	Host string

	// Port defaults to DefaultPort.
	Port int

	// HandshakeTimeout defaults to 10 seconds.
	HandshakeTimeout time.Duration

	// PingInterval enables WebSocket keepalive pings when positive. A pong
	// must arrive within PingInterval+PongTimeout or the connection is
	// treated as lost. Zero disables keepalives.
	PingInterval time.Duration
	PongTimeout  time.Duration

	// Reconnect controls the delay between attempts.
	Reconnect ReconnectPolicy

	// ReadLimit caps inbound frame size in bytes. Defaults to 1 MiB.
	ReadLimit int64
}

// Stats holds operational counters for one client.
type Stats struct {
	URL              string
	Connected        bool
	Status           string
	FramesReceived   uint64
	FramesDropped    uint64 // binary or non-object frames
	DecodeErrors     uint64
	Connects         uint64
	ConnectionErrors uint64
	LastActivity     time.Time
	LastConnected    time.Time
}

// Client keeps a WebSocket connection to one printer open and feeds its
// frames into a Store.
//
// Thread Safety:
//   - Run must be called from exactly one goroutine.
//   - Stop, IsConnected and Stats are safe from any goroutine.
//
// Reconnection:
//   - Any transport failure sets the status to "ERROR: <reason>", notifies,
//     waits one reconnect delay and tries again, for as long as the client
//     is not stopped.
type Client struct {
	cfg    ClientConfig
	url    string
	dialer *websocket.Dialer

	store    *Store
	notifier Notifier

	// Live connection, closed by Stop to unblock the read loop. dialing
	// holds the raw socket while the opening handshake is in flight.
	connMu    sync.Mutex
	conn      *websocket.Conn
	dialing   net.Conn
	connected atomic.Bool

	// Lifecycle
	stop    *closeOnce
	runMu   sync.Mutex
	runDone chan struct{}

	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	framesReceived   atomic.Uint64
	framesDropped    atomic.Uint64
	decodeErrors     atomic.Uint64
	connects         atomic.Uint64
	connectionErrors atomic.Uint64
	lastActivity     atomic.Int64 // UnixNano
	lastConnected    atomic.Int64 // UnixNano
}

// NewClient validates cfg and returns a client that writes into store and
// publishes through notifier.
func NewClient(cfg ClientConfig, store *Store, notifier Notifier) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.PingInterval < 0 || cfg.PongTimeout < 0 {
		return nil, fmt.Errorf("%w: negative keepalive interval", ErrInvalidConfig)
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if err := cfg.Reconnect.Validate(); err != nil {
		return nil, err
	}
	if store == nil || notifier == nil {
		return nil, fmt.Errorf("%w: store and notifier are required", ErrInvalidConfig)
	}

	c := &Client{
		cfg:      cfg,
		url:      BuildURL(cfg.Host, cfg.Port),
		store:    store,
		notifier: notifier,
		stop:     newCloseOnce(),
		logger:   noopLogger{},
	}
	c.dialer = &websocket.Dialer{
		Proxy:            nil,
		HandshakeTimeout: cfg.HandshakeTimeout,
		NetDialContext:   c.netDial,
	}
	return c, nil
}

// netDial opens the TCP connection for the handshake and keeps a handle on
// it so Stop can abort a printer that never answers the upgrade.
func (c *Client) netDial(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.isStopped() {
		raw.Close()
		return nil, ErrStopped
	}
	c.dialing = raw
	return raw, nil
}

// BuildURL returns the telemetry endpoint for a printer.
func BuildURL(host string, port int) string {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port))}
	return u.String()
}

// SetLogger sets the logger for connection diagnostics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// URL returns the WebSocket URL this client dials.
func (c *Client) URL() string {
	return c.url
}

// Run connects and reconnects until Stop is called or ctx is cancelled.
// It returns nil on a cooperative stop.
func (c *Client) Run(ctx context.Context) error {
	c.runMu.Lock()
	if c.isStopped() {
		c.runMu.Unlock()
		return nil
	}
	if c.runDone != nil {
		c.runMu.Unlock()
		return ErrAlreadyRunning
	}
	done := make(chan struct{})
	c.runDone = done
	c.runMu.Unlock()
	defer close(done)

	// Cancelling ctx is a stop. Stop waits for Run, so call it asynchronously.
	stopOnCancel := context.AfterFunc(ctx, func() { c.signalStop() })
	defer stopOnCancel()

	c.getLogger().Debug("printer client starting", "entry_id", c.cfg.EntryID, "url", c.url)

	b := newBackoff(c.cfg.Reconnect)
	for {
		if c.isStopped() {
			return nil
		}

		err := c.session(ctx, b)
		if c.isStopped() {
			// Errors caused by Stop closing the socket are not recorded.
			return nil
		}

		c.recordFailure(err)

		delay := b.Next()
		c.getLogger().Debug("reconnecting", "entry_id", c.cfg.EntryID, "delay", delay.String())
		select {
		case <-c.stop.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session dials once and reads until the connection ends. A nil return
// means the printer closed the connection cleanly.
func (c *Client) session(ctx context.Context, b *backoff) error {
	dialCtx, cancelDial := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.stop.Done():
			cancelDial()
		case <-dialCtx.Done():
		}
	}()

	conn, resp, err := c.dialer.DialContext(dialCtx, c.url, nil)
	cancelDial()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.connMu.Lock()
	c.dialing = nil
	c.connMu.Unlock()

	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.connMu.Lock()
	if c.isStopped() {
		c.connMu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connMu.Unlock()

	defer c.dropConnection(conn)

	b.Reset()
	c.connected.Store(true)
	c.connects.Add(1)
	c.lastConnected.Store(time.Now().UnixNano())
	c.setStatus(StatusConnected)
	c.getLogger().Info("connected to printer", "entry_id", c.cfg.EntryID, "url", c.url)

	return c.readLoop(conn)
}

// readLoop processes frames until a read fails.
func (c *Client) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(c.cfg.ReadLimit)

	if c.cfg.PingInterval > 0 {
		wait := c.cfg.PingInterval + c.cfg.PongTimeout
		if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wait))
		})

		pingDone := make(chan struct{})
		defer close(pingDone)
		go c.pingLoop(conn, pingDone)
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.getLogger().Info("printer closed connection", "entry_id", c.cfg.EntryID)
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		c.lastActivity.Store(time.Now().UnixNano())
		if c.cfg.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + c.cfg.PongTimeout))
		}

		c.handleFrame(messageType, data)
	}
}

// pingLoop sends keepalive pings until done is closed or a write fails.
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteTimeout)); err != nil {
				c.getLogger().Debug("ping failed", "entry_id", c.cfg.EntryID, "error", err)
				return
			}
		}
	}
}

// handleFrame decodes one frame and merges it into the store.
func (c *Client) handleFrame(messageType int, data []byte) {
	values, err := Decode(messageType, data)
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedJSON):
		c.decodeErrors.Add(1)
		c.getLogger().Warn("discarding malformed frame",
			"entry_id", c.cfg.EntryID, "error", err, "size", len(data))
		return
	default:
		c.framesDropped.Add(1)
		c.getLogger().Debug("discarding frame", "entry_id", c.cfg.EntryID, "reason", err)
		return
	}

	c.framesReceived.Add(1)
	res := c.store.Merge(values)
	snapshot, _ := c.store.Snapshot()

	status, _ := snapshot[StatusKey].(string)
	c.notifier.Publish(Update{
		EntryID:  c.cfg.EntryID,
		Version:  res.Version,
		Keys:     res.Keys,
		NewKeys:  res.NewKeys,
		Status:   status,
		Snapshot: snapshot,
	})
}

// recordFailure reports the end of a session or a failed dial.
func (c *Client) recordFailure(err error) {
	if err == nil {
		c.setStatus(StatusDisconnected)
		return
	}
	c.connectionErrors.Add(1)
	c.getLogger().Error("printer connection error", "entry_id", c.cfg.EntryID, "url", c.url, "error", err)
	c.setStatus(ErrorStatus(err))
}

// setStatus writes the status key and notifies observers.
func (c *Client) setStatus(status string) {
	changed, version := c.store.SetStatus(status)
	snapshot, _ := c.store.Snapshot()
	c.notifier.Publish(Update{
		EntryID:       c.cfg.EntryID,
		Version:       version,
		Keys:          []string{StatusKey},
		Status:        status,
		StatusChanged: changed,
		Snapshot:      snapshot,
	})
}

func (c *Client) dropConnection(conn *websocket.Conn) {
	c.connected.Store(false)
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	conn.Close()
}

// signalStop raises the stop flag and closes the live connection, or the
// socket of a handshake in progress, so a blocked read returns.
func (c *Client) signalStop() {
	c.stop.Close()

	c.connMu.Lock()
	if c.dialing != nil {
		c.dialing.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()
}

// Stop ends Run and waits for it to return. Safe to call multiple times
// and before Run. The connection status keeps its last value.
func (c *Client) Stop() {
	c.signalStop()

	c.runMu.Lock()
	done := c.runDone
	c.runMu.Unlock()

	if done != nil {
		<-done
	}
	c.getLogger().Debug("printer client stopped", "entry_id", c.cfg.EntryID)
}

func (c *Client) isStopped() bool {
	select {
	case <-c.stop.Done():
		return true
	default:
		return false
	}
}

// IsConnected reports whether a WebSocket session is currently open.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	return Stats{
		URL:              c.url,
		Connected:        c.connected.Load(),
		Status:           c.store.Status(),
		FramesReceived:   c.framesReceived.Load(),
		FramesDropped:    c.framesDropped.Load(),
		DecodeErrors:     c.decodeErrors.Load(),
		Connects:         c.connects.Load(),
		ConnectionErrors: c.connectionErrors.Load(),
		LastActivity:     unixNanoTime(c.lastActivity.Load()),
		LastConnected:    unixNanoTime(c.lastConnected.Load()),
	}
}

func unixNanoTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
