package printer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// defaultQueueSize bounds each subscriber's pending updates.
const defaultQueueSize = 64

// Update is published after every store mutation.
type Update struct {
	EntryID string
	Version uint64
	Time    time.Time

	// Keys carried by the triggering message. For status changes this is
	// just StatusKey.
	Keys []string
	// NewKeys were not present in the store before this update.
	NewKeys []string

	Status        string
	StatusChanged bool

	// Snapshot is the full map after the mutation. It is shared between
	// subscribers and must not be modified.
	Snapshot map[string]any
}

// Observer receives updates on its subscription's goroutine.
type Observer func(Update)

// Notifier is the publishing side of a Broadcaster.
type Notifier interface {
	Publish(u Update)
}

var _ Notifier = (*Broadcaster)(nil)

// Broadcaster fans updates for one printer out to its observers.
//
// Each subscriber owns a bounded queue drained by a dedicated goroutine,
// which gives FIFO delivery per subscriber. Publish never blocks: when a
// subscriber's queue is full the update is dropped for that subscriber.
type Broadcaster struct {
	entryID   string
	queueSize int

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool

	wg sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	published atomic.Uint64
	dropped   atomic.Uint64
}

type subscription struct {
	name     string
	fn       Observer
	queue    chan Update
	done     *closeOnce
	received atomic.Uint64
	dropped  atomic.Uint64
}

// SubscriberStats reports delivery counters for one subscriber.
type SubscriberStats struct {
	Name     string `json:"name"`
	Pending  int    `json:"pending"`
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
}

// NewBroadcaster creates a broadcaster for entryID. A queueSize of zero
// selects the default.
func NewBroadcaster(entryID string, queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Broadcaster{
		entryID:   entryID,
		queueSize: queueSize,
		subs:      make(map[uint64]*subscription),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for delivery diagnostics.
func (b *Broadcaster) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	defer b.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

func (b *Broadcaster) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Subscribe registers fn under a diagnostic name and returns a function
// that removes it. The returned function is safe to call more than once.
func (b *Broadcaster) Subscribe(name string, fn Observer) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil observer", ErrInvalidConfig)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBroadcasterClosed
	}
	b.nextID++
	id := b.nextID
	sub := &subscription{
		name:  name,
		fn:    fn,
		queue: make(chan Update, b.queueSize),
		done:  newCloseOnce(),
	}
	b.subs[id] = sub
	b.wg.Add(1)
	b.mu.Unlock()

	go b.deliver(sub)

	return func() { b.unsubscribe(id) }, nil
}

func (b *Broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		sub.done.Close()
	}
}

// Publish queues u for every subscriber without blocking.
func (b *Broadcaster) Publish(u Update) {
	if u.EntryID == "" {
		u.EntryID = b.entryID
	}
	if u.Time.IsZero() {
		u.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	b.published.Add(1)
	for _, sub := range b.subs {
		select {
		case sub.queue <- u:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			b.getLogger().Warn("subscriber queue full, dropping update",
				"entry_id", b.entryID, "subscriber", sub.name, "version", u.Version)
		}
	}
}

// deliver drains one subscriber's queue until it is unsubscribed or the
// broadcaster closes.
func (b *Broadcaster) deliver(sub *subscription) {
	defer b.wg.Done()

	for {
		select {
		case <-sub.done.Done():
			return
		case u := <-sub.queue:
			b.invoke(sub, u)
		}
	}
}

func (b *Broadcaster) invoke(sub *subscription, u Update) {
	defer func() {
		if r := recover(); r != nil {
			b.getLogger().Error("observer panic",
				"entry_id", b.entryID, "subscriber", sub.name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	sub.received.Add(1)
	sub.fn(u)
}

// Close stops every delivery goroutine and waits for in-flight callbacks.
// Pending updates are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.done.Close()
	}
	b.wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of updates dropped across subscribers.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Published returns the number of updates accepted by Publish.
func (b *Broadcaster) Published() uint64 {
	return b.published.Load()
}

// Subscribers returns per-subscriber delivery counters.
func (b *Broadcaster) Subscribers() []SubscriberStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]SubscriberStats, 0, len(b.subs))
	for _, sub := range b.subs {
		out = append(out, SubscriberStats{
			Name:     sub.name,
			Pending:  len(sub.queue),
			Received: sub.received.Load(),
			Dropped:  sub.dropped.Load(),
		})
	}
	return out
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}
