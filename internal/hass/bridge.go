package hass

import (
	"fmt"
	"sync"

	"github.com/nerrad567/creality-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/creality-bridge/internal/integration"
)

// Bridge attaches a Publisher to every entry runtime.
type Bridge struct {
	client MQTTClient
	opts   Options
	logger *logging.Logger

	mu         sync.Mutex
	publishers map[string]*Publisher
}

var _ integration.Sink = (*Bridge)(nil)

// NewBridge creates the Home Assistant sink.
func NewBridge(client MQTTClient, opts Options, logger *logging.Logger) (*Bridge, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bridge{
		client:     client,
		opts:       opts,
		logger:     logger.With("component", "hass"),
		publishers: make(map[string]*Publisher),
	}, nil
}

// Name identifies the sink in logs.
func (b *Bridge) Name() string { return "hass" }

// Attach registers a Publisher as a listener on the runtime's platform.
func (b *Bridge) Attach(rt *integration.Runtime) (integration.DetachFunc, error) {
	id := rt.Entry.ID

	b.mu.Lock()
	if _, exists := b.publishers[id]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrEntryAttached, id)
	}
	pub := NewPublisher(b.client, b.opts, id, rt.Store.Status, b.logger.With("entry_id", id))
	b.publishers[id] = pub
	b.mu.Unlock()

	rt.Platform.AddListener(pub)

	return func(removed bool) {
		pub.Teardown(removed)
		b.mu.Lock()
		delete(b.publishers, id)
		b.mu.Unlock()
	}, nil
}

// WatchHomeAssistant subscribes to Home Assistant's birth topic and
// republishes everything when it comes back online.
func (b *Bridge) WatchHomeAssistant() error {
	if !b.opts.Discovery {
		return nil
	}
	topic := mqtt.Topics{DiscoveryPrefix: b.opts.DiscoveryPrefix}.DiscoveryStatus()
	if err := b.client.Subscribe(topic, 1, b.handleBirth); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.logger.Info("watching home assistant status", "topic", topic)
	return nil
}

func (b *Bridge) handleBirth(_ string, payload []byte) error {
	if string(payload) != PayloadOnline {
		return nil
	}
	b.logger.Info("home assistant online, republishing")
	b.RepublishAll()
	return nil
}

// RepublishAll re-sends discovery, availability and state for every
// attached entry. It runs on Home Assistant's birth message and after the
// broker session is restored, since publishes made while disconnected
// were dropped.
func (b *Bridge) RepublishAll() {
	pubs := b.Publishers()
	for _, p := range pubs {
		p.Republish()
	}
	b.logger.Debug("republished entries", "entries", len(pubs))
}

// Publishers returns the attached publishers.
func (b *Bridge) Publishers() []*Publisher {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Publisher, 0, len(b.publishers))
	for _, p := range b.publishers {
		out = append(out, p)
	}
	return out
}
