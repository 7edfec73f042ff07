package hass

import (
	"encoding/json"
	"sync"

	"github.com/nerrad567/creality-bridge/internal/entity"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/creality-bridge/internal/printer"
)

// MQTTClient is the subset of *mqtt.Client used by this package.
type MQTTClient interface {
	PublishRetained(topic string, payload []byte) error
	ClearRetained(topic string) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

var _ MQTTClient = (*mqtt.Client)(nil)

// Options control what a Publisher sends.
type Options struct {
	// Discovery enables Home Assistant discovery documents.
	Discovery bool
	// DiscoveryPrefix is the Home Assistant discovery prefix.
	DiscoveryPrefix string
}

// Publisher mirrors one entry's entities to MQTT. It implements
// entity.Listener.
type Publisher struct {
	client  MQTTClient
	topics  mqtt.Topics
	opts    Options
	entryID string
	status  func() string
	logger  printer.Logger

	mu           sync.Mutex
	entities     map[string]entity.Entity
	order        []string
	lastState    map[string]string
	availability string
	torn         bool
}

var _ entity.Listener = (*Publisher)(nil)

// NewPublisher creates a publisher for entryID. status reports the
// entry's current connection status and is read when the first entities
// arrive, before any update has been seen.
func NewPublisher(client MQTTClient, opts Options, entryID string, status func() string, logger printer.Logger) *Publisher {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Publisher{
		client:    client,
		topics:    mqtt.Topics{DiscoveryPrefix: opts.DiscoveryPrefix},
		opts:      opts,
		entryID:   entryID,
		status:    status,
		logger:    logger,
		entities:  make(map[string]entity.Entity),
		lastState: make(map[string]string),
	}
}

// EntitiesAdded publishes discovery and the initial state of new sensors.
func (p *Publisher) EntitiesAdded(entities []entity.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.torn {
		return
	}

	if p.availability == "" && p.status != nil {
		p.publishAvailabilityLocked(availabilityFor(p.status()))
	}

	for _, e := range entities {
		if e.Kind() != entity.KindSensor {
			p.logger.Debug("entity has no MQTT representation",
				"entry_id", p.entryID, "unique_id", e.UniqueID(), "kind", string(e.Kind()))
			continue
		}
		if _, seen := p.entities[e.UniqueID()]; seen {
			continue
		}
		p.entities[e.UniqueID()] = e
		p.order = append(p.order, e.UniqueID())

		if p.opts.Discovery {
			p.publishDiscoveryLocked(e)
		}
		p.publishStateLocked(e)
	}
}

// EntitiesUpdated publishes availability, changed sensor states and the
// snapshot carried by u.
func (p *Publisher) EntitiesUpdated(entities []entity.Entity, u printer.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.torn {
		return
	}

	if u.Status != "" {
		p.publishAvailabilityLocked(availabilityFor(u.Status))
	}

	for _, e := range entities {
		if _, known := p.entities[e.UniqueID()]; known {
			p.publishStateLocked(e)
		}
	}

	if u.Snapshot != nil {
		payload, err := json.Marshal(u.Snapshot)
		if err != nil {
			p.logger.Warn("encoding snapshot failed", "entry_id", p.entryID, "error", err)
			return
		}
		p.publish(p.topics.EntryState(p.entryID), payload)
	}
}

// Republish re-sends every discovery document and the last known states.
// Home Assistant drops non-retained knowledge when it restarts.
func (p *Publisher) Republish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.torn {
		return
	}

	availability := p.availability
	if p.status != nil {
		availability = availabilityFor(p.status())
	}
	if availability != "" && p.publish(p.topics.EntryAvailability(p.entryID), []byte(availability)) {
		p.availability = availability
	}
	for _, id := range p.order {
		e := p.entities[id]
		if p.opts.Discovery {
			p.publishDiscoveryLocked(e)
		}
		delete(p.lastState, id)
		p.publishStateLocked(e)
	}
}

// Teardown stops publishing. The entry is marked offline; when removed
// is true every retained message the publisher created is cleared so
// Home Assistant forgets the device.
func (p *Publisher) Teardown(removed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.torn {
		return
	}

	if !removed {
		p.publishAvailabilityLocked(PayloadOffline)
		p.torn = true
		return
	}
	p.torn = true

	for _, id := range p.order {
		e := p.entities[id]
		if p.opts.Discovery {
			p.clear(p.topics.DiscoveryConfig(string(e.Kind()), p.entryID, e.Key()))
		}
		p.clear(p.topics.SensorState(p.entryID, e.Key()))
	}
	p.clear(p.topics.EntryState(p.entryID))
	p.clear(p.topics.EntryAvailability(p.entryID))
}

// SensorCount returns the number of sensors being mirrored.
func (p *Publisher) SensorCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entities)
}

func (p *Publisher) publishDiscoveryLocked(e entity.Entity) {
	topic, payload, err := buildDiscovery(p.topics, p.entryID, e)
	if err != nil {
		p.logger.Warn("building discovery failed", "entry_id", p.entryID, "error", err)
		return
	}
	p.publish(topic, payload)
}

// publishStateLocked sends e's state if it differs from the last one
// successfully published.
func (p *Publisher) publishStateLocked(e entity.Entity) {
	state := entity.FormatState(e.State())
	id := e.UniqueID()
	if last, ok := p.lastState[id]; ok && last == state {
		return
	}
	if p.publish(p.topics.SensorState(p.entryID, e.Key()), []byte(state)) {
		p.lastState[id] = state
	}
}

func (p *Publisher) publishAvailabilityLocked(value string) {
	if p.availability == value {
		return
	}
	if p.publish(p.topics.EntryAvailability(p.entryID), []byte(value)) {
		p.availability = value
	}
}

func (p *Publisher) publish(topic string, payload []byte) bool {
	if err := p.client.PublishRetained(topic, payload); err != nil {
		p.logger.Warn("mqtt publish failed", "entry_id", p.entryID, "topic", topic, "error", err)
		return false
	}
	return true
}

func (p *Publisher) clear(topic string) {
	if err := p.client.ClearRetained(topic); err != nil {
		p.logger.Warn("clearing retained message failed", "entry_id", p.entryID, "topic", topic, "error", err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
