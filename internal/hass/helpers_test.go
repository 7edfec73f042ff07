package hass

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/creality-bridge/internal/entity"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/creality-bridge/internal/printer"
)

// fakeMQTT keeps the retained messages a broker would hold.
type fakeMQTT struct {
	mu        sync.Mutex
	retained  map[string]string
	counts    map[string]int
	failNext  map[string]int
	handlers  map[string]mqtt.MessageHandler
	subscribe error
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{
		retained: make(map[string]string),
		counts:   make(map[string]int),
		failNext: make(map[string]int),
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

func (f *fakeMQTT) PublishRetained(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext[topic] > 0 {
		f.failNext[topic]--
		return errors.New("broker unavailable")
	}
	f.counts[topic]++
	f.retained[topic] = string(payload)
	return nil
}

func (f *fakeMQTT) ClearRetained(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.retained, topic)
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribe != nil {
		return f.subscribe
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) get(topic string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.retained[topic]
	return v, ok
}

func (f *fakeMQTT) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[topic]
}

func (f *fakeMQTT) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.retained)
}

func (f *fakeMQTT) deliver(topic, payload string) error {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		return errors.New("no handler for " + topic)
	}
	return h(topic, []byte(payload))
}

// rig wires a store, platform and publisher for entry "e1".
type rig struct {
	store    *printer.Store
	platform *entity.Platform
	pub      *Publisher
	mqtt     *fakeMQTT
}

func newRig(t *testing.T, opts Options) *rig {
	t.Helper()
	store := printer.NewStore()
	platform, err := entity.NewPlatform(entity.PlatformConfig{
		EntryID: "e1",
		Host:    "10.0.0.5",
		Mode:    entity.ModeLazy,
	}, store)
	if err != nil {
		t.Fatalf("NewPlatform() error = %v", err)
	}
	fake := newFakeMQTT()
	pub := NewPublisher(fake, opts, "e1", store.Status, nil)
	platform.AddListener(pub)
	return &rig{store: store, platform: platform, pub: pub, mqtt: fake}
}

// merge applies values and delivers the resulting update synchronously.
func (r *rig) merge(values map[string]any) {
	res := r.store.Merge(values)
	snap, _ := r.store.Snapshot()
	r.platform.HandleUpdate(printer.Update{
		EntryID:  "e1",
		Version:  res.Version,
		Keys:     res.Keys,
		NewKeys:  res.NewKeys,
		Status:   r.store.Status(),
		Snapshot: snap,
	})
}

func (r *rig) setStatus(status string) {
	changed, version := r.store.SetStatus(status)
	snap, _ := r.store.Snapshot()
	r.platform.HandleUpdate(printer.Update{
		EntryID:       "e1",
		Version:       version,
		Keys:          []string{printer.StatusKey},
		Status:        status,
		StatusChanged: changed,
		Snapshot:      snap,
	})
}

func decodeDiscovery(t *testing.T, payload string) discoveryDocument {
	t.Helper()
	var doc discoveryDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		t.Fatalf("discovery payload is not JSON: %v\n%s", err, payload)
	}
	return doc
}
