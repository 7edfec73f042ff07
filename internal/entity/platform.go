package entity

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/creality-bridge/internal/printer"
)

// Mode controls when dynamic entities are created.
type Mode string

// Discovery modes.
const (
	// ModeLazy creates an entity the first time its key is observed.
	ModeLazy Mode = "lazy"
	// ModeSetup fixes the entity set at setup time.
	ModeSetup Mode = "setup"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLazy, "":
		return ModeLazy, nil
	case ModeSetup:
		return ModeSetup, nil
	default:
		return "", fmt.Errorf("%w: unknown discovery mode %q", ErrInvalidConfig, s)
	}
}

// Listener is told about entity lifecycle events. Calls for one platform
// arrive on a single goroutine, in order.
type Listener interface {
	// EntitiesAdded is called once per batch of new entities.
	EntitiesAdded(entities []Entity)
	// EntitiesUpdated asks the listener to refresh every given entity.
	EntitiesUpdated(entities []Entity, update printer.Update)
}

// PlatformConfig configures a Platform.
type PlatformConfig struct {
	EntryID string
	Host    string
	Mode    Mode
}

// Platform owns the entities of one printer.
type Platform struct {
	cfg    PlatformConfig
	device DeviceInfo
	store  StateReader

	mu        sync.RWMutex
	entities  []Entity
	byID      map[string]Entity
	byKey     map[string]Entity
	camera    *Camera
	listeners []Listener
	setupDone bool

	logger   printer.Logger
	loggerMu sync.RWMutex
}

// NewPlatform creates an empty platform. Call Setup to create entities.
func NewPlatform(cfg PlatformConfig, store StateReader) (*Platform, error) {
	if cfg.EntryID == "" || cfg.Host == "" {
		return nil, fmt.Errorf("%w: entry id and host are required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	return &Platform{
		cfg:    cfg,
		device: NewDeviceInfo(cfg.EntryID, cfg.Host),
		store:  store,
		byID:   make(map[string]Entity),
		byKey:  make(map[string]Entity),
		logger: nopLogger{},
	}, nil
}

// SetLogger sets the logger for entity lifecycle messages.
func (p *Platform) SetLogger(logger printer.Logger) {
	p.loggerMu.Lock()
	defer p.loggerMu.Unlock()
	if logger == nil {
		logger = nopLogger{}
	}
	p.logger = logger
}

func (p *Platform) getLogger() printer.Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

// AddListener registers l. Listeners added before Setup see the initial
// entity batch.
func (p *Platform) AddListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Device returns the device every entity belongs to.
func (p *Platform) Device() DeviceInfo {
	return p.device
}

// Mode returns the discovery mode.
func (p *Platform) Mode() Mode {
	return p.cfg.Mode
}

// Setup creates the status sensor, a sensor for every key already in the
// store, and the camera when the printer has advertised one. Repeated
// calls are no-ops.
func (p *Platform) Setup() []Entity {
	p.mu.Lock()
	if p.setupDone {
		p.mu.Unlock()
		return nil
	}
	p.setupDone = true

	added := []Entity{p.addLocked(NewStatusSensor(p.cfg.EntryID, p.device, p.store))}
	added = append(added, p.discoverLocked(p.store.Keys(), p.storeValue)...)
	listeners := p.listenersLocked()
	p.mu.Unlock()

	p.getLogger().Info("entities set up",
		"entry_id", p.cfg.EntryID, "count", len(added), "mode", string(p.cfg.Mode))
	for _, l := range listeners {
		l.EntitiesAdded(added)
	}
	return added
}

// HandleUpdate is the platform's printer.Observer. It creates entities
// for new keys in lazy mode, then asks listeners to refresh all entities.
func (p *Platform) HandleUpdate(u printer.Update) {
	p.mu.Lock()
	if !p.setupDone {
		p.mu.Unlock()
		return
	}

	var added []Entity
	if p.cfg.Mode == ModeLazy && u.Snapshot != nil {
		keys := make([]string, 0, len(u.Snapshot))
		for k := range u.Snapshot {
			keys = append(keys, k)
		}
		added = p.discoverLocked(keys, func(k string) (any, bool) {
			v, ok := u.Snapshot[k]
			return v, ok
		})
	}
	all := append([]Entity(nil), p.entities...)
	listeners := p.listenersLocked()
	p.mu.Unlock()

	if len(added) > 0 {
		p.getLogger().Info("entities discovered", "entry_id", p.cfg.EntryID, "count", len(added))
		for _, l := range listeners {
			l.EntitiesAdded(added)
		}
	}
	for _, l := range listeners {
		l.EntitiesUpdated(all, u)
	}
}

// discoverLocked creates sensors for unseen keys and the camera if value
// reports support. keys need not be sorted; entities are added in key order.
func (p *Platform) discoverLocked(keys []string, value func(string) (any, bool)) []Entity {
	slices.Sort(keys)

	var added []Entity
	for _, k := range keys {
		if k == printer.StatusKey {
			continue
		}
		if _, exists := p.byKey[k]; exists {
			continue
		}
		added = append(added, p.addLocked(NewSensor(p.cfg.EntryID, k, p.device, p.store)))
	}

	if p.camera == nil {
		if v, ok := value(CameraCapabilityKey); ok && CameraSupported(v) {
			p.camera = NewCamera(p.cfg.EntryID, p.cfg.Host, p.device)
			added = append(added, p.addLocked(p.camera))
		}
	}
	return added
}

func (p *Platform) addLocked(e Entity) Entity {
	p.entities = append(p.entities, e)
	p.byID[e.UniqueID()] = e
	if k := e.Key(); k != "" {
		p.byKey[k] = e
	}
	return e
}

func (p *Platform) listenersLocked() []Listener {
	return append([]Listener(nil), p.listeners...)
}

func (p *Platform) storeValue(k string) (any, bool) {
	return p.store.Get(k)
}

// Entities returns all entities in creation order.
func (p *Platform) Entities() []Entity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Entity(nil), p.entities...)
}

// Lookup finds an entity by store key or unique id.
func (p *Platform) Lookup(ref string) (Entity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.byKey[ref]; ok {
		return e, nil
	}
	if e, ok := p.byID[ref]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// Camera returns the camera entity if the printer advertised one.
func (p *Platform) Camera() (*Camera, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.camera, p.camera != nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
