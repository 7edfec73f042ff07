package integration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/creality-bridge/internal/entity"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/creality-bridge/internal/printer"
)

// ClientDefaults apply to every printer connection.
type ClientDefaults struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	Reconnect        printer.ReconnectPolicy
	Discovery        entity.Mode
	// QueueSize bounds each observer's pending updates; zero uses the default.
	QueueSize int
}

// DetachFunc undoes a sink attachment. removed is true when the entry is
// being deleted rather than just unloaded.
type DetachFunc func(removed bool)

// Sink wires an output to every runtime.
type Sink interface {
	Name() string
	// Attach is called before the client starts. Listeners registered on
	// rt.Platform here receive the initial entity batch.
	Attach(rt *Runtime) (DetachFunc, error)
}

// Runtime is the live state of one set-up entry.
type Runtime struct {
	Entry    Entry
	Store    *printer.Store
	Bus      *printer.Broadcaster
	Client   *printer.Client
	Platform *entity.Platform

	logger    *logging.Logger
	startedAt time.Time
	detach    []namedDetach
	cancel    context.CancelFunc
	done      chan struct{}
}

type namedDetach struct {
	name string
	fn   DetachFunc
}

// RuntimeStatus summarises a runtime for status endpoints.
type RuntimeStatus struct {
	Entry        Entry     `json:"entry"`
	URL          string    `json:"url"`
	Status       string    `json:"connection_status"`
	Connected    bool      `json:"connected"`
	Version      uint64    `json:"version"`
	EntityCount  int       `json:"entity_count"`
	HasCamera    bool      `json:"has_camera"`
	Subscribers  int       `json:"subscribers"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity,omitzero"`
}

// Status returns a point-in-time summary.
func (rt *Runtime) Status() RuntimeStatus {
	stats := rt.Client.Stats()
	_, hasCamera := rt.Platform.Camera()
	return RuntimeStatus{
		Entry:        rt.Entry,
		URL:          stats.URL,
		Status:       rt.Store.Status(),
		Connected:    stats.Connected,
		Version:      rt.Store.Version(),
		EntityCount:  len(rt.Platform.Entities()),
		HasCamera:    hasCamera,
		Subscribers:  rt.Bus.SubscriberCount(),
		StartedAt:    rt.startedAt,
		LastActivity: stats.LastActivity,
	}
}

// Manager owns the runtimes of all configured entries.
type Manager struct {
	repo     Repository
	defaults ClientDefaults
	seeds    []Entry
	logger   *logging.Logger

	mu       sync.RWMutex
	baseCtx  context.Context
	runtimes map[string]*Runtime
	pending  map[string]struct{} // entries being set up outside the lock
	sinks    []Sink
}

// NewManager creates a manager. seeds are entries from the configuration
// file, added to the repository on Start unless their IP already exists.
func NewManager(repo Repository, defaults ClientDefaults, seeds []Entry, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		repo:     repo,
		defaults: defaults,
		seeds:    seeds,
		logger:   logger.With("component", "integration"),
		baseCtx:  context.Background(),
		runtimes: make(map[string]*Runtime),
		pending:  make(map[string]struct{}),
	}
}

// AddSink registers a sink for runtimes set up afterwards.
func (m *Manager) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Start seeds configured entries and sets up every persisted entry.
// Runtimes live until Stop, UnloadEntry, or cancellation of ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	for _, seed := range m.seeds {
		if err := m.seed(ctx, seed); err != nil {
			return err
		}
	}

	entries, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("listing entries: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if _, err := m.SetupEntry(e); err != nil && !errors.Is(err, ErrAlreadyLoaded) {
			errs = append(errs, fmt.Errorf("entry %s (%s): %w", e.ID, e.IP, err))
		}
	}
	m.logger.Info("integration started", "entries", len(entries), "failed", len(errs))
	return errors.Join(errs...)
}

func (m *Manager) seed(ctx context.Context, e Entry) error {
	e.Source = SourceConfig
	Normalize(&e)

	if _, err := m.repo.GetByIP(ctx, e.IP); err == nil {
		return nil
	} else if !errors.Is(err, ErrEntryNotFound) {
		return fmt.Errorf("looking up %s: %w", e.IP, err)
	}

	if _, err := m.create(ctx, e); err != nil {
		return fmt.Errorf("seeding %s: %w", e.IP, err)
	}
	m.logger.Info("seeded printer from configuration", "ip", e.IP)
	return nil
}

func (m *Manager) create(ctx context.Context, e Entry) (*Entry, error) {
	Normalize(&e)
	if err := Validate(e); err != nil {
		return nil, err
	}

	if _, err := m.repo.GetByIP(ctx, e.IP); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConfigured, e.IP)
	} else if !errors.Is(err, ErrEntryNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now

	if err := m.repo.Create(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// AddEntry validates, persists and sets up a new printer.
func (m *Manager) AddEntry(ctx context.Context, e Entry) (*Entry, error) {
	created, err := m.create(ctx, e)
	if err != nil {
		return nil, err
	}
	if _, err := m.SetupEntry(*created); err != nil {
		return created, fmt.Errorf("setting up entry: %w", err)
	}
	m.logger.Info("printer added", "entry_id", created.ID, "ip", created.IP)
	return created, nil
}

// RemoveEntry unloads and deletes an entry.
func (m *Manager) RemoveEntry(ctx context.Context, id string) error {
	if _, err := m.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := m.unload(id, true); err != nil && !errors.Is(err, ErrNotLoaded) {
		return err
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("printer removed", "entry_id", id)
	return nil
}

// Entries lists persisted entries.
func (m *Manager) Entries(ctx context.Context) ([]Entry, error) {
	return m.repo.List(ctx)
}

// Entry returns a persisted entry.
func (m *Manager) Entry(ctx context.Context, id string) (*Entry, error) {
	return m.repo.Get(ctx, id)
}

// SetupEntry builds the runtime for e and starts its connection loop.
//
// Sinks attach and the initial entity batch is delivered without holding
// the manager lock, so a slow output does not stall Runtime lookups.
func (m *Manager) SetupEntry(e Entry) (*Runtime, error) {
	m.mu.Lock()
	if _, exists := m.runtimes[e.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, e.ID)
	}
	if _, busy := m.pending[e.ID]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, e.ID)
	}
	m.pending[e.ID] = struct{}{}
	sinks := slices.Clone(m.sinks)
	m.mu.Unlock()

	rt, err := m.buildRuntime(e, sinks)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, e.ID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	rt.cancel = cancel
	go func() {
		defer close(rt.done)
		if err := rt.Client.Run(ctx); err != nil {
			rt.logger.Error("printer client exited", "error", err)
		}
	}()

	m.runtimes[e.ID] = rt
	rt.logger.Info("entry set up", "url", rt.Client.URL(), "discovery", string(rt.Platform.Mode()))
	return rt, nil
}

// buildRuntime wires the store, bus, client and platform of one entry and
// attaches sinks. The client is not started.
func (m *Manager) buildRuntime(e Entry, sinks []Sink) (*Runtime, error) {
	log := m.logger.With("entry_id", e.ID, "ip", e.IP)

	store := printer.NewStore()
	bus := printer.NewBroadcaster(e.ID, m.defaults.QueueSize)
	bus.SetLogger(log)

	client, err := printer.NewClient(printer.ClientConfig{
		EntryID:          e.ID,
		Host:             e.IP,
		Port:             e.Port,
		HandshakeTimeout: m.defaults.HandshakeTimeout,
		PingInterval:     m.defaults.PingInterval,
		PongTimeout:      m.defaults.PongTimeout,
		Reconnect:        m.defaults.Reconnect,
	}, store, bus)
	if err != nil {
		bus.Close()
		return nil, err
	}
	client.SetLogger(log)

	platform, err := entity.NewPlatform(entity.PlatformConfig{
		EntryID: e.ID,
		Host:    e.IP,
		Mode:    m.defaults.Discovery,
	}, store)
	if err != nil {
		bus.Close()
		return nil, err
	}
	platform.SetLogger(log)

	rt := &Runtime{
		Entry:     e,
		Store:     store,
		Bus:       bus,
		Client:    client,
		Platform:  platform,
		logger:    log,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	for _, s := range sinks {
		detach, err := s.Attach(rt)
		if err != nil {
			log.Warn("sink attach failed", "sink", s.Name(), "error", err)
			continue
		}
		if detach != nil {
			rt.detach = append(rt.detach, namedDetach{name: s.Name(), fn: detach})
		}
	}

	platform.Setup()
	if _, err := bus.Subscribe("entities", platform.HandleUpdate); err != nil {
		rt.runDetach(false)
		bus.Close()
		return nil, err
	}
	return rt, nil
}

// UnloadEntry stops an entry's runtime without deleting it.
func (m *Manager) UnloadEntry(id string) error {
	return m.unload(id, false)
}

func (m *Manager) unload(id string, removed bool) error {
	m.mu.Lock()
	rt, ok := m.runtimes[id]
	delete(m.runtimes, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}

	rt.Client.Stop()
	rt.cancel()
	<-rt.done
	rt.Bus.Close()
	rt.runDetach(removed)

	m.logger.Info("entry unloaded", "entry_id", id, "removed", removed)
	return nil
}

func (rt *Runtime) runDetach(removed bool) {
	for i := len(rt.detach) - 1; i >= 0; i-- {
		rt.detach[i].fn(removed)
	}
	rt.detach = nil
}

// Runtime returns the runtime for a loaded entry.
func (m *Manager) Runtime(id string) (*Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[id]
	return rt, ok
}

// Runtimes returns all loaded runtimes ordered by IP.
func (m *Manager) Runtimes() []*Runtime {
	m.mu.RLock()
	out := make([]*Runtime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		out = append(out, rt)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Runtime) int { return strings.Compare(a.Entry.IP, b.Entry.IP) })
	return out
}

// stopConcurrency bounds how many runtimes Stop tears down at once.
const stopConcurrency = 8

// Stop unloads every entry, several at a time.
func (m *Manager) Stop() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(stopConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			// ErrNotLoaded means a concurrent unload got there first.
			if err := m.unload(id, false); err != nil && !errors.Is(err, ErrNotLoaded) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Warn("integration stop incomplete", "error", err)
	}
	m.logger.Info("integration stopped", "entries", len(ids))
}
