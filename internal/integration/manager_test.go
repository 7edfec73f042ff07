package integration

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/creality-bridge/internal/entity"
	"github.com/nerrad567/creality-bridge/internal/printer"
)

// fakePrinter serves one JSON frame to every connection.
func fakePrinter(t *testing.T, frame string) (string, int) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}))
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	return host, port
}

type recordingSink struct {
	mu       sync.Mutex
	attached []string
	detached map[string]bool
	added    int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Attach(rt *Runtime) (DetachFunc, error) {
	s.mu.Lock()
	s.attached = append(s.attached, rt.Entry.ID)
	s.mu.Unlock()

	rt.Platform.AddListener(s)
	id := rt.Entry.ID
	return func(removed bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.detached == nil {
			s.detached = make(map[string]bool)
		}
		s.detached[id] = removed
	}, nil
}

func (s *recordingSink) EntitiesAdded(entities []entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added += len(entities)
}

func (s *recordingSink) EntitiesUpdated([]entity.Entity, printer.Update) {}

func testDefaults() ClientDefaults {
	return ClientDefaults{
		Reconnect: printer.ReconnectPolicy{InitialDelay: 20 * time.Millisecond},
		Discovery: entity.ModeLazy,
	}
}

func newTestManager(t *testing.T, seeds []Entry) (*Manager, *recordingSink) {
	t.Helper()
	repo := NewSQLiteRepository(openTestDB(t).DB)
	m := NewManager(repo, testDefaults(), seeds, testLogger())
	sink := &recordingSink{}
	m.AddSink(sink)
	t.Cleanup(m.Stop)
	return m, sink
}

func TestManager_AddEntryRunsClient(t *testing.T) {
	host, port := fakePrinter(t, `{"nozzleTemp":"205.5","webrtcSupport":"1"}`)
	m, sink := newTestManager(t, nil)

	e, err := m.AddEntry(context.Background(), Entry{IP: host, Port: port, Password: "pw"})
	if err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if e.ID == "" {
		t.Fatal("AddEntry() did not assign an ID")
	}

	rt, ok := m.Runtime(e.ID)
	if !ok {
		t.Fatal("Runtime() not found after AddEntry")
	}

	waitFor(t, "telemetry merged", func() bool {
		v, ok := rt.Store.Get("nozzleTemp")
		return ok && v == 205.5
	})
	waitFor(t, "camera discovered", func() bool {
		_, ok := rt.Platform.Camera()
		return ok
	})

	status := rt.Status()
	if status.Status != printer.StatusConnected {
		t.Errorf("Status().Status = %q, want CONNECTED", status.Status)
	}
	if !status.HasCamera {
		t.Error("Status().HasCamera = false")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.attached) != 1 || sink.attached[0] != e.ID {
		t.Errorf("sink attached = %v", sink.attached)
	}
	if sink.added < 1 {
		t.Error("sink saw no entities")
	}
}

func TestManager_AddEntryDuplicateIP(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	if _, err := m.AddEntry(ctx, Entry{IP: "127.0.0.1", Port: 1}); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if _, err := m.AddEntry(ctx, Entry{IP: "127.0.0.1", Port: 2}); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("AddEntry() duplicate error = %v, want ErrAlreadyConfigured", err)
	}
}

func TestManager_AddEntryInvalid(t *testing.T) {
	m, _ := newTestManager(t, nil)
	if _, err := m.AddEntry(context.Background(), Entry{}); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("AddEntry() error = %v, want ErrInvalidEntry", err)
	}
}

func TestManager_StartSeedsConfigEntries(t *testing.T) {
	seeds := []Entry{{IP: "127.0.0.1", Port: 1, Name: "Seeded"}}
	m, _ := newTestManager(t, seeds)
	ctx := context.Background()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	entries, err := m.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Source != SourceConfig || entries[0].Name != "Seeded" {
		t.Fatalf("Entries() = %+v", entries)
	}
	if len(m.Runtimes()) != 1 {
		t.Errorf("Runtimes() len = %d, want 1", len(m.Runtimes()))
	}

	// Nothing listens on port 1, so the status settles on an error.
	rt := m.Runtimes()[0]
	waitFor(t, "error status", func() bool { return printer.IsErrorStatus(rt.Store.Status()) })

	// Seeding again is a no-op.
	m.Stop()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	entries, _ = m.Entries(ctx)
	if len(entries) != 1 {
		t.Errorf("Entries() after reseed len = %d, want 1", len(entries))
	}
}

func TestManager_UnloadAndRemove(t *testing.T) {
	m, sink := newTestManager(t, nil)
	ctx := context.Background()

	e, err := m.AddEntry(ctx, Entry{IP: "127.0.0.1", Port: 1})
	if err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}

	if err := m.UnloadEntry(e.ID); err != nil {
		t.Fatalf("UnloadEntry() error = %v", err)
	}
	if _, ok := m.Runtime(e.ID); ok {
		t.Error("Runtime() still present after unload")
	}
	if err := m.UnloadEntry(e.ID); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("second UnloadEntry() error = %v, want ErrNotLoaded", err)
	}

	sink.mu.Lock()
	removed, detached := sink.detached[e.ID]
	sink.mu.Unlock()
	if !detached || removed {
		t.Errorf("detach called=%v removed=%v, want true/false", detached, removed)
	}

	if _, err := m.SetupEntry(*e); err != nil {
		t.Fatalf("SetupEntry() error = %v", err)
	}
	if _, err := m.SetupEntry(*e); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("SetupEntry() twice error = %v, want ErrAlreadyLoaded", err)
	}

	if err := m.RemoveEntry(ctx, e.ID); err != nil {
		t.Fatalf("RemoveEntry() error = %v", err)
	}
	if _, err := m.Entry(ctx, e.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Entry() after remove error = %v, want ErrEntryNotFound", err)
	}
	sink.mu.Lock()
	removed = sink.detached[e.ID]
	sink.mu.Unlock()
	if !removed {
		t.Error("detach not told the entry was removed")
	}

	if err := m.RemoveEntry(ctx, e.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("RemoveEntry() missing error = %v, want ErrEntryNotFound", err)
	}
}

// blockingSink stalls the initial entity batch until released, like an
// output publishing to a slow broker.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Attach(rt *Runtime) (DetachFunc, error) {
	rt.Platform.AddListener(s)
	return nil, nil
}

func (s *blockingSink) EntitiesAdded([]entity.Entity) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
}

func (s *blockingSink) EntitiesUpdated([]entity.Entity, printer.Update) {}

func TestManager_SlowSinkDoesNotBlockLookups(t *testing.T) {
	m, _ := newTestManager(t, nil)
	slow := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	m.AddSink(slow)

	e := Entry{ID: "e1", IP: "127.0.0.1", Port: 1}
	setupErr := make(chan error, 1)
	go func() {
		_, err := m.SetupEntry(e)
		setupErr <- err
	}()

	select {
	case <-slow.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("sink never received the initial entities")
	}

	lookups := make(chan struct{})
	go func() {
		m.Runtimes()
		m.Runtime(e.ID)
		close(lookups)
	}()
	select {
	case <-lookups:
	case <-time.After(time.Second):
		close(slow.release)
		t.Fatal("Runtime lookups blocked behind a slow sink")
	}

	if _, err := m.SetupEntry(e); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("concurrent SetupEntry() error = %v, want ErrAlreadyLoaded", err)
	}

	close(slow.release)
	if err := <-setupErr; err != nil {
		t.Fatalf("SetupEntry() error = %v", err)
	}
	if _, ok := m.Runtime(e.ID); !ok {
		t.Error("Runtime() missing after setup finished")
	}
}
