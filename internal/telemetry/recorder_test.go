package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/creality-bridge/internal/integration"
	"github.com/nerrad567/creality-bridge/internal/printer"
)

// memoryHistory is an in-memory HistoryRepository.
type memoryHistory struct {
	mu      sync.Mutex
	records []HistoryRecord
	err     error
	pruned  int
}

func (m *memoryHistory) Record(_ context.Context, rec *HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}

func (m *memoryHistory) GetHistory(_ context.Context, entryID string, limit int) ([]HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < ClampLimit(limit); i-- {
		if m.records[i].EntryID == entryID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *memoryHistory) Prune(context.Context, time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned++
	return 0, nil
}

func (m *memoryHistory) reasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.records))
	for i, r := range m.records {
		out[i] = r.Reason
	}
	return out
}

func TestRecorderWritesMetrics(t *testing.T) {
	metrics := &fakeMetrics{}
	r := NewRecorder(RecorderConfig{Metrics: metrics}, testLogger())

	r.Observe(printer.Update{
		EntryID:  "e1",
		Keys:     []string{printer.StatusKey, "hostname", "lightSw", "nozzleTemp"},
		Status:   printer.StatusConnected,
		Snapshot: map[string]any{printer.StatusKey: printer.StatusConnected, "nozzleTemp": 210.0, "lightSw": true, "hostname": "K1", "bedTemp": 60.0},
	})

	if len(metrics.metrics) != 3 {
		t.Fatalf("metrics = %+v, want hostname, lightSw and nozzleTemp offered", metrics.metrics)
	}
	for _, m := range metrics.metrics {
		if m.key == "bedTemp" || m.key == printer.StatusKey {
			t.Errorf("unexpected metric %q", m.key)
		}
	}
	if len(metrics.statuses) != 0 {
		t.Errorf("status written without a change: %+v", metrics.statuses)
	}

	r.Observe(printer.Update{
		EntryID:       "e1",
		Keys:          []string{printer.StatusKey},
		Status:        "ERROR: refused",
		StatusChanged: true,
	})
	if len(metrics.statuses) != 1 || metrics.statuses[0].connected {
		t.Errorf("statuses = %+v, want one disconnected transition", metrics.statuses)
	}
}

func TestRecorderHistoryThrottling(t *testing.T) {
	history := &memoryHistory{}
	r := NewRecorder(RecorderConfig{History: history, HistoryInterval: time.Minute}, testLogger())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	updates := []printer.Update{
		{EntryID: "e1", Time: base, Keys: []string{"a"}},
		{EntryID: "e1", Time: base.Add(10 * time.Second), Keys: []string{"a"}},
		{EntryID: "e1", Time: base.Add(20 * time.Second), Status: printer.StatusConnected, StatusChanged: true},
		{EntryID: "e1", Time: base.Add(50 * time.Second), Keys: []string{"a"}},
		{EntryID: "e1", Time: base.Add(81 * time.Second), Keys: []string{"a"}},
		{EntryID: "e2", Time: base.Add(82 * time.Second), Keys: []string{"a"}},
	}
	for _, u := range updates {
		r.Observe(u)
	}

	want := []string{ReasonInterval, ReasonStatusChange, ReasonInterval, ReasonInterval}
	got := history.reasons()
	if len(got) != len(want) {
		t.Fatalf("reasons = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reasons[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRecorderStatusOnlyHistory(t *testing.T) {
	history := &memoryHistory{}
	r := NewRecorder(RecorderConfig{History: history}, testLogger())

	r.Observe(printer.Update{EntryID: "e1", Keys: []string{"a"}})
	r.Observe(printer.Update{EntryID: "e1", Status: printer.StatusConnected, StatusChanged: true})

	if got := history.reasons(); len(got) != 1 || got[0] != ReasonStatusChange {
		t.Errorf("reasons = %v, want only the status change", got)
	}
}

func TestRecorderRetriesAfterHistoryFailure(t *testing.T) {
	history := &memoryHistory{err: errors.New("disk full")}
	r := NewRecorder(RecorderConfig{History: history, HistoryInterval: time.Hour}, testLogger())
	base := time.Now()

	r.Observe(printer.Update{EntryID: "e1", Time: base})

	history.mu.Lock()
	history.err = nil
	history.mu.Unlock()

	r.Observe(printer.Update{EntryID: "e1", Time: base.Add(time.Second)})
	if got := history.reasons(); len(got) != 1 {
		t.Errorf("reasons = %v, want the retried snapshot", got)
	}
}

func TestRecorderAttach(t *testing.T) {
	metrics := &fakeMetrics{}
	history := &memoryHistory{}
	r := NewRecorder(RecorderConfig{Metrics: metrics, History: history, HistoryInterval: time.Hour}, testLogger())
	if r.Name() != "telemetry" {
		t.Errorf("Name() = %q", r.Name())
	}

	bus := printer.NewBroadcaster("e1", 0)
	defer bus.Close()
	rt := &integration.Runtime{Entry: integration.Entry{ID: "e1"}, Bus: bus}

	detach, err := r.Attach(rt)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if bus.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", bus.SubscriberCount())
	}

	bus.Publish(printer.Update{
		EntryID:  "e1",
		Keys:     []string{"nozzleTemp"},
		Status:   printer.StatusConnected,
		Snapshot: map[string]any{"nozzleTemp": 200.0},
	})
	waitFor(t, "metric write", func() bool {
		n, _ := metrics.counts()
		return n == 1
	})
	waitFor(t, "history record", func() bool { return len(history.reasons()) == 1 })

	detach(false)
	if bus.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d after detach", bus.SubscriberCount())
	}
}

func TestRecorderAttachClosedBus(t *testing.T) {
	r := NewRecorder(RecorderConfig{}, testLogger())
	bus := printer.NewBroadcaster("e1", 0)
	bus.Close()

	if _, err := r.Attach(&integration.Runtime{Entry: integration.Entry{ID: "e1"}, Bus: bus}); !errors.Is(err, printer.ErrBroadcasterClosed) {
		t.Errorf("Attach() error = %v, want ErrBroadcasterClosed", err)
	}
}

func TestRunPruner(t *testing.T) {
	history := &memoryHistory{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunPruner(ctx, history, time.Hour, 10*time.Millisecond, testLogger())
		close(done)
	}()

	waitFor(t, "two prune passes", func() bool {
		history.mu.Lock()
		defer history.mu.Unlock()
		return history.pruned >= 2
	})
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("RunPruner did not return after cancel")
	}
}

func TestRunPrunerDisabled(t *testing.T) {
	history := &memoryHistory{}
	RunPruner(context.Background(), history, 0, time.Second, testLogger())
	if history.pruned != 0 {
		t.Error("pruner ran with retention disabled")
	}
}
