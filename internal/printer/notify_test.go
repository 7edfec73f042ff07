package printer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBroadcaster_FIFOPerSubscriber(t *testing.T) {
	b := NewBroadcaster("entry-1", 128)
	defer b.Close()

	var mu sync.Mutex
	var got []uint64
	if _, err := b.Subscribe("ordered", func(u Update) {
		mu.Lock()
		got = append(got, u.Version)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for v := uint64(1); v <= 100; v++ {
		b.Publish(Update{Version: v})
	}

	waitFor(t, "100 updates", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != uint64(i+1) {
			t.Fatalf("update %d has version %d, want %d", i, v, i+1)
		}
	}
}

func TestBroadcaster_FillsEntryIDAndTime(t *testing.T) {
	b := NewBroadcaster("entry-7", 0)
	defer b.Close()

	ch := make(chan Update, 1)
	if _, err := b.Subscribe("observer", func(u Update) { ch <- u }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	b.Publish(Update{Version: 1})

	select {
	case u := <-ch:
		if u.EntryID != "entry-7" {
			t.Errorf("EntryID = %q, want entry-7", u.EntryID)
		}
		if u.Time.IsZero() {
			t.Error("Time not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivered")
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster("entry-1", 2)
	defer b.Close()

	release := make(chan struct{})
	if _, err := b.Subscribe("slow", func(Update) { <-release }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	var fast atomic.Int64
	if _, err := b.Subscribe("fast", func(Update) { fast.Add(1) }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		for v := uint64(1); v <= 50; v++ {
			b.Publish(Update{Version: v})
			// Let the fast subscriber keep up with its small queue.
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Publish blocked on slow subscriber")
	}
	close(release)

	if b.Dropped() == 0 {
		t.Error("Dropped() = 0, want drops for the slow subscriber")
	}
	waitFor(t, "fast subscriber deliveries", func() bool { return fast.Load() > 2 })
}

func TestBroadcaster_PanicRecovered(t *testing.T) {
	b := NewBroadcaster("entry-1", 0)
	defer b.Close()

	var calls atomic.Int64
	if _, err := b.Subscribe("panicky", func(Update) {
		calls.Add(1)
		panic("boom")
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Publish(Update{Version: 1})
	b.Publish(Update{Version: 2})

	waitFor(t, "both deliveries", func() bool { return calls.Load() == 2 })
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster("entry-1", 0)
	defer b.Close()

	var calls atomic.Int64
	unsubscribe, err := b.Subscribe("once", func(Update) { calls.Add(1) })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if b.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", b.SubscriberCount())
	}

	unsubscribe()
	unsubscribe()

	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d after unsubscribe, want 0", b.SubscriberCount())
	}
	b.Publish(Update{Version: 1})
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("observer called %d times after unsubscribe", calls.Load())
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster("entry-1", 0)
	if _, err := b.Subscribe("a", func(Update) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Close()
	b.Close()

	if _, err := b.Subscribe("late", func(Update) {}); !errors.Is(err, ErrBroadcasterClosed) {
		t.Errorf("Subscribe() after Close error = %v, want ErrBroadcasterClosed", err)
	}
	// Publishing after close is a no-op.
	b.Publish(Update{Version: 1})
	if b.Published() != 0 {
		t.Errorf("Published() = %d, want 0", b.Published())
	}
}

func TestBroadcaster_SubscribeNil(t *testing.T) {
	b := NewBroadcaster("entry-1", 0)
	defer b.Close()

	if _, err := b.Subscribe("nil", nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Subscribe(nil) error = %v, want ErrInvalidConfig", err)
	}
}
