package printer

import (
	"reflect"
	"sync"
	"testing"
)

func TestNewStore_InitialState(t *testing.T) {
	s := NewStore()

	if got := s.Status(); got != StatusDisconnected {
		t.Errorf("Status() = %q, want %q", got, StatusDisconnected)
	}
	if keys := s.Keys(); !reflect.DeepEqual(keys, []string{StatusKey}) {
		t.Errorf("Keys() = %v, want [%s]", keys, StatusKey)
	}
	if s.Version() != 0 {
		t.Errorf("Version() = %d, want 0", s.Version())
	}
}

func TestStore_MergeOverwritesAndKeeps(t *testing.T) {
	s := NewStore()

	res := s.Merge(map[string]any{"a": int64(1), "b": "x"})
	if !reflect.DeepEqual(res.NewKeys, []string{"a", "b"}) {
		t.Errorf("NewKeys = %v, want [a b]", res.NewKeys)
	}
	if res.Version != 1 {
		t.Errorf("Version = %d, want 1", res.Version)
	}

	res = s.Merge(map[string]any{"b": "y", "c": 2.5})
	if !reflect.DeepEqual(res.Keys, []string{"b", "c"}) {
		t.Errorf("Keys = %v, want [b c]", res.Keys)
	}
	if !reflect.DeepEqual(res.NewKeys, []string{"c"}) {
		t.Errorf("NewKeys = %v, want [c]", res.NewKeys)
	}

	snap, version := s.Snapshot()
	want := map[string]any{
		StatusKey: StatusDisconnected,
		"a":       int64(1),
		"b":       "y",
		"c":       2.5,
	}
	if !reflect.DeepEqual(snap, want) {
		t.Errorf("Snapshot() = %v, want %v", snap, want)
	}
	if version != 2 {
		t.Errorf("Snapshot version = %d, want 2", version)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Merge(map[string]any{"a": int64(1)})

	snap, _ := s.Snapshot()
	snap["a"] = int64(99)

	if v, _ := s.Get("a"); v != int64(1) {
		t.Errorf("store mutated through snapshot: a = %v", v)
	}
}

func TestStore_SetStatus(t *testing.T) {
	s := NewStore()

	changed, v1 := s.SetStatus(StatusConnected)
	if !changed {
		t.Error("SetStatus(CONNECTED) changed = false, want true")
	}
	changed, v2 := s.SetStatus(StatusConnected)
	if changed {
		t.Error("repeated SetStatus changed = true, want false")
	}
	if v2 <= v1 {
		t.Errorf("version did not advance: %d then %d", v1, v2)
	}
	if s.Status() != StatusConnected {
		t.Errorf("Status() = %q, want CONNECTED", s.Status())
	}
}

func TestStore_ConcurrentReadDuringWrite(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			s.Merge(map[string]any{"n": int64(i)})
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				snap, _ := s.Snapshot()
				_ = snap["n"]
				_, _ = s.Get("n")
			}
		}()
	}
	wg.Wait()

	if v, _ := s.Get("n"); v != int64(999) {
		t.Errorf("n = %v, want 999", v)
	}
}
