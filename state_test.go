package livespec

import (
	"reflect"
	"sync"
	"testing"
)

func TestMemoryStoreGetSet(t *testing.T) {
	store := NewMemoryStore(map[string]interface{}{
		"count": float64(1),
	})

	if v, ok := store.Get("/count"); !ok || v != float64(1) {
		t.Errorf("seeded value not readable, got %v ok=%v", v, ok)
	}

	store.Set("/user/name", "ada")
	if v, ok := store.Get("/user/name"); !ok || v != "ada" {
		t.Errorf("nested write not readable, got %v ok=%v", v, ok)
	}

	if _, ok := store.Get("/missing/path"); ok {
		t.Error("missing path reported ok")
	}
}

func TestMemoryStoreRootPath(t *testing.T) {
	store := NewMemoryStore(map[string]interface{}{"a": 1})

	v, ok := store.Get("")
	if !ok {
		t.Fatal("root read failed")
	}
	root, ok := v.(map[string]interface{})
	if !ok || root["a"] != 1 {
		t.Errorf("root read returned %v", v)
	}

	if v, ok := store.Get("/"); !ok || !reflect.DeepEqual(v, root) {
		t.Errorf("slash root differs: %v", v)
	}
}

func TestMemoryStoreSnapshotStability(t *testing.T) {
	store := NewMemoryStore(map[string]interface{}{
		"user": map[string]interface{}{"name": "ada"},
	})

	before := store.Snapshot()
	store.Set("/user/name", "grace")
	after := store.Snapshot()

	if got, _ := getIn(before, []string{"user", "name"}); got != "ada" {
		t.Errorf("earlier snapshot mutated: %v", got)
	}
	if got, _ := getIn(after, []string{"user", "name"}); got != "grace" {
		t.Errorf("new snapshot missing write: %v", got)
	}
}

func TestMemoryStoreUpdateBatch(t *testing.T) {
	store := NewMemoryStore(nil)

	var batches [][]StateChange
	cancel := store.Subscribe(func(changes []StateChange) {
		batches = append(batches, changes)
	})
	defer cancel()

	store.Update([]StateChange{
		{Path: "/a", Value: 1},
		{Path: "/b", Value: 2},
	})

	if len(batches) != 1 {
		t.Fatalf("expected one notification for the batch, got %d", len(batches))
	}
	if len(batches[0]) != 2 {
		t.Errorf("expected 2 changes in batch, got %d", len(batches[0]))
	}
	if v, _ := store.Get("/a"); v != 1 {
		t.Errorf("batch write /a = %v", v)
	}
	if v, _ := store.Get("/b"); v != 2 {
		t.Errorf("batch write /b = %v", v)
	}
}

func TestMemoryStoreSetNotifiesAsBatch(t *testing.T) {
	store := NewMemoryStore(nil)

	var got []StateChange
	store.Subscribe(func(changes []StateChange) { got = changes })

	store.Set("/count", 5)

	if len(got) != 1 || got[0].Path != "/count" || got[0].Value != 5 {
		t.Errorf("single Set should notify with one-entry batch, got %v", got)
	}
}

func TestMemoryStoreUnsubscribe(t *testing.T) {
	store := NewMemoryStore(nil)

	calls := 0
	cancel := store.Subscribe(func([]StateChange) { calls++ })

	store.Set("/a", 1)
	cancel()
	cancel() // second cancel is a no-op
	store.Set("/a", 2)

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestMemoryStoreRootReplacement(t *testing.T) {
	store := NewMemoryStore(map[string]interface{}{"old": true})

	store.Set("/", map[string]interface{}{"new": true})

	if _, ok := store.Get("/old"); ok {
		t.Error("old root still visible after replacement")
	}
	if v, _ := store.Get("/new"); v != true {
		t.Errorf("new root not installed: %v", v)
	}

	// Non-map root writes are ignored.
	store.Set("", "scalar")
	if v, _ := store.Get("/new"); v != true {
		t.Errorf("scalar root write should be dropped, state now %v", v)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			store.Set(joinPath("worker", string(rune('a'+n))), n)
		}(i)
		go func() {
			defer wg.Done()
			store.Snapshot()
			store.Get("/worker")
		}()
	}
	wg.Wait()
}
