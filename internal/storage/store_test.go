package storage

import (
	"fmt"
	"sync"
	"testing"

	"lwwdoc/internal/document"
	"lwwdoc/internal/value"
)

func TestInMemoryStore_GetSet(t *testing.T) {
	store := NewInMemoryStore()

	outcome := store.SetField("doc1", "status", value.MustOf("pending"), 1, "svc-a")
	if outcome != document.Inserted {
		t.Fatalf("Expected inserted, got %v", outcome)
	}

	doc, ok := store.Get("doc1")
	if !ok {
		t.Fatal("Expected document to exist")
	}
	v, ok := doc.GetField("status")
	if !ok || v.Interface() != "pending" {
		t.Errorf("Expected 'pending', got %v", v)
	}
}

func TestInMemoryStore_GetNotFound(t *testing.T) {
	store := NewInMemoryStore()
	if _, ok := store.Get("nonexistent"); ok {
		t.Error("Expected no document for unknown id")
	}
}

func TestInMemoryStore_SupersededWrite(t *testing.T) {
	store := NewInMemoryStore()
	store.SetField("doc1", "status", value.MustOf("done"), 2, "svc-b")
	store.TakeDirty()

	outcome := store.SetField("doc1", "status", value.MustOf("pending"), 1, "svc-a")
	if outcome != document.Superseded {
		t.Errorf("Expected superseded, got %v", outcome)
	}
	if dirty := store.TakeDirty(); len(dirty) != 0 {
		t.Errorf("Superseded write should not mark document dirty, got %v", dirty)
	}
}

func TestInMemoryStore_Merge(t *testing.T) {
	store := NewInMemoryStore()
	store.SetField("doc1", "status", value.MustOf("pending"), 1, "svc-a")

	remote := document.New("doc1")
	remote.SetField("status", value.MustOf("done"), 2, "svc-b")
	remote.SetField("owner", value.MustOf("bob"), 1, "svc-b")

	res := store.Merge(remote)
	if res.Applied != 2 {
		t.Errorf("Expected 2 applied fields, got %d", res.Applied)
	}

	doc, _ := store.Get("doc1")
	if v, _ := doc.GetField("status"); v.Interface() != "done" {
		t.Errorf("Expected 'done', got %v", v)
	}

	// Merging the same snapshot again is a no-op.
	if res := store.Merge(remote); res.Applied != 0 {
		t.Errorf("Expected idempotent merge, got %d applied", res.Applied)
	}
}

func TestInMemoryStore_MergeCreatesDocument(t *testing.T) {
	store := NewInMemoryStore()
	remote := document.New("fresh")
	remote.SetField("a", value.MustOf(1), 1, "w")

	if res := store.Merge(remote); res.Applied != 1 {
		t.Errorf("Expected 1 applied field, got %d", res.Applied)
	}
	if ids := store.IDs(); len(ids) != 1 || ids[0] != "fresh" {
		t.Errorf("Expected [fresh], got %v", ids)
	}
	if res := store.Merge(nil); res.Applied != 0 {
		t.Error("Merging nil should be a no-op")
	}
}

func TestInMemoryStore_MergeDoesNotAliasInput(t *testing.T) {
	store := NewInMemoryStore()
	remote := document.New("doc1")
	remote.SetField("a", value.MustOf(1), 1, "w")
	store.Merge(remote)

	remote.SetField("a", value.MustOf(2), 2, "w")
	remote.SetField("b", value.MustOf(3), 1, "w")

	doc, _ := store.Get("doc1")
	if doc.Len() != 1 {
		t.Errorf("Store should not see later changes to merged input, got %d fields", doc.Len())
	}
}

func TestInMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewInMemoryStore()
	store.SetField("doc1", "a", value.MustOf("x"), 1, "w")

	doc1, _ := store.Get("doc1")
	doc1.SetField("a", value.MustOf("changed"), 9, "w")

	doc2, _ := store.Get("doc1")
	if v, _ := doc2.GetField("a"); v.Interface() != "x" {
		t.Error("Get should return independent copies")
	}
}

func TestInMemoryStore_Dirty(t *testing.T) {
	store := NewInMemoryStore()
	store.SetField("b", "f", value.MustOf(1), 1, "w")
	store.SetField("a", "f", value.MustOf(1), 1, "w")

	dirty := store.TakeDirty()
	if len(dirty) != 2 || dirty[0] != "a" || dirty[1] != "b" {
		t.Errorf("Expected [a b], got %v", dirty)
	}
	if dirty := store.TakeDirty(); len(dirty) != 0 {
		t.Errorf("Expected dirty set to be cleared, got %v", dirty)
	}

	store.MarkDirty("a", "unknown")
	if dirty := store.TakeDirty(); len(dirty) != 1 || dirty[0] != "a" {
		t.Errorf("Expected [a], got %v", dirty)
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			writer := fmt.Sprintf("w%d", i)
			for ts := uint64(1); ts <= 50; ts++ {
				store.SetField("doc1", "counter", value.MustOf(float64(ts)), ts, writer)
				store.Get("doc1")
			}
		}(i)
	}
	wg.Wait()

	// Highest timestamp, then greatest writer, wins.
	doc, ok := store.Get("doc1")
	if !ok {
		t.Fatal("Expected document after concurrent writes")
	}
	r, _ := doc.Register("counter")
	if r.Timestamp != 50 || r.WriterID != "w9" {
		t.Errorf("Expected 50/w9, got %d/%s", r.Timestamp, r.WriterID)
	}
}
