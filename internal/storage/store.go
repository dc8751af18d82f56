package storage

import (
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"lwwdoc/internal/document"
	"lwwdoc/internal/register"
	"lwwdoc/internal/value"
)

// Store defines the interface for the document registry.
type Store interface {
	// Get returns an independent copy of the document, if present.
	Get(id string) (*document.Document, bool)
	// SetField applies a write to a field, creating the document if needed.
	SetField(id, field string, v value.Value, ts uint64, writerID string) document.Outcome
	// Merge folds doc into the stored document with the same id.
	Merge(doc *document.Document) document.MergeResult
	// IDs returns the ids of all stored documents, sorted.
	IDs() []string
	// TakeDirty returns and clears the ids changed since the last call.
	TakeDirty() []string
	// MarkDirty flags ids as changed, e.g. after a failed flush.
	MarkDirty(ids ...string)
}

// InMemoryStore is an in-memory implementation of Store.
// It's thread-safe; documents never leave the store by reference.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]*document.Document
	dirty mapset.Set[string]
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:  make(map[string]*document.Document),
		dirty: mapset.NewThreadUnsafeSet[string](),
	}
}

// Get returns a copy of the document.
func (s *InMemoryStore) Get(id string) (*document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// SetField applies a write to a field.
func (s *InMemoryStore) SetField(id, field string, v value.Value, ts uint64, writerID string) document.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getOrCreate(id)
	outcome := doc.Apply(field, register.New(v, ts, writerID))
	if outcome.Applied() {
		s.dirty.Add(id)
	}
	return outcome
}

// Merge folds doc into the stored document with the same id.
func (s *InMemoryStore) Merge(doc *document.Document) document.MergeResult {
	if doc == nil {
		return document.MergeResult{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[doc.ID()]
	if !ok {
		// Merge into an empty document so the result reports every field.
		existing = document.New(doc.ID())
		s.docs[doc.ID()] = existing
	}

	res := existing.Merge(doc)
	if res.Applied > 0 {
		s.dirty.Add(doc.ID())
	}
	return res
}

// IDs returns all document ids, sorted.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TakeDirty returns and clears the set of changed ids.
func (s *InMemoryStore) TakeDirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.dirty.ToSlice()
	s.dirty.Clear()
	sort.Strings(ids)
	return ids
}

// MarkDirty flags ids as changed.
func (s *InMemoryStore) MarkDirty(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.docs[id]; ok {
			s.dirty.Add(id)
		}
	}
}

func (s *InMemoryStore) getOrCreate(id string) *document.Document {
	doc, ok := s.docs[id]
	if !ok {
		doc = document.New(id)
		s.docs[id] = doc
	}
	return doc
}
