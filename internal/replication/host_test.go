package replication

import (
	"context"
	"sort"
	"sync"

	"lwwdoc/internal/document"
)

// memHost is an in-memory Host for tests.
type memHost struct {
	mu   sync.Mutex
	docs map[string]*document.Document
}

func newMemHost(docs ...*document.Document) *memHost {
	h := &memHost{docs: make(map[string]*document.Document)}
	for _, d := range docs {
		h.docs[d.ID()] = d.Clone()
	}
	return h
}

func (h *memHost) Snapshot(_ context.Context, id string, since uint64) (*document.Document, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.docs[id]
	if !ok {
		return nil, false
	}
	return d.Delta(since), true
}

func (h *memHost) Merge(_ context.Context, doc *document.Document) (document.MergeResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.docs[doc.ID()]
	if !ok {
		d = document.New(doc.ID())
		h.docs[doc.ID()] = d
	}
	return d.Merge(doc), nil
}

func (h *memHost) IDs(_ context.Context) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.docs))
	for id := range h.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *memHost) get(id string) *document.Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.docs[id]
	if !ok {
		return nil
	}
	return d.Clone()
}
