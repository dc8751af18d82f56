package service

import (
	"context"

	"github.com/pkg/errors"

	"lwwdoc/internal/clock"
	"lwwdoc/internal/document"
	"lwwdoc/internal/storage"
	"lwwdoc/internal/value"
)

// ErrInvalidArgument is returned for requests naming an empty document id
// or field.
var ErrInvalidArgument = errors.New("invalid argument")

// SetFieldRequest is a single field write.
type SetFieldRequest struct {
	ID    string
	Field string
	Value value.Value
	// Timestamp of the write. Zero stamps the write with the node clock.
	Timestamp uint64
	// WriterID of the write. Empty means the local node.
	WriterID string
}

// Service is the document API of a node.
type Service interface {
	// SetField applies a write and reports its outcome.
	SetField(ctx context.Context, req SetFieldRequest) (document.Outcome, error)
	// GetField returns the current value of a field.
	GetField(ctx context.Context, id, field string) (value.Value, bool)
	// Export returns the flat view of a document.
	Export(ctx context.Context, id string) (map[string]any, bool)
	// Snapshot returns the registers of a document written after since.
	Snapshot(ctx context.Context, id string, since uint64) (*document.Document, bool)
	// Merge folds a remote snapshot into the local document with its id.
	Merge(ctx context.Context, doc *document.Document) (document.MergeResult, error)
	// IDs returns the ids of all local documents.
	IDs(ctx context.Context) []string
}

type service struct {
	nodeID string
	store  storage.Store
	clock  *clock.Lamport
}

// New creates a service storing documents in store and stamping local
// writes with clk.
func New(nodeID string, store storage.Store, clk *clock.Lamport) Service {
	return &service{
		nodeID: nodeID,
		store:  store,
		clock:  clk,
	}
}

func (s *service) SetField(_ context.Context, req SetFieldRequest) (document.Outcome, error) {
	if req.ID == "" {
		return document.Superseded, errors.Wrap(ErrInvalidArgument, "document id cannot be empty")
	}
	if req.Field == "" {
		return document.Superseded, errors.Wrap(ErrInvalidArgument, "field cannot be empty")
	}

	ts := req.Timestamp
	if ts == 0 {
		ts = s.clock.Tick()
	} else {
		s.clock.Observe(ts)
	}

	writer := req.WriterID
	if writer == "" {
		writer = s.nodeID
	}

	return s.store.SetField(req.ID, req.Field, req.Value, ts, writer), nil
}

func (s *service) GetField(_ context.Context, id, field string) (value.Value, bool) {
	doc, ok := s.store.Get(id)
	if !ok {
		return value.Value{}, false
	}
	return doc.GetField(field)
}

func (s *service) Export(_ context.Context, id string) (map[string]any, bool) {
	doc, ok := s.store.Get(id)
	if !ok {
		return nil, false
	}
	return doc.ToJSON(), true
}

func (s *service) Snapshot(_ context.Context, id string, since uint64) (*document.Document, bool) {
	doc, ok := s.store.Get(id)
	if !ok {
		return nil, false
	}
	if since == 0 {
		return doc, true
	}
	return doc.Delta(since), true
}

func (s *service) Merge(_ context.Context, doc *document.Document) (document.MergeResult, error) {
	if doc == nil || doc.ID() == "" {
		return document.MergeResult{}, errors.Wrap(ErrInvalidArgument, "document id cannot be empty")
	}
	s.clock.Observe(doc.MaxTimestamp())
	return s.store.Merge(doc), nil
}

func (s *service) IDs(_ context.Context) []string {
	return s.store.IDs()
}
