package storage

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"lwwdoc/internal/document"
)

// NotFoundError represents a document missing from a backend.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "document not found"
	}
	return fmt.Sprintf("document %s not found", e.ID)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing documents.
var ErrNotFound = NotFoundError{}

// Backend persists document snapshots. Save must merge with whatever is
// already stored rather than overwrite it.
type Backend interface {
	Save(ctx context.Context, doc *document.Document) error
	Load(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

// NopBackend keeps nothing. It is used by memory-only nodes.
type NopBackend struct{}

func (NopBackend) Save(context.Context, *document.Document) error { return nil }

func (NopBackend) Load(_ context.Context, id string) (*document.Document, error) {
	return nil, NotFoundError{ID: id}
}

func (NopBackend) List(context.Context) ([]string, error) { return nil, nil }

func (NopBackend) Close() error { return nil }

// Flush saves every document changed since the last flush. Documents that
// fail to save stay dirty. It returns the number saved.
func Flush(ctx context.Context, store Store, backend Backend) (int, error) {
	var (
		saved  int
		failed []string
		first  error
	)

	for _, id := range store.TakeDirty() {
		doc, ok := store.Get(id)
		if !ok {
			continue
		}
		if err := backend.Save(ctx, doc); err != nil {
			failed = append(failed, id)
			if first == nil {
				first = errors.Wrapf(err, "save %s", id)
			}
			continue
		}
		saved++
	}

	if len(failed) > 0 {
		store.MarkDirty(failed...)
		return saved, errors.Wrapf(first, "%d documents not saved", len(failed))
	}
	return saved, nil
}

// Restore merges every persisted document into store and returns the
// number of documents loaded.
func Restore(ctx context.Context, store Store, backend Backend) (int, error) {
	ids, err := backend.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list documents")
	}

	loaded := 0
	for _, id := range ids {
		doc, err := backend.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return loaded, errors.Wrapf(err, "load %s", id)
		}
		store.Merge(doc)
		loaded++
	}
	// Restored state is already persisted.
	store.TakeDirty()
	return loaded, nil
}
