package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"

	"lwwdoc/internal/document"
)

// MemcachedBackend stores each snapshot under a hashed key, since memcached
// keys are limited in length and charset, and keeps the id index in a
// single item updated with compare-and-swap.
type MemcachedBackend struct {
	client *memcache.Client
	prefix string
}

// NewMemcached creates a memcached client.
func NewMemcached(server string) *memcache.Client {
	return memcache.New(server)
}

// NewMemcachedBackend creates a backend on top of client.
func NewMemcachedBackend(client *memcache.Client, prefix string) *MemcachedBackend {
	return &MemcachedBackend{client: client, prefix: prefix}
}

// Save merges doc with the stored snapshot and adds its id to the index.
func (b *MemcachedBackend) Save(ctx context.Context, doc *document.Document) error {
	err := b.update(ctx, b.docKey(doc.ID()), func(old []byte) ([]byte, error) {
		merged := doc.Clone()
		if old != nil {
			stored := document.New(doc.ID())
			if err := json.Unmarshal(old, stored); err != nil {
				return nil, err
			}
			merged.Merge(stored)
		}
		return json.Marshal(merged)
	})
	if err != nil {
		return errors.Wrapf(err, "memcached save %s", doc.ID())
	}

	err = b.update(ctx, b.indexKey(), func(old []byte) ([]byte, error) {
		var ids []string
		if old != nil {
			if err := json.Unmarshal(old, &ids); err != nil {
				return nil, err
			}
		}
		i := sort.SearchStrings(ids, doc.ID())
		if i < len(ids) && ids[i] == doc.ID() {
			return nil, nil
		}
		ids = append(ids, "")
		copy(ids[i+1:], ids[i:])
		ids[i] = doc.ID()
		return json.Marshal(ids)
	})
	return errors.Wrapf(err, "memcached index %s", doc.ID())
}

// Load reads a snapshot.
func (b *MemcachedBackend) Load(_ context.Context, id string) (*document.Document, error) {
	item, err := b.client.Get(b.docKey(id))
	if err == memcache.ErrCacheMiss {
		return nil, NotFoundError{ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "memcached load %s", id)
	}

	doc := document.New(id)
	if err := json.Unmarshal(item.Value, doc); err != nil {
		return nil, err
	}
	if doc.ID() != id {
		// hashed key collision
		return nil, NotFoundError{ID: id}
	}
	return doc, nil
}

// List returns the ids in the index.
func (b *MemcachedBackend) List(_ context.Context) ([]string, error) {
	item, err := b.client.Get(b.indexKey())
	if err == memcache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "memcached list")
	}

	var ids []string
	if err := json.Unmarshal(item.Value, &ids); err != nil {
		return nil, errors.Wrap(err, "memcached index")
	}
	return ids, nil
}

// Close closes idle connections.
func (b *MemcachedBackend) Close() error {
	return b.client.Close()
}

// update performs a read-modify-write of key. fn receives nil when the
// key is absent and may return nil to leave the item unchanged.
func (b *MemcachedBackend) update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	for i := 0; i < maxSaveAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, err := b.client.Get(key)
		switch {
		case err == memcache.ErrCacheMiss:
			out, err := fn(nil)
			if err != nil || out == nil {
				return err
			}
			err = b.client.Add(&memcache.Item{Key: key, Value: out})
			if err == memcache.ErrNotStored {
				continue
			}
			return err
		case err != nil:
			return err
		}

		out, err := fn(item.Value)
		if err != nil || out == nil {
			return err
		}
		item.Value = out
		err = b.client.CompareAndSwap(item)
		if err == memcache.ErrCASConflict || err == memcache.ErrNotStored {
			continue
		}
		return err
	}
	return errors.Errorf("too many concurrent writers on %s", key)
}

func (b *MemcachedBackend) docKey(id string) string {
	sum := xxh3.HashString128(id).Bytes()
	return b.prefix + "doc:" + hex.EncodeToString(sum[:])
}

func (b *MemcachedBackend) indexKey() string {
	return b.prefix + "ids"
}
