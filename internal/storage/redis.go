package storage

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"lwwdoc/internal/document"
)

const maxSaveAttempts = 8

// RedisBackend stores each snapshot under <prefix>doc:<id> and indexes
// ids in the set <prefix>ids.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a redis client.
func NewRedis(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisBackend creates a backend on top of client.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

// Save merges doc with the stored snapshot inside a WATCH transaction.
func (b *RedisBackend) Save(ctx context.Context, doc *document.Document) error {
	key := b.docKey(doc.ID())

	txf := func(tx *redis.Tx) error {
		merged := doc.Clone()

		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			stored := document.New(doc.ID())
			if err := json.Unmarshal(data, stored); err != nil {
				return err
			}
			merged.Merge(stored)
		}

		out, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			pipe.SAdd(ctx, b.idsKey(), doc.ID())
			return nil
		})
		return err
	}

	for i := 0; i < maxSaveAttempts; i++ {
		err := b.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "redis save %s", doc.ID())
		}
		return nil
	}
	return errors.Errorf("redis save %s: too many concurrent writers", doc.ID())
}

// Load reads a snapshot.
func (b *RedisBackend) Load(ctx context.Context, id string) (*document.Document, error) {
	data, err := b.client.Get(ctx, b.docKey(id)).Bytes()
	if err == redis.Nil {
		return nil, NotFoundError{ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis load %s", id)
	}

	doc := document.New(id)
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the ids of all stored documents.
func (b *RedisBackend) List(ctx context.Context) ([]string, error) {
	ids, err := b.client.SMembers(ctx, b.idsKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis list")
	}
	return ids, nil
}

// Close closes the client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) docKey(id string) string {
	return b.prefix + "doc:" + id
}

func (b *RedisBackend) idsKey() string {
	return b.prefix + "ids"
}
