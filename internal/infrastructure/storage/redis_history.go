package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

const defaultRedisPrefix = "regtracker"

var errHashMismatch = errors.New("content hash mismatch")

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisHistory is a HistoryStore shared between processes through Redis.
// The latest entry lives in a string key, revisions in a list, and the
// fingerprint index maps to the first key that stored the content.
type RedisHistory struct {
	client *redis.Client
	prefix string
}

var _ ports.HistoryStore = (*RedisHistory)(nil)

// NewRedisHistory wraps an existing client. An empty prefix uses "regtracker".
func NewRedisHistory(client *redis.Client, prefix string) *RedisHistory {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisHistory{client: client, prefix: prefix}
}

func (r *RedisHistory) latestKey(id string) string { return r.prefix + ":history:" + id }
func (r *RedisHistory) revisionsKey(id string) string { return r.prefix + ":revisions:" + id }
func (r *RedisHistory) fingerprintKey(fp string) string { return r.prefix + ":fingerprint:" + fp }

// Get returns the latest entry for key.
func (r *RedisHistory) Get(ctx context.Context, key domain.HistoryKey) (domain.HistoryEntry, bool, error) {
	return r.load(ctx, r.client, r.latestKey(key.String()))
}

// CompareAndSet uses WATCH/MULTI so a concurrent writer aborts the transaction.
func (r *RedisHistory) CompareAndSet(ctx context.Context, key domain.HistoryKey, expectedHash string, entry domain.HistoryEntry) (bool, error) {
	id := key.String()
	latest := r.latestKey(id)

	entry.Key = key
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshal entry: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, found, err := r.load(ctx, tx, latest)
		if err != nil {
			return err
		}
		if (expectedHash == "" && found) || (expectedHash != "" && (!found || current.ContentHash != expectedHash)) {
			return errHashMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, latest, payload, 0)
			pipe.RPush(ctx, r.revisionsKey(id), payload)
			pipe.SetNX(ctx, r.fingerprintKey(entry.Fingerprint), id, 0)
			return nil
		})
		return err
	}, latest)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errHashMismatch), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis cas: %w", err)
	}
}

// FindByFingerprint resolves the fingerprint index to the stored revision.
func (r *RedisHistory) FindByFingerprint(ctx context.Context, fingerprint string) (domain.HistoryEntry, bool, error) {
	id, err := r.client.Get(ctx, r.fingerprintKey(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.HistoryEntry{}, false, nil
	}
	if err != nil {
		return domain.HistoryEntry{}, false, fmt.Errorf("redis get fingerprint: %w", err)
	}

	revs, err := r.revisions(ctx, id)
	if err != nil {
		return domain.HistoryEntry{}, false, err
	}
	for _, rev := range revs {
		if rev.Fingerprint == fingerprint {
			return rev, true, nil
		}
	}
	return domain.HistoryEntry{}, false, nil
}

// Revisions returns the revision list for key, oldest first.
func (r *RedisHistory) Revisions(ctx context.Context, key domain.HistoryKey) ([]domain.HistoryEntry, error) {
	return r.revisions(ctx, key.String())
}

func (r *RedisHistory) revisions(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	raw, err := r.client.LRange(ctx, r.revisionsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]domain.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		entry, err := decodeEntry([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *RedisHistory) load(ctx context.Context, c stringGetter, key string) (domain.HistoryEntry, bool, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.HistoryEntry{}, false, nil
	}
	if err != nil {
		return domain.HistoryEntry{}, false, fmt.Errorf("redis get: %w", err)
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return domain.HistoryEntry{}, false, err
	}
	return entry, true, nil
}

func decodeEntry(raw []byte) (domain.HistoryEntry, error) {
	var entry domain.HistoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("decode entry: %w", err)
	}
	entry.Key = entry.Document.Key()
	return entry, nil
}
