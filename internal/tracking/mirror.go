package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror publishes session records so instances that do not own a session can
// still serve its snapshot and attach viewers. The owning Store is the only
// writer of a record; viewer counters are written by the viewing instances.
type Mirror interface {
	Save(ctx context.Context, snap Snapshot, ttl time.Duration) error
	Load(ctx context.Context, id string) (Snapshot, error)
	Delete(ctx context.Context, id string) error
	AddViewers(ctx context.Context, id string, delta int64, ttl time.Duration) (int, error)
	Viewers(ctx context.Context, id string) (int, error)
}

type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

func sessionKey(id string) string {
	return "tracking:" + id + ":session"
}

func viewersKey(id string) string {
	return "tracking:" + id + ":viewers"
}

func (m *RedisMirror) Save(ctx context.Context, snap Snapshot, ttl time.Duration) error {
	snap.Viewers = 0
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := m.rdb.Set(ctx, sessionKey(snap.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", snap.ID, err)
	}
	return nil
}

// Load returns ErrNotFound when the record is absent or has expired.
func (m *RedisMirror) Load(ctx context.Context, id string) (Snapshot, error) {
	payload, err := m.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load session %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return snap, nil
}

func (m *RedisMirror) Delete(ctx context.Context, id string) error {
	return m.rdb.Del(ctx, sessionKey(id), viewersKey(id)).Err()
}

// AddViewers adjusts the remote viewer counter and returns the new value. The
// counter shares the record's expiry and is removed once it drops to zero.
func (m *RedisMirror) AddViewers(ctx context.Context, id string, delta int64, ttl time.Duration) (int, error) {
	key := viewersKey(id)
	pipe := m.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count viewers %s: %w", id, err)
	}
	n := incr.Val()
	if n <= 0 {
		if err := m.rdb.Del(ctx, key).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return int(n), nil
}

func (m *RedisMirror) Viewers(ctx context.Context, id string) (int, error) {
	n, err := m.rdb.Get(ctx, viewersKey(id)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}
