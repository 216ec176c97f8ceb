package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "nightjar:session:"

	// Concurrent turns on the same session are rare and each retry is a
	// cheap round trip, so the bound is generous before surfacing conflict.
	maxTxRetries = 32
)

// RedisStore keeps sessions in Redis so multiple replicas can share state.
// Atomicity of Update is provided by WATCH/MULTI optimistic transactions;
// on conflict the read-modify-write is retried, so the UpdateFunc may run
// more than once.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL sets the per-session key expiry, refreshed on every write.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// WithRedisNow overrides the store's clock. Test hook.
func WithRedisNow(now func() time.Time) RedisOption {
	return func(s *RedisStore) { s.now = now }
}

// NewRedisStore wraps an existing client. The caller owns the client's
// lifecycle up to Close.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    1 * time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// GetOrCreate implements Store.
func (s *RedisStore) GetOrCreate(ctx context.Context, id string) (Session, error) {
	return s.Update(ctx, id, func(*Session) {})
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (Session, error) {
	key := redisKey(id)
	var committed Session

	txn := func(tx *redis.Tx) error {
		sess, err := s.load(ctx, tx, id, key)
		if err != nil {
			return err
		}

		fn(&sess)

		payload, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		committed = sess
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return committed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Session{}, fmt.Errorf("update session %s: %w", id, err)
	}
	return Session{}, fmt.Errorf("update session %s: transaction contention after %d attempts", id, maxTxRetries)
}

// Snapshot implements Store.
func (s *RedisStore) Snapshot(ctx context.Context, id string) (Session, error) {
	data, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return decodeSession(id, data)
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) load(ctx context.Context, tx *redis.Tx, id, key string) (Session, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return newSession(id, s.now()), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return decodeSession(id, data)
}

func decodeSession(id string, data []byte) (Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.AskedTopics == nil {
		sess.AskedTopics = make(map[string]bool)
	}
	return sess, nil
}

var _ Store = (*RedisStore)(nil)
