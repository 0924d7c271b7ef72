package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

const defaultPrefix = "conv_session:"

// Store keeps session state as JSON values with a TTL plus a ZSET index
// scored by expiry, so listing can prune dead ids lazily without scanning
// the keyspace.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func New(addr, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient wraps an existing client, useful for tests.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(sessionID string) string { return s.prefix + sessionID }

func (s *Store) indexKey() string { return s.prefix + "index" }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "session get", fmt.Errorf("id %s", sessionID))
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "session get", err)
	}

	var state domain.SessionState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "session decode", err)
	}
	if state.Expired(time.Now()) {
		// The key TTL lags the logical expiry by at most one save; treat
		// it the same as a missing session.
		return nil, domain.WrapError(domain.ErrSessionNotFound, "session get", fmt.Errorf("id %s expired", sessionID))
	}
	return &state, nil
}

func (s *Store) Save(ctx context.Context, state *domain.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "session encode", err)
	}

	ttl := s.ttl
	if !state.ExpiresAt.IsZero() {
		if remaining := time.Until(state.ExpiresAt); remaining > 0 {
			ttl = remaining
		}
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(state.SessionID), data, ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(time.Now().Add(ttl).Unix()),
		Member: state.SessionID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.WrapError(domain.ErrBackendUnavailable, "session save", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.WrapError(domain.ErrBackendUnavailable, "session delete", err)
	}
	return nil
}

// List prunes expired ids from the index, then returns the live ones.
func (s *Store) List(ctx context.Context, limit int) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "session prune", err)
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "session list", err)
	}
	return ids, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
