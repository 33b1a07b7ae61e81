// Package redis is a shared store.Store on Redis. With it, one full fetch per
// (namespace, version) serves every replica pointing at the same Redis.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flagcache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

const defaultPrefix = "flagcache:"

type Store struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var _ store.Store = (*Store)(nil)

type Config struct {
	Client goredis.UniversalClient
	// Prefix is prepended to every key; "" => "flagcache:".
	// Replicas that should share fetches must use the same prefix.
	Prefix      string
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	p := cfg.Prefix
	if p == "" {
		p = defaultPrefix
	}
	return &Store{rdb: cfg.Client, prefix: p, closeClient: cfg.CloseClient}, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set writes only when the key is absent. Snapshot entries never change for
// a given key, so the first replica to store one wins and the rest report
// ok=false. ttl <= 0 means no expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.rdb.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// Close releases the underlying redis client only when this store owns it.
// Repeated calls are no-ops.
func (s *Store) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
