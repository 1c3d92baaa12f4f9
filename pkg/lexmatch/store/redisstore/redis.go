// Package redisstore keeps serialized index snapshots in Redis so that
// several processes can share one build.
package redisstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/cognicore/lexmatch/pkg/lexmatch/internalerr"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

const modifiedSuffix = ":modified"

// Commander is the subset of the go-redis client the store needs.
type Commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Config holds Redis connection configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Store implements store.ArtifactStore. Each artifact is two keys: the
// blob and its modification time, written with the same expiry.
type Store struct {
	client Commander
	prefix string
	now    func() time.Time
}

// New wraps an existing client.
func New(client Commander, prefix string) *Store {
	return &Store{client: client, prefix: prefix, now: time.Now}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*Store, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "redis ping %s", cfg.Addr)
	}
	return New(client, cfg.Prefix), client, nil
}

// Get implements store.ArtifactStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, internalerr.ErrNotFound
	}
	if err != nil {
		return nil, internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "redis get")
	}
	return val, nil
}

// Put implements store.ArtifactStore. A non-positive ttl never expires.
func (s *Store) Put(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, blob, ttl).Err(); err != nil {
		return internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "redis set")
	}
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.client.Set(ctx, s.prefix+key+modifiedSuffix, stamp, ttl).Err(); err != nil {
		return internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "redis set modified")
	}
	return nil
}

// Modified implements store.ArtifactStore.
func (s *Store) Modified(ctx context.Context, key string) (time.Time, error) {
	val, err := s.client.Get(ctx, s.prefix+key+modifiedSuffix).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, internalerr.ErrNotFound
	}
	if err != nil {
		return time.Time{}, internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "redis get modified")
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse modified time of %s", key)
	}
	return t, nil
}

// Delete implements store.ArtifactStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key, s.prefix+key+modifiedSuffix).Err(); err != nil {
		return internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "redis delete")
	}
	return nil
}

var _ store.ArtifactStore = (*Store)(nil)
