package modelstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// RedisConfig configures the Redis model backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all keys (e.g., "behaviorflow:models:")
	Prefix string

	// TTL is the time-to-live for model keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		Prefix:       "behaviorflow:models:",
		Timeout:      5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisBackend stores model records as Redis strings. Each session keeps a
// set of its model IDs for List.
type RedisBackend struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	b := &RedisBackend{cfg: cfg, client: client}
	if err := b.Ping(ctx); err != nil {
		client.Close()
		return nil, errors.Wrap(err, errors.CodeStoreInit, "failed to connect to Redis").
			WithContext("address", cfg.Address)
	}
	return b, nil
}

func (b *RedisBackend) key(id string) string {
	return b.cfg.Prefix + id
}

func (b *RedisBackend) sessionKey(sessionID string) string {
	return b.cfg.Prefix + "session:" + sessionID
}

func (b *RedisBackend) allKey() string {
	return b.cfg.Prefix + "all"
}

// Save stores the record and indexes it by session in one pipeline.
func (b *RedisBackend) Save(ctx context.Context, rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.key(rec.ID), data, b.cfg.TTL)
	pipe.SAdd(ctx, b.sessionKey(rec.SessionID), rec.ID)
	pipe.SAdd(ctx, b.allKey(), rec.ID)
	if b.cfg.TTL > 0 {
		pipe.Expire(ctx, b.sessionKey(rec.SessionID), b.cfg.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to save record to Redis").
			WithContext("id", rec.ID)
	}
	return nil
}

// Load retrieves a record from Redis.
func (b *RedisBackend) Load(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.ModelNotFound(id)
		}
		return nil, errors.Wrap(err, errors.CodeStoreRead, "failed to load record from Redis").
			WithContext("id", id)
	}
	return decodeRecord(id, data)
}

// Delete removes a record and its index entries.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	rec, err := b.Load(ctx, id)
	if err != nil && !errors.IsCode(err, errors.CodeModelNotFound) {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.key(id))
	pipe.SRem(ctx, b.allKey(), id)
	if rec != nil {
		pipe.SRem(ctx, b.sessionKey(rec.SessionID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// List loads the records named by the session index, or by the global
// index when sessionID is empty. Expired entries are pruned from the index.
func (b *RedisBackend) List(ctx context.Context, sessionID string) ([]*Record, error) {
	index := b.allKey()
	if sessionID != "" {
		index = b.sessionKey(sessionID)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	ids, err := b.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreRead, "failed to read Redis index").
			WithContext("key", index)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.key(id)
	}
	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreRead, "failed to load records from Redis")
	}

	var (
		records []*Record
		stale   []interface{}
	)
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		rec, err := decodeRecord(ids[i], []byte(s))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	if len(stale) > 0 {
		b.client.SRem(ctx, index, stale...)
	}

	sortRecords(records)
	return records, nil
}

// Keys scans the key space under the configured prefix. It is meant for
// diagnostics; List should be used to enumerate models.
func (b *RedisBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, b.cfg.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasPrefix(key, b.sessionKey("")) || key == b.allKey() {
			continue
		}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return keys, nil
}

// Name returns "redis".
func (b *RedisBackend) Name() string {
	return "redis"
}

// Ping checks the Redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
