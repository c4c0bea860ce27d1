// Package redis provides a Redis-backed run cache.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
	"github.com/buildtrace/buildtrace/pkg/storage"
)

// Config holds configuration for RedisStorage.
type Config struct {
	KeyPrefix string
	// TTL is the expiry of cached runs; 0 keeps them forever.
	TTL time.Duration
}

// RedisStorage implements storage.RunCache on a Redis client.
type RedisStorage struct {
	client goredis.Cmdable
	closer func() error
	config Config
}

// NewRedisStorage wraps an existing client. Close does not close client.
func NewRedisStorage(client goredis.Cmdable, config Config) *RedisStorage {
	return &RedisStorage{client: client, config: config}
}

// Open connects to addr and verifies the connection.
func Open(ctx context.Context, opts *goredis.Options, config Config) (*RedisStorage, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	s := NewRedisStorage(client, config)
	s.closer = client.Close
	return s, nil
}

func (r *RedisStorage) runKey(key storage.RunKey) string {
	return r.config.KeyPrefix + "run:" + key.String()
}

// SaveRun stores run with the configured TTL.
func (r *RedisStorage) SaveRun(ctx context.Context, run *buildtrace.WorkflowRun) error {
	if err := storage.ValidateRun(run); err != nil {
		return err
	}
	data, err := storage.Serialize(run)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.runKey(storage.KeyOf(run)), data, r.config.TTL).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// GetRun retrieves one attempt of a run.
func (r *RedisStorage) GetRun(ctx context.Context, key storage.RunKey) (*buildtrace.WorkflowRun, error) {
	data, err := r.client.Get(ctx, r.runKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.RunNotFound(key)
		}
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	var run buildtrace.WorkflowRun
	if err := storage.Deserialize(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteRun removes a run.
func (r *RedisStorage) DeleteRun(ctx context.Context, key storage.RunKey) error {
	n, err := r.client.Del(ctx, r.runKey(key)).Result()
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	if n == 0 {
		return storage.RunNotFound(key)
	}
	return nil
}

// Close closes the client when it was opened by Open.
func (r *RedisStorage) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
