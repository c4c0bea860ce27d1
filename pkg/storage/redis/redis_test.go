package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtrace/buildtrace/pkg/storage"
)

var errMockRedisUnavailable = errors.New("mock redis unavailable")

type mockRedisClient struct {
	goredis.Cmdable

	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	down atomic.Bool
}

func newMockRedisClient() *mockRedisClient {
	return &mockRedisClient{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockRedisClient) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd {
	if m.down.Load() {
		return goredis.NewStatusResult("", errMockRedisUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (m *mockRedisClient) Get(_ context.Context, key string) *goredis.StringCmd {
	if m.down.Load() {
		return goredis.NewStringResult("", errMockRedisUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (m *mockRedisClient) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	if m.down.Load() {
		return goredis.NewIntResult(0, errMockRedisUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			delete(m.ttls, key)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

// TestRedisStorageSuite runs the full cache test suite against RedisStorage.
func TestRedisStorageSuite(t *testing.T) {
	suite := &storage.RunCacheTestSuite{
		NewCache: func(t *testing.T) storage.RunCache {
			return NewRedisStorage(newMockRedisClient(), Config{KeyPrefix: "test:"})
		},
	}

	suite.RunAllTests(t)
}

func TestRedisStorage_KeyAndTTL(t *testing.T) {
	client := newMockRedisClient()
	s := NewRedisStorage(client, Config{KeyPrefix: "buildtrace:", TTL: time.Hour})

	require.NoError(t, s.SaveRun(context.Background(), storage.SampleRun("55")))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Contains(t, client.data, "buildtrace:run:55:1")
	assert.Equal(t, time.Hour, client.ttls["buildtrace:run:55:1"])
}

func TestRedisStorage_Unavailable(t *testing.T) {
	client := newMockRedisClient()
	s := NewRedisStorage(client, Config{})
	ctx := context.Background()
	client.down.Store(true)

	var unavailable *storage.StorageUnavailableError
	assert.ErrorAs(t, s.SaveRun(ctx, storage.SampleRun("1")), &unavailable)

	key := storage.RunKey{ID: "1", Attempt: 1}
	_, err := s.GetRun(ctx, key)
	assert.ErrorAs(t, err, &unavailable)
	assert.False(t, storage.IsNotFound(err))

	assert.ErrorAs(t, s.DeleteRun(ctx, key), &unavailable)
	assert.NoError(t, s.Close())
}

func TestRedisStorage_CorruptValue(t *testing.T) {
	client := newMockRedisClient()
	client.data["run:9:1"] = "{not json"
	s := NewRedisStorage(client, Config{})

	_, err := s.GetRun(context.Background(), storage.RunKey{ID: "9", Attempt: 1})
	var serr *storage.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "unmarshal", serr.Operation)
}
