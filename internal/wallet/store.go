package wallet

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Persisted hint keys
const (
	KeyManualDisconnect = "wallet_manual_disconnect"
	KeyUserConnected    = "wallet_user_connected"
)

// Hints are the flags that survive restarts and gate auto-reconnect
type Hints struct {
	ManualDisconnect bool `json:"manual_disconnect"`
	UserHadConnected bool `json:"user_had_connected"`
}

// SessionStore persists Hints
type SessionStore interface {
	Load(ctx context.Context) (Hints, error)
	Save(ctx context.Context, hints Hints) error
}

// MemorySessionStore keeps hints in memory
type MemorySessionStore struct {
	mu    sync.Mutex
	hints Hints
}

// NewMemorySessionStore creates an empty in-memory store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Load returns the stored hints
func (m *MemorySessionStore) Load(ctx context.Context) (Hints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hints, nil
}

// Save stores hints
func (m *MemorySessionStore) Save(ctx context.Context, hints Hints) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hints = hints
	return nil
}

// RedisSessionStore keeps hints in redis under <namespace>:<key>
type RedisSessionStore struct {
	client    redis.Cmdable
	namespace string
	timeout   time.Duration
}

// NewRedisSessionStore creates a redis-backed store
func NewRedisSessionStore(client redis.Cmdable, namespace string, timeout time.Duration) *RedisSessionStore {
	if namespace == "" {
		namespace = "wallet"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedisSessionStore{client: client, namespace: namespace, timeout: timeout}
}

func (r *RedisSessionStore) key(name string) string {
	return r.namespace + ":" + name
}

// Load reads both hints; missing keys read as false
func (r *RedisSessionStore) Load(ctx context.Context) (Hints, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	manual, err := r.readFlag(ctx, KeyManualDisconnect)
	if err != nil {
		return Hints{}, err
	}
	connected, err := r.readFlag(ctx, KeyUserConnected)
	if err != nil {
		return Hints{}, err
	}
	return Hints{ManualDisconnect: manual, UserHadConnected: connected}, nil
}

func (r *RedisSessionStore) readFlag(ctx context.Context, name string) (bool, error) {
	val, err := r.client.Get(ctx, r.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(val)
}

// Save writes both hints
func (r *RedisSessionStore) Save(ctx context.Context, hints Hints) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key(KeyManualDisconnect), strconv.FormatBool(hints.ManualDisconnect), 0).Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(KeyUserConnected), strconv.FormatBool(hints.UserHadConnected), 0).Err()
}
