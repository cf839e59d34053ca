package geocache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding the cache.
const DefaultRedisKey = "atlas:geocode"

// RedisBackend stores the cache in one redis hash, field token, value the
// JSON record.
type RedisBackend struct {
	client *redis.Client
	key    string
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend creates a backend over client. An empty key uses
// DefaultRedisKey.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: client, key: key}
}

// OpenRedis connects to addr. An empty addr returns nil.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Load reads every field of the hash; malformed values are skipped.
func (b *RedisBackend) Load(ctx context.Context) (map[string]Entry, error) {
	fields, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", b.key, err)
	}
	out := make(map[string]Entry, len(fields))
	for token, raw := range fields {
		if e, ok := decodeRedisValue(raw); ok {
			out[token] = e
		}
	}
	return out, nil
}

// Save replaces the hash atomically.
func (b *RedisBackend) Save(ctx context.Context, entries map[string]Entry) error {
	values := make(map[string]any, len(entries))
	for token, e := range entries {
		v, err := encodeRedisValue(e)
		if err != nil {
			return err
		}
		values[token] = v
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		if len(values) > 0 {
			pipe.HSet(ctx, b.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", b.key, err)
	}
	return nil
}

func encodeRedisValue(e Entry) (string, error) {
	data, err := json.Marshal(encode(e))
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}
	return string(data), nil
}

func decodeRedisValue(raw string) (Entry, bool) {
	var r *record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Entry{}, false
	}
	return decode(r)
}
