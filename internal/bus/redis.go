package bus

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisBus backs the notification queue with Redis: SET-with-TTL for
// publish, SCAN MATCH for enumeration, DEL for ack. Key expiry is left
// entirely to the server.
type RedisBus struct {
	client *redis.Client
}

// NewRedis connects to the Redis at addr and validates the connection.
func NewRedis(addr string) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "could not connect to redis at %s", addr)
	}
	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, key, body string, ttl time.Duration) error {
	if err := b.client.Set(ctx, key, body, ttl).Err(); err != nil {
		return errors.Wrapf(err, "could not publish %s", key)
	}
	return nil
}

func (b *RedisBus) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "could not scan %s", pattern)
	}
	return keys, nil
}

func (b *RedisBus) Fetch(ctx context.Context, key string) (string, bool, error) {
	body, err := b.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "could not fetch %s", key)
	}
	return body, true, nil
}

func (b *RedisBus) Ack(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "could not ack %s", key)
	}
	return nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
