package objectstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBucket stores each object as a plain string value under prefix+key.
type RedisBucket struct {
	Client *redis.Client
	prefix string
}

func NewRedisBucket(client *redis.Client, prefix string) *RedisBucket {
	return &RedisBucket{Client: client, prefix: prefix}
}

func (b *RedisBucket) redisKey(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return b.prefix + k, nil
}

func (b *RedisBucket) Get(ctx context.Context, key string) ([]byte, error) {
	rk, err := b.redisKey(key)
	if err != nil {
		return nil, err
	}
	data, err := b.Client.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (b *RedisBucket) Put(ctx context.Context, key string, data []byte) error {
	rk, err := b.redisKey(key)
	if err != nil {
		return err
	}
	if err := b.Client.Set(ctx, rk, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBucket) Exists(ctx context.Context, key string) (bool, error) {
	rk, err := b.redisKey(key)
	if err != nil {
		return false, err
	}
	n, err := b.Client.Exists(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (b *RedisBucket) Delete(ctx context.Context, key string) error {
	rk, err := b.redisKey(key)
	if err != nil {
		return err
	}
	if err := b.Client.Del(ctx, rk).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (b *RedisBucket) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	iter := b.Client.Scan(ctx, 0, b.prefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), b.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping checks the connection; used by the health endpoint.
func (b *RedisBucket) Ping(ctx context.Context) error {
	return b.Client.Ping(ctx).Err()
}
