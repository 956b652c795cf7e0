// Package objectstore is a small key/value blob abstraction used for the
// scheduler document and downloaded media. Keys are slash-separated paths.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

// ErrNotFound is returned by Get when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// Bucket stores opaque objects by key. Put must be atomic: a concurrent Get
// sees either the previous object or the new one, never a partial write.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Options selects and configures a bucket driver.
type Options struct {
	Driver        string // "fs", "memory" or "redis"
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open builds the bucket described by opts.
func Open(opts Options) (Bucket, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "fs":
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("storage path is required for the fs driver")
		}
		return NewFSBucket(afero.NewOsFs(), opts.Path)
	case "memory":
		return NewFSBucket(afero.NewMemMapFs(), "/")
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		return NewRedisBucket(client, opts.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}
}

func cleanKey(key string) (string, error) {
	k := strings.Trim(strings.TrimSpace(key), "/")
	if k == "" {
		return "", fmt.Errorf("object key is required")
	}
	for _, part := range strings.Split(k, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	return k, nil
}
