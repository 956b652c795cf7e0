package objectstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := NewRedisBucket(client, "bv:")
	ctx := context.Background()

	_, err := b.Get(ctx, "scheduler/state.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Put(ctx, "scheduler/state.json", []byte(`{"active":true}`)))
	got, err := b.Get(ctx, "scheduler/state.json")
	require.NoError(t, err)
	assert.Equal(t, `{"active":true}`, string(got))

	raw, err := mr.Get("bv:scheduler/state.json")
	require.NoError(t, err)
	assert.Equal(t, `{"active":true}`, raw)

	require.NoError(t, b.Put(ctx, "beats/youtube/x.json", []byte("{}")))
	keys, err := b.List(ctx, "beats/")
	require.NoError(t, err)
	assert.Equal(t, []string{"beats/youtube/x.json"}, keys)

	ok, err := b.Exists(ctx, "beats/youtube/x.json")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Delete(ctx, "beats/youtube/x.json"))
	ok, err = b.Exists(ctx, "beats/youtube/x.json")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, b.Ping(ctx))
}

func TestRedisBucket_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	b := NewRedisBucket(client, "")
	mr.Close()

	err := b.Put(context.Background(), "k", []byte("v"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
