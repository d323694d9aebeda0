package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFromClient(client, "labportal:"), mr
}

func TestRedisSetGetTake(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	require.NoError(t, c.Set(ctx, "draft:er:ann", draft{Title: "Rheometer"}, 24*time.Hour))
	assert.True(t, mr.Exists("labportal:draft:er:ann"))
	assert.Equal(t, 24*time.Hour, mr.TTL("labportal:draft:er:ann"))

	var got draft
	require.NoError(t, c.Get(ctx, "draft:er:ann", &got))
	assert.Equal(t, "Rheometer", got.Title)

	got = draft{}
	require.NoError(t, c.Take(ctx, "draft:er:ann", &got))
	assert.Equal(t, "Rheometer", got.Title)
	assert.ErrorIs(t, c.Take(ctx, "draft:er:ann", &got), ErrMiss)
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	require.NoError(t, c.Set(ctx, "session:1", draft{Title: "x"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	var got draft
	assert.ErrorIs(t, c.Get(ctx, "session:1", &got), ErrMiss)
}

func TestRedisDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)
	require.NoError(t, c.Ping(ctx))

	require.NoError(t, c.Set(ctx, "k", 1, 0))
	require.NoError(t, c.Delete(ctx, "k"))
	assert.False(t, mr.Exists("labportal:k"))
}
