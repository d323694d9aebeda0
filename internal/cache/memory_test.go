package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type draft struct {
	Title string `json:"title"`
}

func TestMemoryTakeConsumesOnce(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	require.NoError(t, c.Set(ctx, "draft:ntr:ann", draft{Title: "MFI"}, time.Hour))

	var got draft
	require.NoError(t, c.Take(ctx, "draft:ntr:ann", &got))
	assert.Equal(t, "MFI", got.Title)

	assert.ErrorIs(t, c.Take(ctx, "draft:ntr:ann", &got), ErrMiss)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	c := NewMemory().WithClock(func() time.Time { return now })

	require.NoError(t, c.Set(ctx, "k", draft{Title: "x"}, time.Minute))
	var got draft
	require.NoError(t, c.Get(ctx, "k", &got))

	now = now.Add(time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrMiss)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	require.NoError(t, c.Set(ctx, "k", 1, 0))
	require.NoError(t, c.Delete(ctx, "k"))

	var n int
	assert.ErrorIs(t, c.Get(ctx, "k", &n), ErrMiss)
}
