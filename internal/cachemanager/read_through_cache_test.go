package cachemanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadThroughCache_LoadsOnce(t *testing.T) {
	calls := 0
	rt := NewReadThroughCache[hostKey, string, int](newCache[string](),
		func(_ context.Context, n int) (string, error) {
			calls++
			return "value", nil
		}, NoExpiration)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := rt.Get(ctx, "k", i)
		require.NoError(t, err)
		require.Equal(t, "value", got)
	}
	require.Equal(t, 1, calls)
}

func TestReadThroughCache_ErrorIsNotCached(t *testing.T) {
	fail := true
	rt := NewReadThroughCache[hostKey, string, struct{}](newCache[string](),
		func(context.Context, struct{}) (string, error) {
			if fail {
				return "", errors.New("boom")
			}
			return "ok", nil
		}, NoExpiration)

	ctx := context.Background()
	_, err := rt.Get(ctx, "k", struct{}{})
	require.EqualError(t, err, "boom")

	fail = false
	got, err := rt.Get(ctx, "k", struct{}{})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
}

func TestReadThroughCache_Invalidate(t *testing.T) {
	calls := 0
	rt := NewReadThroughCache[hostKey, int, struct{}](newCache[int](),
		func(context.Context, struct{}) (int, error) {
			calls++
			return calls, nil
		}, NoExpiration)

	ctx := context.Background()
	first, _ := rt.Get(ctx, "k", struct{}{})
	rt.Invalidate(ctx, "k")
	second, _ := rt.Get(ctx, "k", struct{}{})
	require.Equal(t, 1, first)
	require.Equal(t, 2, second)
}
