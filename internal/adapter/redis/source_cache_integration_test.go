package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceCache_PopulatesRedis(t *testing.T) {
	client := setupTestClient(t)
	source := fixedSource("render(<p />)")
	cache := NewSourceCache(client, source, 10*time.Second, clockwork.NewFakeClock(), nil)
	ctx := context.Background()
	key := uuid.New()

	_, err := cache.GetSourceByKey(ctx, key)
	require.NoError(t, err)

	cached, err := client.Get(ctx, sourceCacheKey(key)).Result()
	require.NoError(t, err)
	assert.Equal(t, "render(<p />)", cached)

	ttl, err := client.TTL(ctx, sourceCacheKey(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Minute)
}

func TestSourceCache_RedisLayerServesOtherInstances(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	key := uuid.New()

	first := NewSourceCache(client, fixedSource("shared"), 10*time.Second, clockwork.NewFakeClock(), nil)
	_, err := first.GetSourceByKey(ctx, key)
	require.NoError(t, err)

	otherSource := fixedSource("db-should-not-be-read")
	second := NewSourceCache(client, otherSource, 10*time.Second, clockwork.NewFakeClock(), nil)
	code, err := second.GetSourceByKey(ctx, key)

	require.NoError(t, err)
	assert.Equal(t, "shared", code)
	assert.Zero(t, otherSource.calls.Load())
}

func TestSourceCache_InvalidateReachesOtherInstances(t *testing.T) {
	client := setupTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	key := uuid.New()

	local := NewSourceCache(client, fixedSource("v1"), time.Hour, clockwork.NewFakeClock(), nil)
	remote := NewSourceCache(client, fixedSource("v1"), time.Hour, clockwork.NewFakeClock(), nil)
	go NewInvalidationSubscriber(client, remote).Start(ctx)

	_, err := remote.GetSourceByKey(ctx, key)
	require.NoError(t, err)

	// The subscriber must be listening before the publish.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, sourceInvalidationChannel).Result()
		return err == nil && n[sourceInvalidationChannel] == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, local.InvalidateCache(ctx, key))

	assert.Eventually(t, func() bool {
		_, hit := remote.mem.get(key)
		return !hit
	}, 5*time.Second, 10*time.Millisecond)

	exists, err := client.Exists(ctx, sourceCacheKey(key)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
