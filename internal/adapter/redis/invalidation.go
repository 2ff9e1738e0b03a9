package redis

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// InvalidationSubscriber evicts in-memory source cache entries when any
// instance saves an overlay source.
type InvalidationSubscriber struct {
	rdb   goredis.UniversalClient
	cache *SourceCache
}

func NewInvalidationSubscriber(rdb goredis.UniversalClient, cache *SourceCache) *InvalidationSubscriber {
	return &InvalidationSubscriber{rdb: rdb, cache: cache}
}

// Start blocks until ctx is cancelled.
func (s *InvalidationSubscriber) Start(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, sourceInvalidationChannel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleInvalidation(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (s *InvalidationSubscriber) handleInvalidation(payload string) {
	overlayKey, err := uuid.Parse(payload)
	if err != nil {
		slog.Warn("Invalid overlay key in source invalidation message", "payload", payload, "error", err)
		return
	}

	s.cache.evictLocal(overlayKey)
	slog.Debug("Source cache invalidated via pub/sub", "overlay_key", overlayKey.String())
}
