package domain

import (
	"context"

	"github.com/google/uuid"
)

// OverlaySource resolves a channel key to the owner's current overlay source.
// Implementations provide read-through caching (memory → Redis → PostgreSQL).
type OverlaySource interface {
	GetSourceByKey(ctx context.Context, overlayKey uuid.UUID) (string, error)
}

// SourceCacheInvalidator drops a cached overlay source.
type SourceCacheInvalidator interface {
	InvalidateCache(ctx context.Context, overlayKey uuid.UUID) error
}
