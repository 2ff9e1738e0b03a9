package domain

import (
	"context"
)

// RedemptionDeduper reports whether a redemption id is seen for the first time.
type RedemptionDeduper interface {
	FirstDelivery(ctx context.Context, redemptionID string) (bool, error)
}
