package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Twitch retries a notification for up to ten minutes; keep ids a little longer.
const redemptionDedupeTTL = 15 * time.Minute

// RedemptionDeduper remembers redemption ids with SET NX.
type RedemptionDeduper struct {
	rdb goredis.UniversalClient
}

func NewRedemptionDeduper(rdb goredis.UniversalClient) *RedemptionDeduper {
	return &RedemptionDeduper{rdb: rdb}
}

// FirstDelivery reports whether redemptionID has not been seen before, and marks it seen.
func (d *RedemptionDeduper) FirstDelivery(ctx context.Context, redemptionID string) (bool, error) {
	args := goredis.SetArgs{TTL: redemptionDedupeTTL, Mode: "NX"}
	_, err := d.rdb.SetArgs(ctx, redemptionKey(redemptionID), "1", args).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record redemption id: %w", err)
	}
	return true, nil
}

func redemptionKey(redemptionID string) string {
	return "eventsub:redemption:" + redemptionID
}

var _ domain.RedemptionDeduper = (*RedemptionDeduper)(nil)
