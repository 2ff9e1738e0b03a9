package countdown

import (
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
)

// ProjectionFunc computes the visible entries of a snapshot at now.
type ProjectionFunc func(snapshot domain.TimerSnapshot, now time.Time) []domain.OverlayData

// RemainingSeconds is floor((endsAt - now) / 1s). A zero endsAt counts as long expired.
func RemainingSeconds(endsAt, now time.Time) int {
	if endsAt.IsZero() {
		return -1
	}
	ms := endsAt.Sub(now).Milliseconds()
	if ms < 0 {
		// floor for negatives
		return int((ms - 999) / 1000)
	}
	return int(ms / 1000)
}

// Project keeps the entries that still have time left, in snapshot order.
func Project(snapshot domain.TimerSnapshot, now time.Time) []domain.OverlayData {
	entries := make([]domain.OverlayData, 0, len(snapshot))
	for _, reward := range snapshot {
		remaining := RemainingSeconds(reward.EndsAt, now)
		if remaining <= 0 {
			continue
		}
		entries = append(entries, domain.OverlayData{
			Name:             reward.Name,
			RemainingSeconds: remaining,
			RemainingTime:    FormatDuration(remaining),
			Reward:           reward,
		})
	}
	return entries
}

// ProjectAll keeps every entry. Expired ones report zero seconds and an empty text.
func ProjectAll(snapshot domain.TimerSnapshot, now time.Time) []domain.OverlayData {
	entries := make([]domain.OverlayData, 0, len(snapshot))
	for _, reward := range snapshot {
		entry := domain.OverlayData{Name: reward.Name, Reward: reward}
		if remaining := RemainingSeconds(reward.EndsAt, now); remaining > 0 {
			entry.RemainingSeconds = remaining
			entry.RemainingTime = FormatDuration(remaining)
		}
		entries = append(entries, entry)
	}
	return entries
}
