package domain

import "errors"

var (
	ErrStreamerNotFound     = errors.New("streamer not found")
	ErrRewardNotFound       = errors.New("reward not found")
	ErrRewardExists         = errors.New("reward already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSecondsOutOfRange    = errors.New("seconds out of range")
)
