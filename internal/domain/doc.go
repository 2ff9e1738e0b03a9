// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (reward.go, streamer.go, overlay.go, twitch.go, ...) hold shared
// types and the contracts that adapters implement. No implementation code.
package domain
