// Package twitch talks to Twitch: EventSub conduit subscriptions and the
// redemption webhook (kappopher), plus OAuth login and per-streamer custom
// reward listing (nicklaw5/helix).
package twitch
