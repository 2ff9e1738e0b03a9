// Package viewer is the client side of a channel: a realtime socket client
// that surfaces connect, disconnect and snapshot events, and a small HTTP
// client for the key-authenticated endpoints.
package viewer
