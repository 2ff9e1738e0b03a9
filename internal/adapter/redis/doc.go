// Package redis holds the Redis-backed infrastructure: the client with its
// circuit breaker, the overlay source cache, cross-instance pub/sub, redemption
// de-duplication and leader election.
package redis
