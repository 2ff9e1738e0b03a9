// Package app provides the application service layer.
//
// Service handles streamers, overlay sources and key rotation. Timers owns the
// authoritative reward timers and publishes a full snapshot after every mutation.
// SubscriptionReconciler keeps EventSub subscriptions in line with stored streamers.
// Depends on domain interfaces, not concrete implementations.
package app
