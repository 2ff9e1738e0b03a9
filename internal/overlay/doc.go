// Package overlay runs server-side render sessions: a hub feed drives the
// countdown loop, and every frame is painted through a sandbox boundary.
package overlay
