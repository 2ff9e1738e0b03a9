// Package countdown turns timer snapshots into per-second remaining-time entries.
//
// Project computes one frame from a snapshot and a clock reading. Loop drives it once per
// second and whenever the snapshot is replaced, publishing the latest frame on a channel.
package countdown
