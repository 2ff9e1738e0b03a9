package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/jonboulle/clockwork"
)

const tickInterval = time.Second

// Loop recomputes the projection every second and on every snapshot replacement.
// Frames are published latest-wins: a slow reader only ever sees the newest frame.
type Loop struct {
	clock   clockwork.Clock
	project ProjectionFunc

	mu      sync.Mutex
	replace chan domain.TimerSnapshot
	updates chan []domain.OverlayData
}

type LoopOption func(*Loop)

// WithProjection swaps the projection, e.g. ProjectAll for the controller view.
func WithProjection(fn ProjectionFunc) LoopOption {
	return func(l *Loop) { l.project = fn }
}

func NewLoop(clock clockwork.Clock, opts ...LoopOption) *Loop {
	l := &Loop{
		clock:   clock,
		project: Project,
		replace: make(chan domain.TimerSnapshot, 1),
		updates: make(chan []domain.OverlayData, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Updates delivers projected frames. It is never closed.
func (l *Loop) Updates() <-chan []domain.OverlayData {
	return l.updates
}

// Replace swaps the snapshot. The pending tick is cancelled and restarted.
func (l *Loop) Replace(snapshot domain.TimerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.replace:
	default:
	}
	l.replace <- snapshot
}

// Run blocks until ctx is cancelled. The timer is stopped on return.
func (l *Loop) Run(ctx context.Context) {
	var snapshot domain.TimerSnapshot

	select {
	case snapshot = <-l.replace:
	default:
	}

	timer := l.clock.NewTimer(tickInterval)
	defer timer.Stop()

	l.emit(l.project(snapshot, l.clock.Now()))

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot = <-l.replace:
			if !timer.Stop() {
				select {
				case <-timer.Chan():
				default:
				}
			}
			l.emit(l.project(snapshot, l.clock.Now()))
			timer.Reset(tickInterval)
		case <-timer.Chan():
			l.emit(l.project(snapshot, l.clock.Now()))
			timer.Reset(tickInterval)
		}
	}
}

func (l *Loop) emit(entries []domain.OverlayData) {
	select {
	case <-l.updates:
	default:
	}
	select {
	case l.updates <- entries:
	default:
	}
}
