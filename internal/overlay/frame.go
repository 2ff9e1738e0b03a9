package overlay

import (
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/countdown"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/sandbox"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Frame is one message on the render stream. Exactly one field is set.
type Frame struct {
	Status Status         `json:"status,omitempty"`
	HTML   *string        `json:"html,omitempty"`
	Error  *sandbox.Error `json:"error,omitempty"`
}

func StatusFrame(s Status) Frame {
	return Frame{Status: s}
}

// ResultFrame converts a render result into a frame.
func ResultFrame(r sandbox.Result) Frame {
	if r.Failed() {
		return Frame{Error: r.Err}
	}
	html := r.HTML()
	return Frame{HTML: &html}
}

func (f Frame) equal(o Frame) bool {
	if f.Status != o.Status {
		return false
	}
	if (f.HTML == nil) != (o.HTML == nil) || (f.HTML != nil && *f.HTML != *o.HTML) {
		return false
	}
	if (f.Error == nil) != (o.Error == nil) || (f.Error != nil && *f.Error != *o.Error) {
		return false
	}
	return true
}

// Preview executes source once against the snapshot projected at now.
func Preview(source string, snapshot domain.TimerSnapshot, now time.Time, opts ...sandbox.Option) Frame {
	entries := countdown.Project(snapshot, now)
	boundary := sandbox.Execute(source, func() []domain.OverlayData { return entries }, opts...)
	return ResultFrame(boundary.Render())
}
