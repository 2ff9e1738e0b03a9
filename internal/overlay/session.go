package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/metrics"
	"github.com/KimuSoft/twitch-point-timer/internal/countdown"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/sandbox"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrFeedLost is returned by Run when the message feed closes. The viewer has
// to reconnect to receive envelopes again.
var ErrFeedLost = errors.New("overlay feed lost")

// EmitFunc writes one frame to the viewer. An error ends the session.
type EmitFunc func(Frame) error

// Session is one viewer's render pipeline. It owns exactly one live boundary;
// a source change discards it and builds a new one. Run must be called once.
type Session struct {
	channelID uuid.UUID
	clock     clockwork.Clock
	metrics   *metrics.SandboxMetrics
	logger    *slog.Logger

	source   string
	boundary *sandbox.Boundary
	loop     *countdown.Loop
	entries  []domain.OverlayData
	last     *Frame
}

type Option func(*Session)

func WithMetrics(m *metrics.SandboxMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func NewSession(channelID uuid.UUID, source string, clock clockwork.Clock, opts ...Option) *Session {
	s := &Session{
		channelID: channelID,
		clock:     clock,
		logger:    slog.Default(),
		source:    source,
		loop:      countdown.NewLoop(clock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed hands the session its starting snapshot. Call before Run.
func (s *Session) Seed(snapshot domain.TimerSnapshot) {
	s.loop.Replace(snapshot)
}

// Run paints until ctx is cancelled or emit fails. When messages is closed the
// session reports disconnected and returns ErrFeedLost.
func (s *Session) Run(ctx context.Context, messages <-chan []byte, emit EmitFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
		defer s.metrics.ActiveSessions.Dec()
	}

	go s.loop.Run(ctx)
	s.build("initial")

	if err := s.send(StatusFrame(StatusConnected), emit); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-messages:
			if !ok {
				s.logger.Info("Render session lost its feed", "channel_id", s.channelID.String())
				if err := s.send(StatusFrame(StatusDisconnected), emit); err != nil {
					return err
				}
				return ErrFeedLost
			}
			if s.handle(msg) {
				if err := s.paint(emit); err != nil {
					return err
				}
			}

		case entries := <-s.loop.Updates():
			s.entries = entries
			if err := s.paint(emit); err != nil {
				return err
			}
		}
	}
}

// handle applies one envelope and reports whether the source changed.
// Snapshots only feed the loop; the loop emits the resulting frame.
func (s *Session) handle(msg []byte) bool {
	var env domain.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.logger.Warn("Dropping malformed envelope", "channel_id", s.channelID.String(), "error", err)
		return false
	}

	switch env.Event {
	case domain.EventUpdateData:
		snapshot, err := domain.DecodeSnapshot(env.Data)
		if err != nil {
			s.logger.Warn("Dropping malformed snapshot", "channel_id", s.channelID.String(), "error", err)
			return false
		}
		s.loop.Replace(snapshot)
		return false
	case domain.EventUpdateCode:
		var update domain.CodeUpdate
		if err := json.Unmarshal(env.Data, &update); err != nil {
			s.logger.Warn("Dropping malformed code update", "channel_id", s.channelID.String(), "error", err)
			return false
		}
		s.source = domain.SourceOrDefault(update.OverlayCode)
		s.build("update")
		return true
	default:
		return false
	}
}

func (s *Session) build(origin string) {
	s.boundary = sandbox.Execute(s.source, s.data, sandbox.WithLogger(s.logger))
	if s.metrics != nil {
		s.metrics.Builds.WithLabelValues(origin).Inc()
	}
}

func (s *Session) data() []domain.OverlayData {
	return s.entries
}

func (s *Session) paint(emit EmitFunc) error {
	start := time.Now()
	result := s.boundary.Render()
	if s.metrics != nil {
		s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	}
	return s.send(ResultFrame(result), emit)
}

// send skips frames identical to the previous one.
func (s *Session) send(f Frame, emit EmitFunc) error {
	if s.last != nil && s.last.equal(f) {
		return nil
	}
	if f.Error != nil && s.metrics != nil && (s.last == nil || s.last.Error == nil) {
		s.metrics.Failures.WithLabelValues(string(f.Error.Kind)).Inc()
	}
	s.last = &f
	return emit(f)
}
