package overlay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/sandbox"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listSource = `
function Timers() {
  return <ul>{useTimerData().map(x => <li key={x.name}>{x.name} {x.remainingTime}</li>)}</ul>
}
render(<Timers />)`

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	clock    *clockwork.FakeClock
	messages chan []byte
	frames   chan Frame
	ctx      context.Context
	done     chan error
}

func startSession(t *testing.T, source string) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		clock:    clockwork.NewFakeClockAt(t0),
		messages: make(chan []byte, 8),
		frames:   make(chan Frame, 32),
		ctx:      ctx,
		done:     make(chan error, 1),
	}

	s := NewSession(uuid.New(), source, h.clock)
	go func() {
		h.done <- s.Run(ctx, h.messages, func(f Frame) error {
			h.frames <- f
			return nil
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) next(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-h.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func (h *harness) nextHTML(t *testing.T) string {
	t.Helper()
	f := h.next(t)
	require.Nil(t, f.Error, "unexpected error frame: %v", f.Error)
	require.NotNil(t, f.HTML, "expected html frame, got %+v", f)
	return *f.HTML
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(time.Second)
}

func snapshotMessage(t *testing.T, timers ...domain.RewardTimer) []byte {
	t.Helper()
	msg, err := domain.EncodeEnvelope(domain.EventUpdateData, domain.TimerSnapshot(timers))
	require.NoError(t, err)
	return msg
}

func codeMessage(t *testing.T, code string) []byte {
	t.Helper()
	msg, err := domain.EncodeEnvelope(domain.EventUpdateCode, domain.CodeUpdate{OverlayCode: code})
	require.NoError(t, err)
	return msg
}

func TestSession_PaintsSnapshotAndTicks(t *testing.T) {
	h := startSession(t, listSource)

	assert.Equal(t, StatusConnected, h.next(t).Status)
	assert.Equal(t, "<ul></ul>", h.nextHTML(t))

	h.messages <- snapshotMessage(t, domain.RewardTimer{ID: "r1", Name: "Hydrate", DurationSeconds: 30, EndsAt: t0.Add(5 * time.Second)})
	assert.Contains(t, h.nextHTML(t), "Hydrate 00:05")

	h.tick(t)
	assert.Contains(t, h.nextHTML(t), "Hydrate 00:04")
}

func TestSession_ExpiredEntriesDisappear(t *testing.T) {
	h := startSession(t, listSource)
	h.next(t)
	h.nextHTML(t)

	h.messages <- snapshotMessage(t, domain.RewardTimer{ID: "r1", Name: "Hydrate", EndsAt: t0.Add(time.Second)})
	assert.Contains(t, h.nextHTML(t), "Hydrate 00:01")

	h.tick(t)
	assert.Equal(t, "<ul></ul>", h.nextHTML(t))
}

func TestSession_FeedLossEndsSession(t *testing.T) {
	h := startSession(t, listSource)
	h.next(t)
	h.nextHTML(t)

	h.messages <- snapshotMessage(t, domain.RewardTimer{ID: "r1", Name: "Hydrate", EndsAt: t0.Add(10 * time.Second)})
	assert.Contains(t, h.nextHTML(t), "Hydrate 00:10")

	close(h.messages)
	assert.Equal(t, StatusDisconnected, h.next(t).Status)

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, ErrFeedLost)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("session kept running after its feed closed")
	}
}

func TestSession_CodeUpdateRebuilds(t *testing.T) {
	h := startSession(t, `render(<p>A</p>)`)
	h.next(t)
	assert.Equal(t, "<p>A</p>", h.nextHTML(t))

	h.messages <- codeMessage(t, `render(<p>B</p>)`)
	assert.Equal(t, "<p>B</p>", h.nextHTML(t))
}

func TestSession_CompileErrorIsInlineAndRecovers(t *testing.T) {
	h := startSession(t, `render(<p>A</p>)`)
	h.next(t)
	h.nextHTML(t)

	h.messages <- codeMessage(t, `render(<div>)`)
	f := h.next(t)
	require.NotNil(t, f.Error)
	assert.Equal(t, sandbox.CompileError, f.Error.Kind)

	// Identical error frames are not repeated on later ticks.
	h.tick(t)
	h.messages <- codeMessage(t, `render(<p>C</p>)`)
	assert.Equal(t, "<p>C</p>", h.nextHTML(t))
}

func TestSession_EmptyCodeFallsBackToDefault(t *testing.T) {
	h := startSession(t, `render(<p>A</p>)`)
	h.next(t)
	h.nextHTML(t)

	h.messages <- codeMessage(t, "")
	assert.Contains(t, h.nextHTML(t), "font-family: sans-serif")
}

func TestSession_MalformedEnvelopeIgnored(t *testing.T) {
	h := startSession(t, listSource)
	h.next(t)
	h.nextHTML(t)

	h.messages <- []byte("not json")
	h.messages <- snapshotMessage(t, domain.RewardTimer{ID: "r1", Name: "Hydrate", EndsAt: t0.Add(5 * time.Second)})
	assert.Contains(t, h.nextHTML(t), "Hydrate 00:05")
}

func TestFrame_JSON(t *testing.T) {
	html := ""
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"status", StatusFrame(StatusConnecting), `{"status":"connecting"}`},
		{"empty html", Frame{HTML: &html}, `{"html":""}`},
		{"error", Frame{Error: &sandbox.Error{Kind: sandbox.RuntimeError, Message: "boom"}}, `{"error":{"kind":"runtime","message":"boom"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.frame)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestPreview(t *testing.T) {
	snapshot := domain.TimerSnapshot{
		{ID: "a", Name: "Gone", EndsAt: t0.Add(-time.Second)},
		{ID: "b", Name: "Live", EndsAt: t0.Add(65 * time.Second)},
	}

	f := Preview(listSource, snapshot, t0)
	require.NotNil(t, f.HTML)
	assert.Contains(t, *f.HTML, "Live 01:05")
	assert.NotContains(t, *f.HTML, "Gone")

	f = Preview(`throw new Error("nope")`, snapshot, t0)
	require.NotNil(t, f.Error)
	assert.Equal(t, sandbox.RuntimeError, f.Error.Kind)
	assert.Contains(t, f.Error.Message, "nope")
}
