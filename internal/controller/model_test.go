package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/countdown"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/viewer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	ConnectFn func(ctx context.Context) error
	events    chan viewer.Event
	status    viewer.Status
}

func newMockConn() *mockConn {
	return &mockConn{events: make(chan viewer.Event, 4)}
}

func (m *mockConn) Connect(ctx context.Context) error {
	if m.ConnectFn != nil {
		return m.ConnectFn(ctx)
	}
	m.status = viewer.StatusConnected
	return nil
}

func (m *mockConn) Events() <-chan viewer.Event { return m.events }
func (m *mockConn) Status() viewer.Status       { return m.status }

type mockAdder struct {
	AddTimeFn func(ctx context.Context, channelKey, rewardID string, seconds int) error
}

func (m *mockAdder) AddTime(ctx context.Context, channelKey, rewardID string, seconds int) error {
	if m.AddTimeFn != nil {
		return m.AddTimeFn(ctx, channelKey, rewardID, seconds)
	}
	return nil
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testEntries() []domain.OverlayData {
	snapshot := domain.TimerSnapshot{
		{ID: "r1", Name: "Hydrate", EndsAt: testNow.Add(90 * time.Second)},
		{ID: "r2", Name: "Stretch", EndsAt: testNow.Add(-time.Second)},
	}
	return countdown.ProjectAll(snapshot, testNow)
}

func newTestModel(conn Conn, api TimeAdder) (Model, *countdown.Loop) {
	loop := countdown.NewLoop(clockwork.NewFakeClockAt(testNow), countdown.WithProjection(countdown.ProjectAll))
	return NewModel(conn, api, loop, "key-1"), loop
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	for _, r := range s {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestModel_FrameShowsEveryReward(t *testing.T) {
	m, _ := newTestModel(newMockConn(), &mockAdder{})

	m, cmd := update(t, m, frameMsg(testEntries()))

	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Hydrate")
	assert.Contains(t, view, "01:30")
	assert.Contains(t, view, "Stretch")
}

func TestModel_UpdateDataFeedsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m, loop := newTestModel(newMockConn(), &mockAdder{})
	go loop.Run(ctx)

	snapshot := domain.TimerSnapshot{{ID: "r1", Name: "Hydrate", EndsAt: testNow.Add(5 * time.Second)}}
	_, cmd := update(t, m, eventMsg{Kind: viewer.EventUpdateData, Snapshot: snapshot})
	require.NotNil(t, cmd)

	require.Eventually(t, func() bool {
		select {
		case entries := <-loop.Updates():
			return len(entries) == 1 && entries[0].RemainingTime == "00:05"
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestModel_ConnectionStatus(t *testing.T) {
	conn := newMockConn()
	m, _ := newTestModel(conn, &mockAdder{})
	assert.Contains(t, m.View(), "connecting")

	m, _ = update(t, m, eventMsg{Kind: viewer.EventConnect})
	assert.Contains(t, m.View(), "connected")

	m, _ = update(t, m, eventMsg{Kind: viewer.EventDisconnect, Err: errors.New("eof")})
	assert.Equal(t, viewer.StatusDisconnected, m.status)
	assert.Contains(t, m.View(), "press r to reconnect")
}

func TestModel_ConnectFailure(t *testing.T) {
	conn := newMockConn()
	conn.ConnectFn = func(context.Context) error { return &viewer.ConnectionError{Err: errors.New("refused")} }
	m, _ := newTestModel(conn, &mockAdder{})

	msg := connectCmd(conn)()
	m, _ = update(t, m, msg)

	assert.Equal(t, viewer.StatusDisconnected, m.status)
	assert.Contains(t, m.errorMsg, "refused")
}

func TestModel_ReconnectOnlyWhenDisconnected(t *testing.T) {
	conn := newMockConn()
	var dials int
	conn.ConnectFn = func(context.Context) error {
		dials++
		conn.status = viewer.StatusConnected
		return nil
	}
	m, _ := newTestModel(conn, &mockAdder{})
	m, _ = update(t, m, eventMsg{Kind: viewer.EventConnect})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	assert.Nil(t, cmd)

	m, _ = update(t, m, eventMsg{Kind: viewer.EventDisconnect})
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.NotNil(t, cmd)
	assert.Equal(t, viewer.StatusConnecting, m.status)

	m, _ = update(t, m, cmd())
	assert.Equal(t, 1, dials)
	assert.Equal(t, viewer.StatusConnected, m.status)
}

func TestModel_CursorClamps(t *testing.T) {
	m, _ := newTestModel(newMockConn(), &mockAdder{})
	m, _ = update(t, m, frameMsg(testEntries()))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.cursor)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)

	m, _ = update(t, m, frameMsg(testEntries()[:1]))
	assert.Equal(t, 0, m.cursor)
}

func TestModel_SubmitAddsTimeToSelectedReward(t *testing.T) {
	var gotKey, gotReward string
	var gotSeconds int
	api := &mockAdder{AddTimeFn: func(_ context.Context, channelKey, rewardID string, seconds int) error {
		gotKey, gotReward, gotSeconds = channelKey, rewardID, seconds
		return nil
	}}
	m, _ := newTestModel(newMockConn(), api)
	m, _ = update(t, m, frameMsg(testEntries()))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})

	m = typeText(t, m, "3x0")
	assert.Equal(t, "30", m.seconds.Value())

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Empty(t, m.seconds.Value())

	m, _ = update(t, m, cmd())

	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "r2", gotReward)
	assert.Equal(t, 30, gotSeconds)
	assert.Contains(t, m.View(), "added 30s to Stretch")
}

func TestModel_SubmitValidation(t *testing.T) {
	m, _ := newTestModel(newMockConn(), &mockAdder{})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "no reward selected", m.errorMsg)

	m, _ = update(t, m, frameMsg(testEntries()))
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "enter a whole number of seconds", m.errorMsg)

	m = typeText(t, m, "604801")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "seconds must be between -604800 and 604800", m.errorMsg)
}

func TestModel_AddTimeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "unknown channel", err: viewer.ErrUnknownChannel, want: "unknown channel key"},
		{name: "reward gone", err: domain.ErrRewardNotFound, want: "reward no longer exists"},
		{name: "server error", err: &viewer.APIError{StatusCode: 500, Message: "internal server error"}, want: "add time failed: server status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestModel(newMockConn(), &mockAdder{})

			m, _ = update(t, m, timeAddedMsg{name: "Hydrate", seconds: 30, err: tt.err})

			assert.Contains(t, m.View(), tt.want)
		})
	}
}

func TestModel_Quit(t *testing.T) {
	m, _ := newTestModel(newMockConn(), &mockAdder{})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
