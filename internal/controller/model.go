package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/countdown"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/viewer"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const requestTimeout = 5 * time.Second

var (
	accentPrimary   = lipgloss.Color("#9146FF")
	accentSecondary = lipgloss.Color("#50E3C2")
	mutedText       = lipgloss.Color("#8CA1AE")
	warningText     = lipgloss.Color("#FF6B6B")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentPrimary)

	connectedStyle = lipgloss.NewStyle().
			Foreground(accentSecondary).
			Bold(true)

	disconnectedStyle = lipgloss.NewStyle().
				Foreground(warningText).
				Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(accentPrimary).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentPrimary).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().Foreground(accentSecondary)
	errorStyle  = lipgloss.NewStyle().Foreground(warningText)
	helpStyle   = lipgloss.NewStyle().Foreground(mutedText)
)

// Conn is the realtime side, satisfied by *viewer.Client.
type Conn interface {
	Connect(ctx context.Context) error
	Events() <-chan viewer.Event
	Status() viewer.Status
}

// TimeAdder is satisfied by *viewer.API.
type TimeAdder interface {
	AddTime(ctx context.Context, channelKey, rewardID string, seconds int) error
}

type eventMsg viewer.Event

type frameMsg []domain.OverlayData

type connectedMsg struct {
	err error
}

type timeAddedMsg struct {
	name    string
	seconds int
	err     error
}

// Model lists every reward of one channel with its remaining time and lets the
// operator extend the selected one.
type Model struct {
	conn       Conn
	api        TimeAdder
	loop       *countdown.Loop
	channelKey string

	status  viewer.Status
	entries []domain.OverlayData
	cursor  int
	seconds textinput.Model

	notice   string
	errorMsg string
}

// NewModel expects loop to be running with countdown.ProjectAll.
func NewModel(conn Conn, api TimeAdder, loop *countdown.Loop, channelKey string) Model {
	input := textinput.New()
	input.Placeholder = "seconds"
	input.CharLimit = 7
	input.Width = 10
	input.Focus()

	return Model{
		conn:       conn,
		api:        api,
		loop:       loop,
		channelKey: channelKey,
		status:     viewer.StatusConnecting,
		seconds:    input,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(m.conn),
		waitForEventCmd(m.conn.Events()),
		waitForFrameCmd(m.loop.Updates()),
		textinput.Blink,
	)
}

func connectCmd(conn Conn) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return connectedMsg{err: conn.Connect(ctx)}
	}
}

func waitForEventCmd(ch <-chan viewer.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func waitForFrameCmd(ch <-chan []domain.OverlayData) tea.Cmd {
	return func() tea.Msg {
		return frameMsg(<-ch)
	}
}

func addTimeCmd(api TimeAdder, channelKey string, entry domain.OverlayData, seconds int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := api.AddTime(ctx, channelKey, entry.Reward.ID, seconds)
		return timeAddedMsg{name: entry.Name, seconds: seconds, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case connectedMsg:
		m.status = m.conn.Status()
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("connect failed: %v", msg.err)
		}
		return m, nil

	case eventMsg:
		m.applyEvent(viewer.Event(msg))
		return m, waitForEventCmd(m.conn.Events())

	case frameMsg:
		m.entries = msg
		m.cursor = clampCursor(m.cursor, len(m.entries))
		return m, waitForFrameCmd(m.loop.Updates())

	case timeAddedMsg:
		if msg.err != nil {
			m.notice = ""
			m.errorMsg = describeAddTimeError(msg.err)
			return m, nil
		}
		m.errorMsg = ""
		m.notice = fmt.Sprintf("added %ds to %s", msg.seconds, msg.name)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) applyEvent(ev viewer.Event) {
	switch ev.Kind {
	case viewer.EventConnect:
		m.status = viewer.StatusConnected
		m.errorMsg = ""
	case viewer.EventDisconnect:
		m.status = viewer.StatusDisconnected
		m.errorMsg = "connection lost, press r to reconnect"
	case viewer.EventUpdateData:
		m.loop.Replace(ev.Snapshot)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "up", "k":
		m.cursor = clampCursor(m.cursor-1, len(m.entries))
		return m, nil
	case "down", "j":
		m.cursor = clampCursor(m.cursor+1, len(m.entries))
		return m, nil
	case "r":
		if m.status != viewer.StatusDisconnected {
			return m, nil
		}
		m.status = viewer.StatusConnecting
		m.errorMsg = ""
		return m, connectCmd(m.conn)
	case "enter":
		return m.submit()
	}

	if msg.Type == tea.KeyRunes && !acceptsRunes(msg.Runes) {
		return m, nil
	}

	var cmd tea.Cmd
	m.seconds, cmd = m.seconds.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if len(m.entries) == 0 {
		m.errorMsg = "no reward selected"
		return m, nil
	}

	seconds, err := strconv.Atoi(strings.TrimSpace(m.seconds.Value()))
	if err != nil {
		m.errorMsg = "enter a whole number of seconds"
		return m, nil
	}
	if seconds > domain.MaxAddSeconds || seconds < -domain.MaxAddSeconds {
		m.errorMsg = fmt.Sprintf("seconds must be between -%d and %d", domain.MaxAddSeconds, domain.MaxAddSeconds)
		return m, nil
	}

	entry := m.entries[m.cursor]
	m.seconds.Reset()
	m.errorMsg = ""
	m.notice = fmt.Sprintf("adding %ds to %s...", seconds, entry.Name)
	return m, addTimeCmd(m.api, m.channelKey, entry, seconds)
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Point Timer Controller"))
	b.WriteString("  ")
	b.WriteString(renderStatus(m.status))
	b.WriteString("\n\n")

	var rows []string
	if len(m.entries) == 0 {
		rows = append(rows, helpStyle.Render("no rewards"))
	}
	for i, entry := range m.entries {
		line := fmt.Sprintf("%-24s %8s", truncate(entry.Name, 24), entry.RemainingTime)
		if i == m.cursor {
			rows = append(rows, selectedStyle.Render("> "+line))
			continue
		}
		rows = append(rows, "  "+line)
	}
	b.WriteString(panelStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n\n")

	b.WriteString("Add ")
	b.WriteString(m.seconds.View())
	b.WriteString("\n")

	if m.errorMsg != "" {
		b.WriteString(errorStyle.Render(m.errorMsg))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("up/down select  enter add  r reconnect  q quit"))
	return b.String()
}

func renderStatus(s viewer.Status) string {
	if s == viewer.StatusConnected {
		return connectedStyle.Render(s.String())
	}
	return disconnectedStyle.Render(s.String())
}

func describeAddTimeError(err error) string {
	switch {
	case errors.Is(err, viewer.ErrUnknownChannel):
		return "unknown channel key"
	case errors.Is(err, domain.ErrRewardNotFound):
		return "reward no longer exists"
	default:
		return fmt.Sprintf("add time failed: %v", err)
	}
}

// acceptsRunes lets digits and a sign through to the seconds input.
func acceptsRunes(runes []rune) bool {
	for _, r := range runes {
		if (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}

func clampCursor(cursor, n int) int {
	if n == 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
