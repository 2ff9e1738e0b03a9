package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/metrics"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	commandBuffer  = 256
)

// member is anything the hub fans envelopes out to.
type member interface {
	deliver(msg []byte) bool
	close(reason string)
}

type channelGroup struct {
	clients     map[*websocket.Conn]*clientWriter
	subscribers map[*Subscription]struct{}
}

func (g *channelGroup) empty() bool {
	return len(g.clients) == 0 && len(g.subscribers) == 0
}

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	channelID    uuid.UUID
	connection   *websocket.Conn
	initial      []byte
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	channelID  uuid.UUID
	connection *websocket.Conn
}

type subscribeCmd struct {
	baseHubCmd
	subscription *Subscription
	done         chan struct{}
}

type unsubscribeCmd struct {
	baseHubCmd
	subscription *Subscription
}

type broadcastCmd struct {
	baseHubCmd
	channelID uuid.UUID
	event     string
	message   []byte
}

type clientCountCmd struct {
	baseHubCmd
	channelID    uuid.UUID
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub is an actor owning every channel group on this instance. All group state is
// touched only by the run goroutine; public methods send commands.
type Hub struct {
	cmdCh                chan hubCmd
	clock                clockwork.Clock
	channels             map[uuid.UUID]*channelGroup
	metrics              *metrics.HubMetrics
	done                 chan struct{}
	maxClientsPerChannel int
}

func NewHub(clock clockwork.Clock, maxClientsPerChannel int, hubMetrics *metrics.HubMetrics) *Hub {
	h := &Hub{
		cmdCh:                make(chan hubCmd, commandBuffer),
		clock:                clock,
		channels:             make(map[uuid.UUID]*channelGroup),
		metrics:              hubMetrics,
		done:                 make(chan struct{}),
		maxClientsPerChannel: maxClientsPerChannel,
	}
	go h.run()
	return h
}

// Register joins conn to a channel group and queues initial as its first message.
// Fails when the channel is full.
func (h *Hub) Register(channelID uuid.UUID, conn *websocket.Conn, initial []byte) error {
	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{channelID: channelID, connection: conn, initial: initial, errorChannel: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes conn from its group and closes it.
func (h *Hub) Unregister(channelID uuid.UUID, conn *websocket.Conn) {
	h.cmdCh <- unregisterCmd{channelID: channelID, connection: conn}
}

// Subscribe adds an in-process member to a channel group.
func (h *Hub) Subscribe(channelID uuid.UUID) (*Subscription, error) {
	sub := newSubscription(channelID)
	done := make(chan struct{})
	h.cmdCh <- subscribeCmd{subscription: sub, done: done}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return sub, nil
	case <-timer.Chan():
		return nil, fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	}
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.cmdCh <- unsubscribeCmd{subscription: sub}
}

// Broadcast fans an encoded envelope out to a channel group. Fire-and-forget.
func (h *Hub) Broadcast(channelID uuid.UUID, event string, message []byte) {
	h.cmdCh <- broadcastCmd{channelID: channelID, event: event, message: message}
}

// PublishSnapshot broadcasts updateData to local members only.
func (h *Hub) PublishSnapshot(_ context.Context, ownerID uuid.UUID, snapshot domain.TimerSnapshot) error {
	if snapshot == nil {
		snapshot = domain.TimerSnapshot{}
	}
	msg, err := domain.EncodeEnvelope(domain.EventUpdateData, snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	h.Broadcast(ownerID, domain.EventUpdateData, msg)
	return nil
}

// PublishSourceChanged broadcasts updateCode to local members only.
func (h *Hub) PublishSourceChanged(_ context.Context, ownerID uuid.UUID, _ uuid.UUID, code string) error {
	msg, err := domain.EncodeEnvelope(domain.EventUpdateCode, domain.CodeUpdate{OverlayCode: code})
	if err != nil {
		return fmt.Errorf("encode code update: %w", err)
	}
	h.Broadcast(ownerID, domain.EventUpdateCode, msg)
	return nil
}

// ClientCount returns the websocket viewers of a channel, or -1 on timeout.
func (h *Hub) ClientCount(channelID uuid.UUID) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{channelID: channelID, replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every member and waits for the actor to exit.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAll("hub failure")
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.channelID, c.connection)
		case subscribeCmd:
			h.group(c.subscription.ChannelID).subscribers[c.subscription] = struct{}{}
			h.updateGauges()
			close(c.done)
		case unsubscribeCmd:
			h.removeSubscriber(c.subscription, "unsubscribed")
		case broadcastCmd:
			h.handleBroadcast(c)
		case clientCountCmd:
			count := 0
			if g, ok := h.channels[c.channelID]; ok {
				count = len(g.clients)
			}
			c.replyChannel <- count
		case stopCmd:
			h.closeAll("server shutting down")
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) group(channelID uuid.UUID) *channelGroup {
	g, ok := h.channels[channelID]
	if !ok {
		g = &channelGroup{
			clients:     make(map[*websocket.Conn]*clientWriter),
			subscribers: make(map[*Subscription]struct{}),
		}
		h.channels[channelID] = g
	}
	return g
}

func (h *Hub) handleRegister(c registerCmd) {
	g := h.group(c.channelID)

	if len(g.clients) >= h.maxClientsPerChannel {
		slog.Warn("Rejecting client: max clients reached", "channel_id", c.channelID.String(), "max_clients", h.maxClientsPerChannel)
		if h.metrics != nil {
			h.metrics.RejectedJoins.WithLabelValues("channel_full").Inc()
		}
		if g.empty() {
			delete(h.channels, c.channelID)
		}
		c.errorChannel <- fmt.Errorf("max clients per channel (%d) reached", h.maxClientsPerChannel)
		return
	}

	cw := newClientWriter(c.connection, h.clock)
	if c.initial != nil {
		cw.deliver(c.initial)
	}
	g.clients[c.connection] = cw
	h.updateGauges()

	slog.Debug("Client registered", "channel_id", c.channelID.String(), "total_clients", len(g.clients))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(channelID uuid.UUID, conn *websocket.Conn) {
	g, ok := h.channels[channelID]
	if !ok {
		return
	}
	cw, ok := g.clients[conn]
	if !ok {
		return
	}

	cw.stop()
	delete(g.clients, conn)
	h.dropIfEmpty(channelID, g)
	slog.Debug("Client unregistered", "channel_id", channelID.String(), "remaining_clients", len(g.clients))
}

func (h *Hub) removeSubscriber(sub *Subscription, reason string) {
	g, ok := h.channels[sub.ChannelID]
	if !ok {
		sub.close(reason)
		return
	}
	if _, ok := g.subscribers[sub]; ok {
		delete(g.subscribers, sub)
		h.dropIfEmpty(sub.ChannelID, g)
	}
	sub.close(reason)
}

func (h *Hub) dropIfEmpty(channelID uuid.UUID, g *channelGroup) {
	if g.empty() {
		delete(h.channels, channelID)
		slog.Info("Last member left channel", "channel_id", channelID.String())
	}
	h.updateGauges()
}

func (h *Hub) handleBroadcast(c broadcastCmd) {
	g, ok := h.channels[c.channelID]
	if !ok {
		return
	}

	var slowClients []*websocket.Conn
	for conn, cw := range g.clients {
		if !cw.deliver(c.message) {
			slowClients = append(slowClients, conn)
		}
	}
	var slowSubscribers []*Subscription
	for sub := range g.subscribers {
		if !sub.deliver(c.message) {
			slowSubscribers = append(slowSubscribers, sub)
		}
	}

	if h.metrics != nil {
		h.metrics.MessagesPublished.WithLabelValues(c.event).Inc()
	}

	for _, conn := range slowClients {
		slog.Warn("Disconnecting slow client", "channel_id", c.channelID.String())
		h.evicted()
		h.handleUnregister(c.channelID, conn)
	}
	for _, sub := range slowSubscribers {
		slog.Warn("Dropping slow subscriber", "channel_id", c.channelID.String())
		h.evicted()
		h.removeSubscriber(sub, "fell behind")
	}
}

func (h *Hub) evicted() {
	if h.metrics != nil {
		h.metrics.SlowClientsEvicted.Inc()
	}
}

func (h *Hub) closeAll(reason string) {
	total := 0
	for channelID, g := range h.channels {
		for _, cw := range g.clients {
			cw.close(reason)
			total++
		}
		for sub := range g.subscribers {
			sub.close(reason)
		}
		delete(h.channels, channelID)
	}
	h.updateGauges()
	slog.Info("Hub closed all members", "disconnected_clients", total)
}

func (h *Hub) updateGauges() {
	if h.metrics == nil {
		return
	}
	clients, subscribers := 0, 0
	for _, g := range h.channels {
		clients += len(g.clients)
		subscribers += len(g.subscribers)
	}
	h.metrics.ActiveChannels.Set(float64(len(h.channels)))
	h.metrics.ActiveConnections.Set(float64(clients))
	h.metrics.ActiveSubscribers.Set(float64(subscribers))
}

var (
	_ domain.EventPublisher = (*Hub)(nil)
	_ member                = (*clientWriter)(nil)
	_ member                = (*Subscription)(nil)
)

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
