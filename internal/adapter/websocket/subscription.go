package websocket

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is an in-process hub member. It receives the same envelopes as
// websocket viewers. Messages is closed when the subscription ends, either by
// Unsubscribe, eviction for falling behind, or hub shutdown.
type Subscription struct {
	ChannelID uuid.UUID

	messages  chan []byte
	closeOnce sync.Once
	reason    string
}

func newSubscription(channelID uuid.UUID) *Subscription {
	return &Subscription{ChannelID: channelID, messages: make(chan []byte, messageBufferSize)}
}

func (s *Subscription) Messages() <-chan []byte {
	return s.messages
}

// Reason reports why the subscription ended. Valid after Messages is closed.
func (s *Subscription) Reason() string {
	return s.reason
}

func (s *Subscription) deliver(msg []byte) bool {
	select {
	case s.messages <- msg:
		return true
	default:
		return false
	}
}

func (s *Subscription) close(reason string) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.messages)
	})
}
