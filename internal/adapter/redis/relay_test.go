package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcast struct {
	channelID uuid.UUID
	event     string
	message   []byte
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcast
}

func (b *recordingBroadcaster) Broadcast(channelID uuid.UUID, event string, message []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcast{channelID, event, message})
}

func (b *recordingBroadcaster) snapshot() []broadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcast(nil), b.calls...)
}

func TestRelay_HandleMessage(t *testing.T) {
	local := &recordingBroadcaster{}
	relay := NewRelay(offlineClient(t), local, nil)
	channelID := uuid.New()

	payload, err := json.Marshal(relayMessage{
		ChannelID: channelID,
		Event:     domain.EventUpdateData,
		Message:   json.RawMessage(`{"event":"updateData","data":[]}`),
	})
	require.NoError(t, err)

	relay.handleMessage(string(payload))

	calls := local.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, channelID, calls[0].channelID)
	assert.Equal(t, domain.EventUpdateData, calls[0].event)
	assert.JSONEq(t, `{"event":"updateData","data":[]}`, string(calls[0].message))
}

func TestRelay_HandleMessage_DropsGarbage(t *testing.T) {
	local := &recordingBroadcaster{}
	relay := NewRelay(offlineClient(t), local, nil)

	relay.handleMessage("not json")
	relay.handleMessage(`{"event":"updateData","message":{}}`)
	relay.handleMessage(`{"channelId":"` + uuid.NewString() + `","event":"","message":{}}`)

	assert.Empty(t, local.snapshot())
}

func TestRelay_PublishFailsWithoutRedis(t *testing.T) {
	relay := NewRelay(offlineClient(t), &recordingBroadcaster{}, nil)

	err := relay.PublishSnapshot(context.Background(), uuid.New(), nil)

	assert.Error(t, err)
}

func TestRelay_FansOutAcrossInstances(t *testing.T) {
	client := setupTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instanceA := &recordingBroadcaster{}
	instanceB := &recordingBroadcaster{}
	relayA := NewRelay(client, instanceA, nil)
	relayB := NewRelay(client, instanceB, nil)
	go relayA.Start(ctx)
	go relayB.Start(ctx)

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, relayChannel).Result()
		return err == nil && n[relayChannel] == 2
	}, 5*time.Second, 10*time.Millisecond)

	ownerID := uuid.New()
	endsAt := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
	snapshot := domain.TimerSnapshot{{ID: "r1", Name: "Hydrate", DurationSeconds: 30, EndsAt: endsAt, OwnerID: ownerID}}
	require.NoError(t, relayA.PublishSnapshot(ctx, ownerID, snapshot))
	require.NoError(t, relayA.PublishSourceChanged(ctx, ownerID, uuid.New(), "render(<p />)"))

	for _, instance := range []*recordingBroadcaster{instanceA, instanceB} {
		require.Eventually(t, func() bool { return len(instance.snapshot()) == 2 }, 5*time.Second, 10*time.Millisecond)

		calls := instance.snapshot()
		assert.Equal(t, ownerID, calls[0].channelID)
		assert.Equal(t, domain.EventUpdateData, calls[0].event)

		var env domain.Envelope
		require.NoError(t, json.Unmarshal(calls[0].message, &env))
		got, err := domain.DecodeSnapshot(env.Data)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, endsAt.Equal(got[0].EndsAt))

		assert.Equal(t, domain.EventUpdateCode, calls[1].event)
		assert.JSONEq(t, `{"event":"updateCode","data":{"overlayCode":"render(<p />)"}}`, string(calls[1].message))
	}
}
