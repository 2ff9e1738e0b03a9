package domain

import "encoding/json"

// Realtime events pushed to viewers.
const (
	EventUpdateData = "updateData"
	EventUpdateCode = "updateCode"
)

// Envelope is the JSON frame sent over the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type CodeUpdate struct {
	OverlayCode string `json:"overlayCode"`
}

// EncodeEnvelope marshals data under the given event name.
func EncodeEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeSnapshot parses updateData payloads leniently. An entry with malformed
// fields keeps its id and name and a zero EndsAt, so projections treat it as expired.
func DecodeSnapshot(raw json.RawMessage) (TimerSnapshot, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	snapshot := make(TimerSnapshot, 0, len(items))
	for _, item := range items {
		var timer RewardTimer
		if err := json.Unmarshal(item, &timer); err != nil {
			var loose struct {
				ID   any `json:"id"`
				Name any `json:"name"`
			}
			_ = json.Unmarshal(item, &loose)
			timer = RewardTimer{ID: looseString(loose.ID), Name: looseString(loose.Name)}
		}
		snapshot = append(snapshot, timer)
	}
	return snapshot, nil
}

func looseString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
