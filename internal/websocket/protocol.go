package websocket

import (
	"encoding/json"
)

// Frame is the JSON envelope of every websocket message in both directions.
// A client that sets Ack gets a reply frame carrying the same Ack.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
}

func encodeFrame(event string, data any, ack string) ([]byte, error) {
	raw, ok := data.(json.RawMessage)
	if !ok && data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, Data: raw, Ack: ack})
}

// Client event payloads. Identity fields are optional; when present they
// must match the identity bound to the connection.

type identifyPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type roomPayload struct {
	RoomID      string `json:"roomId"`
	RoomType    string `json:"roomType,omitempty"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type deletePayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

type ackResult struct {
	Success bool `json:"success"`
	Changed *int `json:"changed,omitempty"`
}
