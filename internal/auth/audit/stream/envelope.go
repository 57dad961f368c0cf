// Package stream fans audit entries out to connected administrators over WebSocket.
//
// The Hub is an audit.Sink. Delivery is best effort: a subscriber whose queue is
// full is disconnected instead of slowing the trail down.
package stream

import (
	"encoding/json"
	"time"

	"warden/internal/auth/audit"
	"warden/internal/ids"
)

const (
	Version = 1

	TypeHello = "hello"
	TypeEntry = "audit.entry"
	TypeError = "error"
)

// Envelope is the frame written to subscribers.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

type HelloPayload struct {
	SubscriberID string `json:"subscriber_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(typ string, payload any, ts time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: ids.New(ts), TS: ts, Payload: b}, nil
}

func entryEnvelope(e audit.Entry) (Envelope, error) {
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return newEnvelope(TypeEntry, e, ts)
}
