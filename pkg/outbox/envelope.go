package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// EnvelopeVersion is written on every new row.
const EnvelopeVersion = 1

// ErrEmptyEnvelope is returned when an envelope carries no event data.
var ErrEmptyEnvelope = errors.New("envelope data is empty")

// ActorRef names the person or system that caused a ledger event.
type ActorRef struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox payload. Data holds the event-specific
// body from pkg/outbox/payloads.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeData unmarshals Data into dst, rejecting a missing or null body.
func (e PayloadEnvelope) DecodeData(dst any) error {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ErrEmptyEnvelope
	}
	return json.Unmarshal(data, dst)
}
