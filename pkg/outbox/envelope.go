package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyEnvelope marks a stored payload whose data section is missing or null.
var ErrEmptyEnvelope = errors.New("outbox envelope has no data")

// ActorRef identifies who caused the event.
type ActorRef struct {
	UserID   uuid.UUID  `json:"user_id"`
	BranchID *uuid.UUID `json:"branch_id,omitempty"`
	Role     string     `json:"role,omitempty"`
}

// Envelope is the document stored in outbox_events.payload. The publisher
// forwards it to Kafka byte for byte, so its shape is the consumer contract.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, ErrEmptyEnvelope
	}
	return env, nil
}
