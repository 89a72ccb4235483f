// Package chat defines the message envelope exchanged between chat clients
// and the JSON codec used to put it on the wire.
//
// The relay server never decodes envelopes to forward them; only clients
// author and parse them. The server reads them only to fill its history.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrEmptyText is returned when a client tries to author an envelope with
// no message body.
var ErrEmptyText = errors.New("chat: message text is empty")

var validate = validator.New()

// Envelope is one chat message. It is treated as immutable once built.
type Envelope struct {
	// Timestamp is milliseconds since the Unix epoch, stamped by the
	// authoring client.
	Timestamp int64  `json:"ts"`
	Sender    string `json:"sender"`
	Text      string `json:"text" validate:"required"`
}

// NewEnvelope stamps text from sender with the given wall-clock time and
// rejects empty bodies.
func NewEnvelope(sender, text string, at time.Time) (Envelope, error) {
	env := Envelope{
		Timestamp: at.UnixMilli(),
		Sender:    sender,
		Text:      text,
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate applies the authoring-side rules. Decoding never calls it.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Text) == "" {
		return ErrEmptyText
	}
	return validate.Struct(e)
}

// Time returns the envelope timestamp as a time.Time in UTC.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// Encode serializes the envelope into the text payload of one frame.
func Encode(e Envelope) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(b), nil
}

// wireEnvelope mirrors Envelope with pointer fields so Decode can tell a
// missing or null key from a zero value.
type wireEnvelope struct {
	Timestamp *int64  `json:"ts"`
	Sender    *string `json:"sender"`
	Text      *string `json:"text"`
}

// Decode parses one frame payload. Payloads that are not a JSON object,
// that lack any of ts, sender or text, or that carry a field of the wrong
// type are rejected.
func Decode(payload string) (Envelope, error) {
	if !strings.HasPrefix(strings.TrimSpace(payload), "{") {
		return Envelope{}, errors.New("decode envelope: payload is not a JSON object")
	}
	var w wireEnvelope
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&w); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if dec.More() {
		return Envelope{}, errors.New("decode envelope: trailing data after object")
	}

	switch {
	case w.Timestamp == nil:
		return Envelope{}, errors.New(`decode envelope: missing field "ts"`)
	case w.Sender == nil:
		return Envelope{}, errors.New(`decode envelope: missing field "sender"`)
	case w.Text == nil:
		return Envelope{}, errors.New(`decode envelope: missing field "text"`)
	}
	return Envelope{Timestamp: *w.Timestamp, Sender: *w.Sender, Text: *w.Text}, nil
}
