// Package v1 defines the Axon realtime protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeSendMessage asks the server to relay a direct message (client -> server).
	TypeSendMessage = "send-message"
	// TypeReceiveMessage delivers a relayed direct message (server -> client).
	TypeReceiveMessage = "receive-message"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeSendMessage,
		TypeReceiveMessage,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// SendMessagePayload asks the relay to forward a direct message to a peer.
//
// The durable copy of the message travels the persistence path independently;
// the relay provides low-latency delivery only.
type SendMessagePayload struct {
	RecipientUserID string `json:"recipient_user_id"`
	Username        string `json:"username"`
	Content         string `json:"content"`
}

// ReceiveMessagePayload delivers a relayed direct message to a connected peer.
type ReceiveMessagePayload struct {
	SenderUserID string `json:"sender_user_id"`
	Username     string `json:"username"`
	Content      string `json:"content"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
