// Package realtime keeps the menu cache consistent with server-side mutations,
// either from a websocket push channel or by polling the last-update timestamp.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Kind is the type of an invalidation signal.
type Kind int

const (
	ProductAdded Kind = iota + 1
	ProductUpdated
	ProductDeleted
	CategoryUpdated
	CategoryDeleted
)

var kindNames = map[Kind]string{
	ProductAdded:    "product_added",
	ProductUpdated:  "product_updated",
	ProductDeleted:  "product_deleted",
	CategoryUpdated: "category_updated",
	CategoryDeleted: "category_deleted",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func parseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Signal tells the cache which part of the menu changed on the server.
type Signal struct {
	Kind       Kind
	ProductID  int
	CategoryID int   // 0 when not sent
	Available  *bool // nil when not sent
}

// Message is the push channel envelope.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type signalPayload struct {
	ID         int   `json:"id"`
	CategoryID int   `json:"categoryId"`
	Available  *bool `json:"available"`
}

// ParseMessage decodes a push channel frame.
func ParseMessage(data []byte) (Signal, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Signal{}, fmt.Errorf("decode message: %w", err)
	}
	kind, ok := parseKind(msg.Type)
	if !ok {
		return Signal{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	var p signalPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return Signal{}, fmt.Errorf("decode %s payload: %w", msg.Type, err)
		}
	}
	sig := Signal{Kind: kind, Available: p.Available}
	switch kind {
	case CategoryUpdated, CategoryDeleted:
		sig.CategoryID = p.ID
	default:
		sig.ProductID = p.ID
		sig.CategoryID = p.CategoryID
	}
	return sig, nil
}

// EncodeMessage renders sig as a push channel frame.
func EncodeMessage(sig Signal) ([]byte, error) {
	p := signalPayload{ID: sig.ProductID, CategoryID: sig.CategoryID, Available: sig.Available}
	if sig.Kind == CategoryUpdated || sig.Kind == CategoryDeleted {
		p = signalPayload{ID: sig.CategoryID}
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: sig.Kind.String(), Payload: payload})
}
