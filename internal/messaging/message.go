// Package messaging defines the outbound message specs produced by action
// handlers and the Messenger port that delivers them. The actual chat
// transport lives behind the Messenger interface and is out of scope here.
package messaging

import "context"

// Kind categorizes an outbound message so the transport can pick a
// rendering (plain text, interactive menu, receipt card).
type Kind string

const (
	KindText    Kind = "text"
	KindMenu    Kind = "menu"
	KindReceipt Kind = "receipt"
)

// Message is one ordered outbound message spec.
type Message struct {
	To       string         `json:"to"`
	Body     string         `json:"body"`
	Kind     Kind           `json:"kind"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Text builds a plain text message.
func Text(to, body string) Message {
	return Message{To: to, Body: body, Kind: KindText}
}

// Menu builds a menu message.
func Menu(to, body string) Message {
	return Message{To: to, Body: body, Kind: KindMenu}
}

// Receipt builds a receipt message carrying order metadata.
func Receipt(to, body string, meta map[string]any) Message {
	return Message{To: to, Body: body, Kind: KindReceipt, Metadata: meta}
}

// Messenger delivers ordered outbound messages to the chat channel.
type Messenger interface {
	Send(ctx context.Context, msgs []Message) error
}
