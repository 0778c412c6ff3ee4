// Package whatsapp is the WhatsApp Cloud API channel: webhook parsing,
// outbound text messages and the reply flow for inbound messages.
package whatsapp

import (
	"encoding/json"
	"fmt"
)

// Webhook is the subset of the Cloud API notification payload the channel
// reads.
type Webhook struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Messages         []Message `json:"messages"`
}

// Message is one inbound user message.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// Body returns the text body, "" for non-text messages.
func (m Message) Body() string {
	if m.Text == nil {
		return ""
	}
	return m.Text.Body
}

// IsText reports whether the message carries text.
func (m Message) IsText() bool {
	return m.Type == "text" || (m.Type == "" && m.Text != nil)
}

// ParseWebhook decodes a notification and returns the messages of its first
// change. Status-only notifications yield no messages.
func ParseWebhook(body []byte) ([]Message, error) {
	var w Webhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("parse webhook: %w", err)
	}
	if len(w.Entry) == 0 || len(w.Entry[0].Changes) == 0 {
		return nil, nil
	}
	return w.Entry[0].Changes[0].Value.Messages, nil
}

// Verify answers the subscription handshake. It returns the challenge to
// echo and true only for mode "subscribe" with the expected token.
func Verify(mode, token, challenge, expected string) (string, bool) {
	if mode != "subscribe" || expected == "" || token != expected {
		return "", false
	}
	return challenge, true
}
