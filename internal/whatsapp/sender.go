package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIURL is the Graph API base the sender posts to.
const DefaultAPIURL = "https://graph.facebook.com/v18.0"

// ErrNotConfigured is returned by SendText when token or phone id is missing.
var ErrNotConfigured = errors.New("whatsapp sender not configured")

// Sender posts outbound text messages through the Cloud API.
type Sender struct {
	baseURL string
	phoneID string
	token   string
	client  *http.Client
}

// NewSender creates a sender. An empty baseURL uses DefaultAPIURL.
func NewSender(baseURL, phoneID, token string) *Sender {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Sender{
		baseURL: strings.TrimRight(baseURL, "/"),
		phoneID: phoneID,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText sends body to the phone number to.
func (s *Sender) SendText(ctx context.Context, to, body string) error {
	if s.phoneID == "" || s.token == "" {
		return ErrNotConfigured
	}

	msg := textMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = body
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
