package models

import "time"

// Credit is a user's prepaid usage balance.
type Credit struct {
	UserID    string    `json:"user_id"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Call records the usage of one interaction for billing and history.
type Call struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id,omitempty"`
	CartridgeID     string    `json:"cartridge_id"`
	Channel         Channel   `json:"channel"`
	CreditsUsed     int       `json:"credits_used"`
	DurationSeconds int       `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// CallInput is the data needed to record a call.
type CallInput struct {
	UserID          string
	SessionID       string
	CartridgeID     string
	Channel         Channel
	CreditsUsed     int
	DurationSeconds int
}
