package models

import "time"

// SessionStatus is the lifecycle state of a persisted session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Channel is the surface a session was opened on.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelVoice    Channel = "voice"
	ChannelWhatsApp Channel = "whatsapp"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Session is one conversation between a user and a cartridge.
type Session struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	CartridgeID string        `json:"cartridge_id"`
	Channel     Channel       `json:"channel"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
}

// Message is an append-only transcript entry.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
