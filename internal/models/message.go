package models

import (
	"time"

	"github.com/google/uuid"
)

// Role of a conversation turn author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a session's append-only history.
type Turn struct {
	ID        uuid.UUID  `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Sources   []Document `json:"sources,omitempty"`
	Failed    bool       `json:"failed,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
