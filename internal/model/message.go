package model

import "time"

// Role tags a chat message with its author.
type Role string

const (
    RoleUser      Role = "user"
    RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two storable roles.
func (r Role) Valid() bool {
    return r == RoleUser || r == RoleAssistant
}

// ChatMessage mirrors the `chat_messages` table.  Token is a logical reference
// to tokens.token and is not enforced by a foreign key.
type ChatMessage struct {
    ID        uint64    // chat_messages.id
    Token     string    // chat_messages.token
    Role      Role      // chat_messages.role
    Content   string    // chat_messages.content
    CreatedAt time.Time // chat_messages.created_at
}
