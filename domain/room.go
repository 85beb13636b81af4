package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the read model of a conversation aggregate.
// It is assembled by the store on demand and never cached by the runtime.
type Conversation struct {
	ID            ConversationID
	CreatedAt     time.Time
	LastMessageAt *time.Time
	MessageCount  int64
	Unread        map[UserID]int64
}

// AggregateUpdate lists the per-key counter operations applied after a message is stored.
// Each field maps to an independent atomic operation in the store.
// When MessageID is set the update is applied at most once for that message.
type AggregateUpdate struct {
	MessageID             uuid.UUID
	LastMessageAt         time.Time
	IncrementMessageCount bool
	IncrementUnreadFor    []UserID
}
