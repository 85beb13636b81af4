// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// Participant is the membership of one user in one conversation.
type Participant struct {
	ConversationID ConversationID
	UserID         UserID
	JoinedAt       time.Time
	LeftAt         *time.Time
	LastReadAt     *time.Time
}

// Active reports whether the participant has not left the conversation.
func (p Participant) Active() bool {
	return p.LeftAt == nil
}
