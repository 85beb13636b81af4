package domain

type UserID string

type ConversationID string

type ConnectionID string

// Identity is the verified user behind a connection.
type Identity struct {
	UserID      UserID
	DisplayName string
}

// PresenceChange is an online/offline transition derived from the live connection count.
type PresenceChange struct {
	UserID UserID
	Online bool
}
