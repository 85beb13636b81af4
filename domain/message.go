// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once stored.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

type Attachment struct {
	URL      string `json:"url" validate:"required,url"`
	Name     string `json:"name" validate:"required,max=255"`
	MimeType string `json:"mimeType" validate:"required"`
	Size     int64  `json:"size" validate:"gte=0"`
}

// Message represents an immutable chat message.
// ID and CreatedAt are always assigned by the server.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Type           MessageType
	ReplyToID      *uuid.UUID
	Attachments    []Attachment
	CreatedAt      time.Time
}

// NewMessage is a message about to be stored, before the server assigns an id and a time.
type NewMessage struct {
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Type           MessageType
	ReplyToID      *uuid.UUID
	Attachments    []Attachment
	IdempotencyKey string
}
