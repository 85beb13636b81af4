// Package event defines the events pushed to live connections.
// Every event is serialized as {"event": Name(), "data": <event>} by the transport.
package event

import (
	"chat-core/domain"
	"time"

	"github.com/google/uuid"
)

const (
	UserOnlineName         = "user_online"
	UserOfflineName        = "user_offline"
	JoinedConversationName = "joined_conversation"
	ErrorName              = "error"
	UserTypingName         = "user_typing"
	UserStopTypingName     = "user_stop_typing"
	NewMessageName         = "new_message"
	NotificationName       = "notification"
	MessagesReadName       = "messages_read"
	OnlineUsersName        = "online_users"
)

type Event interface {
	Name() string
}

type UserOnline struct {
	UserID domain.UserID `json:"userId"`
}

func (UserOnline) Name() string { return UserOnlineName }

type UserOffline struct {
	UserID domain.UserID `json:"userId"`
}

func (UserOffline) Name() string { return UserOfflineName }

type JoinedConversation struct {
	ConversationID domain.ConversationID `json:"conversationId"`
}

func (JoinedConversation) Name() string { return JoinedConversationName }

// Error is only ever sent to the connection that issued the failing operation.
type Error struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

func (Error) Name() string { return ErrorName }

type UserTyping struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
}

func (UserTyping) Name() string { return UserTypingName }

type UserStopTyping struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
}

func (UserStopTyping) Name() string { return UserStopTypingName }

type NewMessage struct {
	Message MessagePayload `json:"message"`
}

func (NewMessage) Name() string { return NewMessageName }

type MessagePayload struct {
	ID             uuid.UUID             `json:"id"`
	ConversationID domain.ConversationID `json:"conversationId"`
	SenderID       domain.UserID         `json:"senderId"`
	Content        string                `json:"content"`
	Type           domain.MessageType    `json:"type"`
	ReplyToID      *uuid.UUID            `json:"replyToId,omitempty"`
	Attachments    []domain.Attachment   `json:"attachments,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
}

func NewMessageFrom(m domain.Message) NewMessage {
	return NewMessage{Message: MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           m.Type,
		ReplyToID:      m.ReplyToID,
		Attachments:    m.Attachments,
		CreatedAt:      m.CreatedAt,
	}}
}

// Notification is pushed to a participant's personal channel, whatever rooms they are subscribed to.
type Notification struct {
	Type           string                `json:"type"`
	ConversationID domain.ConversationID `json:"conversationId"`
	MessageID      uuid.UUID             `json:"messageId"`
	SenderName     string                `json:"senderName"`
	Preview        string                `json:"preview"`
}

func (Notification) Name() string { return NotificationName }

type MessagesRead struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
	ReadAt         time.Time             `json:"readAt"`
}

func (MessagesRead) Name() string { return MessagesReadName }

type OnlineUsers struct {
	Statuses map[domain.UserID]bool `json:"statusMap"`
}

func (OnlineUsers) Name() string { return OnlineUsersName }
