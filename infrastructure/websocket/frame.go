package websocket

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Inbound event names.
const (
	JoinConversation  = "join_conversation"
	LeaveConversation = "leave_conversation"
	StartTyping       = "start_typing"
	StopTyping        = "stop_typing"
	MarkRead          = "mark_read"
	SendMessage       = "send_message"
	GetOnlineUsers    = "get_online_users"
)

var validate = validator.New()

// InboundFrame is what a client writes: {"event": "...", "data": {...}}.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundFrame is what the server writes for every event.
type OutboundFrame struct {
	Event string      `json:"event"`
	Data  event.Event `json:"data"`
}

type ConversationPayload struct {
	ConversationID domain.ConversationID `json:"conversationId" validate:"required"`
}

type SendMessagePayload struct {
	ConversationID domain.ConversationID `json:"conversationId" validate:"required"`
	Content        string                `json:"content"`
	Type           domain.MessageType    `json:"type"`
	ReplyToID      *uuid.UUID            `json:"replyToId,omitempty"`
	Attachments    []domain.Attachment   `json:"attachments,omitempty"`
	IdempotencyKey string                `json:"idempotencyKey,omitempty"`
}

// ToCommand defaults the message type to text.
func (p SendMessagePayload) ToCommand() domain.SendMessageCommand {
	messageType := p.Type
	if messageType == "" {
		messageType = domain.MessageTypeText
	}
	return domain.SendMessageCommand{
		ConversationID: p.ConversationID,
		Content:        p.Content,
		Type:           messageType,
		ReplyToID:      p.ReplyToID,
		Attachments:    p.Attachments,
		IdempotencyKey: p.IdempotencyKey,
	}
}

type OnlineUsersPayload struct {
	UserIDs []domain.UserID `json:"userIds" validate:"max=500"`
}

func Encode(e event.Event) ([]byte, error) {
	return json.Marshal(OutboundFrame{Event: e.Name(), Data: e})
}
