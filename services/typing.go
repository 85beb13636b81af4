package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/runtime"
	"context"
	"log/slog"
)

// TypingService relays ephemeral typing signals to the other room subscribers.
// Nothing is stored and a failed signal is dropped without notice.
type TypingService struct {
	log   *slog.Logger
	store contract.IConversationStore
	rooms *runtime.Rooms
}

func NewTypingService(log *slog.Logger, store contract.IConversationStore, rooms *runtime.Rooms) *TypingService {
	return &TypingService{log: log, store: store, rooms: rooms}
}

func (t *TypingService) StartTyping(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) {
	t.relay(ctx, conn, conversationID, event.UserTyping{ConversationID: conversationID, UserID: conn.Identity.UserID})
}

func (t *TypingService) StopTyping(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) {
	t.relay(ctx, conn, conversationID, event.UserStopTyping{ConversationID: conversationID, UserID: conn.Identity.UserID})
}

func (t *TypingService) relay(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID, e event.Event) {
	if _, err := authorize(ctx, t.store, conversationID, conn.Identity.UserID); err != nil {
		t.log.Debug("Typing signal dropped",
			"conversation_id", conversationID,
			"user_id", conn.Identity.UserID,
			"error", err)
		return
	}
	for _, sub := range t.rooms.Subscribers(conversationID) {
		// Never echo to any device of the sender
		if sub.Identity.UserID == conn.Identity.UserID {
			continue
		}
		_ = sub.Sink.Consume(ctx, e)
	}
}
