package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/runtime"
	"context"
	"log/slog"
	"time"
)

type ReadReceiptService struct {
	log   *slog.Logger
	store contract.IConversationStore
	rooms *runtime.Rooms
	now   func() time.Time
}

func NewReadReceiptService(log *slog.Logger, store contract.IConversationStore, rooms *runtime.Rooms) *ReadReceiptService {
	return &ReadReceiptService{log: log, store: store, rooms: rooms, now: time.Now}
}

// MarkRead advances the caller's watermark, resets its unread counter and
// notifies the other room subscribers. A caller who is not an active
// participant gets ErrAccessDenied.
func (r *ReadReceiptService) MarkRead(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) error {
	userID := conn.Identity.UserID
	if _, err := authorize(ctx, r.store, conversationID, userID); err != nil {
		return err
	}

	readAt := r.now().UTC()
	if err := r.store.UpdateParticipantLastRead(ctx, conversationID, userID, readAt); err != nil {
		return err
	}
	if err := r.store.ResetUnreadFor(ctx, conversationID, userID); err != nil {
		return err
	}

	receipt := event.MessagesRead{ConversationID: conversationID, UserID: userID, ReadAt: readAt}
	deliveryCtx := context.WithoutCancel(ctx)
	for _, sub := range r.rooms.Subscribers(conversationID) {
		if sub.ID == conn.ID {
			continue
		}
		_ = sub.Sink.Consume(deliveryCtx, receipt)
	}
	r.log.Debug("Conversation read", "conversation_id", conversationID, "user_id", userID)
	return nil
}
