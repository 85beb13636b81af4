package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	apperrors "chat-core/errors"
	"chat-core/runtime"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// authorize checks that the user is an active participant right now.
// Membership is never cached: a user removed mid-session is denied on the next call.
func authorize(ctx context.Context, store contract.IConversationStore, conversationID domain.ConversationID, userID domain.UserID) (domain.Participant, error) {
	p, err := store.FindActiveParticipant(ctx, conversationID, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.Participant{}, fmt.Errorf("%w: conversation %s", apperrors.ErrAccessDenied, conversationID)
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

type MembershipService struct {
	log      *slog.Logger
	store    contract.IConversationStore
	registry *runtime.Registry
	rooms    *runtime.Rooms
}

func NewMembershipService(log *slog.Logger, store contract.IConversationStore,
	registry *runtime.Registry, rooms *runtime.Rooms) *MembershipService {
	return &MembershipService{log: log, store: store, registry: registry, rooms: rooms}
}

// Join subscribes the connection to the conversation room when its identity
// is an active participant. A denied join performs no subscription.
func (m *MembershipService) Join(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) error {
	if _, err := authorize(ctx, m.store, conversationID, conn.Identity.UserID); err != nil {
		return err
	}
	m.rooms.Subscribe(conversationID, conn)

	// The connection may have gone away while the store was queried.
	// Disconnect clears subscriptions after unregistering, so checking
	// liveness after subscribing leaves no orphan behind.
	if _, live := m.registry.Lookup(conn.ID); !live {
		m.rooms.Unsubscribe(conversationID, conn.ID)
		return nil
	}

	_ = conn.Sink.Consume(ctx, event.JoinedConversation{ConversationID: conversationID})
	m.log.Debug("Joined conversation",
		"conversation_id", conversationID,
		"user_id", conn.Identity.UserID,
		"connection_id", conn.ID)
	return nil
}

func (m *MembershipService) Leave(conn contract.Connection, conversationID domain.ConversationID) {
	m.rooms.Unsubscribe(conversationID, conn.ID)
}
