package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	apperrors "chat-core/errors"
	"chat-core/runtime"
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

const previewLength = 100

type sendState string

const (
	stateReceived   sendState = "RECEIVED"
	stateAuthorized sendState = "AUTHORIZED"
	statePersisted  sendState = "PERSISTED"
	stateAggregated sendState = "AGGREGATED"
	stateFannedOut  sendState = "FANNED_OUT"
	stateFailed     sendState = "FAILED"
)

// MessageService authorizes, persists, aggregates and fans out chat messages.
//
// Sends into the same conversation are serialized from persistence to
// fan-out, so every subscriber observes messages in send-time order.
// Sends into different conversations run in parallel.
type MessageService struct {
	log              *slog.Logger
	store            contract.IConversationStore
	registry         *runtime.Registry
	rooms            *runtime.Rooms
	locks            *runtime.KeyedMutex
	filter           contract.IContentFilter
	publisher        contract.INotificationPublisher
	maxContentLength int
}

// NewMessageService builds the pipeline. filter and publisher are optional.
func NewMessageService(log *slog.Logger, store contract.IConversationStore,
	registry *runtime.Registry, rooms *runtime.Rooms,
	filter contract.IContentFilter, publisher contract.INotificationPublisher,
	maxContentLength int) *MessageService {
	return &MessageService{
		log:              log,
		store:            store,
		registry:         registry,
		rooms:            rooms,
		locks:            runtime.NewKeyedMutex(),
		filter:           filter,
		publisher:        publisher,
		maxContentLength: maxContentLength,
	}
}

// Send runs one message through the delivery state machine.
// On any failure nothing is delivered to anyone and the error is returned
// to the caller, who reports it to the originating connection only.
func (s *MessageService) Send(ctx context.Context, conn contract.Connection, cmd domain.SendMessageCommand) (domain.Message, error) {
	sender := conn.Identity.UserID
	log := s.log.With(
		"conversation_id", cmd.ConversationID,
		"user_id", sender,
		"connection_id", conn.ID)
	log.Debug("Send", "state", stateReceived)

	if err := cmd.Validate(s.maxContentLength); err != nil {
		log.Debug("Send", "state", stateFailed, "error", err)
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidMessage, err)
	}

	if _, err := authorize(ctx, s.store, cmd.ConversationID, sender); err != nil {
		log.Debug("Send", "state", stateFailed, "error", err)
		return domain.Message{}, err
	}
	log.Debug("Send", "state", stateAuthorized)

	newMessage := cmd.ToNewMessage(sender)
	if s.filter != nil {
		newMessage.Content = s.filter.Censor(newMessage.Content)
	}

	unlock := s.locks.Lock(string(cmd.ConversationID))
	defer unlock()

	message, duplicate, err := s.store.InsertMessage(ctx, newMessage)
	if err != nil {
		log.Warn("Send", "state", stateFailed, "error", err)
		return domain.Message{}, err
	}
	log.Debug("Send", "state", statePersisted, "message_id", message.ID, "duplicate", duplicate)

	// Fan-out must not be cut short once it started
	deliveryCtx := context.WithoutCancel(ctx)

	if duplicate {
		// Already delivered once: acknowledge the retry to its author only
		_ = conn.Sink.Consume(deliveryCtx, event.NewMessageFrom(message))
		return message, nil
	}

	participants, err := s.store.ListParticipants(ctx, cmd.ConversationID)
	if err != nil {
		log.Warn("Send", "state", stateFailed, "error", err)
		return domain.Message{}, err
	}
	recipients := lo.FilterMap(participants, func(p domain.Participant, _ int) (domain.UserID, bool) {
		return p.UserID, p.UserID != sender
	})

	err = s.store.UpdateConversationAggregate(ctx, cmd.ConversationID, domain.AggregateUpdate{
		MessageID:             message.ID,
		LastMessageAt:         message.CreatedAt,
		IncrementMessageCount: true,
		IncrementUnreadFor:    recipients,
	})
	if err != nil {
		log.Warn("Send", "state", stateFailed, "error", err)
		return domain.Message{}, err
	}
	log.Debug("Send", "state", stateAggregated, "recipients", len(recipients))

	s.fanout(deliveryCtx, message)
	s.notify(deliveryCtx, conn.Identity, message, recipients)
	log.Debug("Send", "state", stateFannedOut)

	return message, nil
}

// fanout delivers the message to every connection subscribed to the room,
// including the other devices of the sender.
func (s *MessageService) fanout(ctx context.Context, message domain.Message) {
	e := event.NewMessageFrom(message)
	for _, sub := range s.rooms.Subscribers(message.ConversationID) {
		if err := sub.Sink.Consume(ctx, e); err != nil {
			s.log.Debug("Delivery failed", "connection_id", sub.ID, "error", err)
		}
	}
}

// notify pushes a lightweight notification to the personal channel of every
// recipient, subscribed to the room or not.
func (s *MessageService) notify(ctx context.Context, sender domain.Identity, message domain.Message, recipients []domain.UserID) {
	notification := event.Notification{
		Type:           event.NewMessageName,
		ConversationID: message.ConversationID,
		MessageID:      message.ID,
		SenderName:     sender.DisplayName,
		Preview:        preview(message),
	}
	for _, userID := range recipients {
		for _, conn := range s.registry.LiveConnectionsFor(userID) {
			_ = conn.Sink.Consume(ctx, notification)
		}
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.Publish(ctx, userID, notification); err != nil {
			s.log.Warn("Notification export failed", "user_id", userID, "error", err)
		}
	}
}

func preview(message domain.Message) string {
	runes := []rune(message.Content)
	if len(runes) == 0 && len(message.Attachments) > 0 {
		return message.Attachments[0].Name
	}
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return string(runes)
}
