package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	apperrors "chat-core/errors"
	"chat-core/runtime"
	"context"
	"log/slog"
)

// IHub lists the inbound operations a transport invokes on behalf of an authenticated connection.
type IHub interface {
	Connect(conn contract.Connection)
	Disconnect(connID domain.ConnectionID)
	JoinConversation(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) error
	LeaveConversation(conn contract.Connection, conversationID domain.ConversationID)
	StartTyping(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID)
	StopTyping(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID)
	MarkRead(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) error
	SendMessage(ctx context.Context, conn contract.Connection, cmd domain.SendMessageCommand) error
	GetOnlineUsers(ctx context.Context, conn contract.Connection, userIDs []domain.UserID)
	ReportError(ctx context.Context, conn contract.Connection, eventName string, err error)
}

// Hub is the single entry point of the real-time core.
// Failures are reported to the originating connection as an error event and
// returned to the transport for logging.
type Hub struct {
	log        *slog.Logger
	registry   *runtime.Registry
	rooms      *runtime.Rooms
	membership *MembershipService
	presence   *PresenceService
	typing     *TypingService
	messages   *MessageService
	receipts   *ReadReceiptService
}

func NewHub(log *slog.Logger, registry *runtime.Registry, rooms *runtime.Rooms,
	membership *MembershipService, presence *PresenceService, typing *TypingService,
	messages *MessageService, receipts *ReadReceiptService) *Hub {
	return &Hub{
		log:        log,
		registry:   registry,
		rooms:      rooms,
		membership: membership,
		presence:   presence,
		typing:     typing,
		messages:   messages,
		receipts:   receipts,
	}
}

func (h *Hub) Connect(conn contract.Connection) {
	first := h.registry.Register(conn)
	h.log.Info("Connection registered",
		"connection_id", conn.ID,
		"user_id", conn.Identity.UserID,
		"first", first)
}

// Disconnect never fails, even for a connection that is already gone.
func (h *Hub) Disconnect(connID domain.ConnectionID) {
	offline := h.registry.Unregister(connID)
	rooms := h.rooms.UnsubscribeAll(connID)
	h.log.Info("Connection unregistered",
		"connection_id", connID,
		"rooms", len(rooms),
		"offline", offline)
}

func (h *Hub) JoinConversation(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) error {
	err := h.membership.Join(ctx, conn, conversationID)
	if err != nil {
		h.ReportError(ctx, conn, "join_conversation", err)
	}
	return err
}

func (h *Hub) LeaveConversation(conn contract.Connection, conversationID domain.ConversationID) {
	h.membership.Leave(conn, conversationID)
}

func (h *Hub) StartTyping(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) {
	h.typing.StartTyping(ctx, conn, conversationID)
}

func (h *Hub) StopTyping(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) {
	h.typing.StopTyping(ctx, conn, conversationID)
}

func (h *Hub) MarkRead(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) error {
	err := h.receipts.MarkRead(ctx, conn, conversationID)
	if err != nil {
		h.ReportError(ctx, conn, "mark_read", err)
	}
	return err
}

func (h *Hub) SendMessage(ctx context.Context, conn contract.Connection, cmd domain.SendMessageCommand) error {
	_, err := h.messages.Send(ctx, conn, cmd)
	if err != nil {
		h.ReportError(ctx, conn, "send_message", err)
	}
	return err
}

func (h *Hub) GetOnlineUsers(ctx context.Context, conn contract.Connection, userIDs []domain.UserID) {
	_ = conn.Sink.Consume(ctx, event.OnlineUsers{Statuses: h.presence.BulkStatus(userIDs)})
}

// ReportError sends exactly one error event to the connection that issued the operation.
func (h *Hub) ReportError(ctx context.Context, conn contract.Connection, eventName string, err error) {
	h.log.Debug("Operation failed",
		"event", eventName,
		"connection_id", conn.ID,
		"user_id", conn.Identity.UserID,
		"error", err)
	_ = conn.Sink.Consume(context.WithoutCancel(ctx), event.Error{
		Event:   eventName,
		Message: apperrors.ClientMessage(err),
	})
}
