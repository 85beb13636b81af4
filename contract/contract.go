//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one live connection.
// Consume must not block longer than the given context allows.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Connection is an open transport session tagged with a verified identity.
type Connection struct {
	ID       domain.ConnectionID
	Identity domain.Identity
	Sink     EventSink
}

// IConversationStore is the persistence collaborator of the real-time core.
// Conversations, participants and messages are owned by the store.
type IConversationStore interface {
	// FindActiveParticipant returns errors.ErrNotFound when no record exists
	// or when the participant has left the conversation.
	FindActiveParticipant(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID) (domain.Participant, error)
	ListParticipants(ctx context.Context, conversationID domain.ConversationID) ([]domain.Participant, error)
	// InsertMessage assigns the id and the send time. The boolean is true when
	// the idempotency key matched a message of the dedup window whose aggregate
	// update already went through. A matching message whose aggregate never
	// completed is returned with false so that the caller resumes its delivery.
	InsertMessage(ctx context.Context, message domain.NewMessage) (domain.Message, bool, error)
	// UpdateConversationAggregate is applied at most once per update.MessageID.
	UpdateConversationAggregate(ctx context.Context, conversationID domain.ConversationID, update domain.AggregateUpdate) error
	UpdateParticipantLastRead(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID, at time.Time) error
	ResetUnreadFor(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID) error
}

// IPresenceMirror copies local presence into a shared store for other instances.
// It is never read back by this process.
type IPresenceMirror interface {
	SetOnline(ctx context.Context, userID domain.UserID) error
	SetOffline(ctx context.Context, userID domain.UserID) error
	Refresh(ctx context.Context, userIDs []domain.UserID) error
}

// INotificationPublisher exports personal notifications for offline delivery.
type INotificationPublisher interface {
	Publish(ctx context.Context, userID domain.UserID, notification event.Notification) error
}

type IContentFilter interface {
	Censor(original string) string
}
