package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	apperrors "chat-core/errors"
	"chat-core/infrastructure/storage"
	"chat-core/mocks"
	"chat-core/runtime"
	"chat-core/sink"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	store    *storage.ConversationStore
	registry *runtime.Registry
	rooms    *runtime.Rooms
	hub      *Hub
}

func newHub(log *slog.Logger, store contract.IConversationStore, registry *runtime.Registry,
	rooms *runtime.Rooms, publisher contract.INotificationPublisher) *Hub {
	return NewHub(log, registry, rooms,
		NewMembershipService(log, store, registry, rooms),
		NewPresenceService(log, registry, nil),
		NewTypingService(log, store, rooms),
		NewMessageService(log, store, registry, rooms, nil, publisher, 1000),
		NewReadReceiptService(log, store, rooms))
}

func newFixture(t *testing.T, publisher contract.INotificationPublisher) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := storage.NewConversationStore(db, log, time.Minute, 50)
	registry := runtime.NewRegistry()
	rooms := runtime.NewRooms()
	return &fixture{
		store:    store,
		registry: registry,
		rooms:    rooms,
		hub:      newHub(log, store, registry, rooms, publisher),
	}
}

func (f *fixture) connect(userID domain.UserID) (contract.Connection, *sink.Timeline) {
	timeline := sink.NewTimeline()
	conn := contract.Connection{
		ID:       domain.ConnectionID(uuid.NewString()),
		Identity: domain.Identity{UserID: userID, DisplayName: "User " + string(userID)},
		Sink:     timeline,
	}
	f.hub.Connect(conn)
	return conn, timeline
}

func hi(conversationID domain.ConversationID, content string) domain.SendMessageCommand {
	return domain.SendMessageCommand{
		ConversationID: conversationID,
		Content:        content,
		Type:           domain.MessageTypeText,
	}
}

func TestHub_Send_Fans_Out_Notifies_And_Counts_Unread(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	// Given alice is connected from X and Y and bob from Z, only X joined c1
	x, xEvents := f.connect("alice")
	_, yEvents := f.connect("alice")
	_, zEvents := f.connect("bob")
	req.NoError(f.hub.JoinConversation(ctx, x, "c1"))
	req.Len(xEvents.Named(event.JoinedConversationName), 1)

	// When alice sends "hi" from X
	req.NoError(f.hub.SendMessage(ctx, x, hi("c1", "hi")))

	// Then X receives the message, Y receives nothing and Z gets a notification
	messages := xEvents.Named(event.NewMessageName)
	req.Len(messages, 1)
	req.Equal("hi", messages[0].(event.NewMessage).Message.Content)
	req.Empty(yEvents.Named(event.NewMessageName))
	req.Empty(yEvents.Named(event.NotificationName))
	req.Empty(zEvents.Named(event.NewMessageName))

	notifications := zEvents.Named(event.NotificationName)
	req.Len(notifications, 1)
	notification := notifications[0].(event.Notification)
	req.Equal(domain.ConversationID("c1"), notification.ConversationID)
	req.Equal("User alice", notification.SenderName)
	req.Equal("hi", notification.Preview)
	req.Empty(xEvents.Named(event.NotificationName))

	// And only bob has an unread message
	conversation, err := f.store.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Equal(int64(1), conversation.MessageCount)
	req.Equal(int64(1), conversation.Unread["bob"])
	req.Zero(conversation.Unread["alice"])
	req.NotNil(conversation.LastMessageAt)
}

func TestHub_Send_Reaches_Every_Subscribed_Device_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	// Given alice is connected from X and Y, bob from Z, and all three joined c1
	x, xEvents := f.connect("alice")
	y, yEvents := f.connect("alice")
	z, zEvents := f.connect("bob")
	for _, conn := range []contract.Connection{x, y, z} {
		req.NoError(f.hub.JoinConversation(ctx, conn, "c1"))
	}

	// When alice sends "hi" from X
	req.NoError(f.hub.SendMessage(ctx, x, hi("c1", "hi")))

	// Then every device receives the message exactly once
	for _, timeline := range []*sink.Timeline{xEvents, yEvents, zEvents} {
		messages := timeline.Named(event.NewMessageName)
		req.Len(messages, 1)
		req.Equal("hi", messages[0].(event.NewMessage).Message.Content)
	}

	// And only bob is notified
	req.Len(zEvents.Named(event.NotificationName), 1)
	req.Empty(xEvents.Named(event.NotificationName))
	req.Empty(yEvents.Named(event.NotificationName))

	conversation, err := f.store.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Equal(int64(1), conversation.Unread["bob"])
	req.Zero(conversation.Unread["alice"])
}

// failAggregateOnce fails the first aggregate update and delegates afterwards.
type failAggregateOnce struct {
	*storage.ConversationStore
	failed bool
}

func (s *failAggregateOnce) UpdateConversationAggregate(ctx context.Context, conversationID domain.ConversationID, update domain.AggregateUpdate) error {
	if !s.failed {
		s.failed = true
		return apperrors.ErrPersistence
	}
	return s.ConversationStore.UpdateConversationAggregate(ctx, conversationID, update)
}

func TestHub_Send_Retry_After_Failed_Aggregate_Delivers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := newHub(log, &failAggregateOnce{ConversationStore: f.store}, f.registry, f.rooms, nil)

	// Given alice and bob both joined c1
	alice := contract.Connection{
		ID:       "alice-1",
		Identity: domain.Identity{UserID: "alice", DisplayName: "Alice"},
		Sink:     sink.NewTimeline(),
	}
	bobEvents := sink.NewTimeline()
	bob := contract.Connection{
		ID:       "bob-1",
		Identity: domain.Identity{UserID: "bob", DisplayName: "Bob"},
		Sink:     bobEvents,
	}
	hub.Connect(alice)
	hub.Connect(bob)
	req.NoError(hub.JoinConversation(ctx, alice, "c1"))
	req.NoError(hub.JoinConversation(ctx, bob, "c1"))

	cmd := hi("c1", "hi")
	cmd.IdempotencyKey = "k1"

	// When the first send fails after the message was stored
	err := hub.SendMessage(ctx, alice, cmd)
	req.ErrorIs(err, apperrors.ErrPersistence)
	req.Empty(bobEvents.Named(event.NewMessageName))

	// And alice retries with the same key
	req.NoError(hub.SendMessage(ctx, alice, cmd))

	// Then bob receives the message and a notification once
	req.Len(bobEvents.Named(event.NewMessageName), 1)
	req.Len(bobEvents.Named(event.NotificationName), 1)

	// And the message is stored and counted once
	messages, _, err := f.store.ListMessages(ctx, "c1", nil)
	req.NoError(err)
	req.Len(messages, 1)
	conversation, err := f.store.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Equal(int64(1), conversation.MessageCount)
	req.Equal(int64(1), conversation.Unread["bob"])

	// When alice retries once more, only she gets the echo
	req.NoError(hub.SendMessage(ctx, alice, cmd))
	req.Len(bobEvents.Named(event.NewMessageName), 1)
	conversation, err = f.store.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Equal(int64(1), conversation.MessageCount)
}

func TestHub_MarkRead_Resets_Unread_And_Emits_Receipt(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	x, xEvents := f.connect("alice")
	z, zEvents := f.connect("bob")
	req.NoError(f.hub.JoinConversation(ctx, x, "c1"))
	req.NoError(f.hub.SendMessage(ctx, x, hi("c1", "hi")))

	// When bob joins and reads the conversation
	req.NoError(f.hub.JoinConversation(ctx, z, "c1"))
	req.NoError(f.hub.MarkRead(ctx, z, "c1"))

	// Then bob's counter is back to zero
	conversation, err := f.store.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Zero(conversation.Unread["bob"])

	// And alice sees the receipt while bob does not see his own
	receipts := xEvents.Named(event.MessagesReadName)
	req.Len(receipts, 1)
	req.Equal(domain.UserID("bob"), receipts[0].(event.MessagesRead).UserID)
	req.Empty(zEvents.Named(event.MessagesReadName))

	participant, err := f.store.FindActiveParticipant(ctx, "c1", "bob")
	req.NoError(err)
	req.NotNil(participant.LastReadAt)
}

func TestHub_MarkRead_Denied_For_Stranger(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice"))

	m, mEvents := f.connect("mallory")
	err := f.hub.MarkRead(ctx, m, "c1")
	req.ErrorIs(err, apperrors.ErrAccessDenied)

	errs := mEvents.Named(event.ErrorName)
	req.Len(errs, 1)
	req.Equal("mark_read", errs[0].(event.Error).Event)
}

func TestHub_Left_Participant_Is_Denied_And_Never_Receives(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "carol"))

	x, _ := f.connect("alice")
	c, cEvents := f.connect("carol")
	req.NoError(f.hub.JoinConversation(ctx, x, "c1"))

	// Given carol left the conversation
	req.NoError(f.store.RemoveParticipant(ctx, "c1", "carol"))

	// When she tries to join
	err := f.hub.JoinConversation(ctx, c, "c1")

	// Then she is denied with a single error event and no subscription
	req.ErrorIs(err, apperrors.ErrAccessDenied)
	errs := cEvents.Named(event.ErrorName)
	req.Len(errs, 1)
	req.Equal("join_conversation", errs[0].(event.Error).Event)
	req.Equal(apperrors.ErrAccessDenied.Error(), errs[0].(event.Error).Message)
	req.False(f.rooms.IsSubscribed("c1", c.ID))

	// And later messages reach her neither as a message nor as a notification
	req.NoError(f.hub.SendMessage(ctx, x, hi("c1", "are you there?")))
	req.Empty(cEvents.Named(event.NewMessageName))
	req.Empty(cEvents.Named(event.NotificationName))

	// And she cannot send either
	err = f.hub.SendMessage(ctx, c, hi("c1", "let me in"))
	req.ErrorIs(err, apperrors.ErrAccessDenied)
}

func TestHub_Denied_Send_Delivers_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	x, xEvents := f.connect("alice")
	_, zEvents := f.connect("bob")
	m, mEvents := f.connect("mallory")
	req.NoError(f.hub.JoinConversation(ctx, x, "c1"))

	err := f.hub.SendMessage(ctx, m, hi("c1", "spam"))
	req.ErrorIs(err, apperrors.ErrAccessDenied)

	req.Empty(xEvents.Named(event.NewMessageName))
	req.Empty(zEvents.Named(event.NotificationName))
	req.Len(mEvents.Named(event.ErrorName), 1)

	conversation, err := f.store.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Zero(conversation.MessageCount)
}

func TestHub_Invalid_Send_Is_Reported(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice"))
	x, xEvents := f.connect("alice")

	err := f.hub.SendMessage(ctx, x, hi("c1", "   "))
	req.ErrorIs(err, apperrors.ErrInvalidMessage)

	errs := xEvents.Named(event.ErrorName)
	req.Len(errs, 1)
	req.Equal("send_message", errs[0].(event.Error).Event)
}

func TestHub_Concurrent_Sends_Are_Observed_In_Send_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	x, _ := f.connect("alice")
	z, zEvents := f.connect("bob")
	req.NoError(f.hub.JoinConversation(ctx, z, "c1"))

	const sends = 20
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.hub.SendMessage(ctx, x, hi("c1", fmt.Sprintf("m%d", i)))
		}()
	}
	wg.Wait()

	messages := zEvents.Named(event.NewMessageName)
	req.Len(messages, sends)
	for i := 1; i < len(messages); i++ {
		previous := messages[i-1].(event.NewMessage).Message.CreatedAt
		current := messages[i].(event.NewMessage).Message.CreatedAt
		req.True(current.After(previous))
	}

	conversation, err := f.store.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Equal(int64(sends), conversation.Unread["bob"])
}

func TestHub_Duplicate_Send_Is_Acknowledged_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	x, xEvents := f.connect("alice")
	z, zEvents := f.connect("bob")
	req.NoError(f.hub.JoinConversation(ctx, x, "c1"))
	req.NoError(f.hub.JoinConversation(ctx, z, "c1"))

	cmd := hi("c1", "hi")
	cmd.IdempotencyKey = "retry-1"

	// When alice retries the same send
	req.NoError(f.hub.SendMessage(ctx, x, cmd))
	req.NoError(f.hub.SendMessage(ctx, x, cmd))

	// Then bob observes a single message and a single unread
	req.Len(zEvents.Named(event.NewMessageName), 1)
	conversation, err := f.store.GetConversation(ctx, "c1")
	req.NoError(err)
	req.Equal(int64(1), conversation.MessageCount)
	req.Equal(int64(1), conversation.Unread["bob"])

	// And alice gets the original message back as acknowledgement
	acks := xEvents.Named(event.NewMessageName)
	req.Len(acks, 2)
	req.Equal(acks[0].(event.NewMessage).Message.ID, acks[1].(event.NewMessage).Message.ID)
}

func TestHub_Typing_Is_Never_Echoed_To_Sender_Devices(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	x, xEvents := f.connect("alice")
	y, yEvents := f.connect("alice")
	z, zEvents := f.connect("bob")
	for _, conn := range []contract.Connection{x, y, z} {
		req.NoError(f.hub.JoinConversation(ctx, conn, "c1"))
	}

	f.hub.StartTyping(ctx, x, "c1")
	f.hub.StopTyping(ctx, x, "c1")

	req.Len(zEvents.Named(event.UserTypingName), 1)
	req.Len(zEvents.Named(event.UserStopTypingName), 1)
	req.Empty(xEvents.Named(event.UserTypingName))
	req.Empty(yEvents.Named(event.UserTypingName))
}

func TestHub_Typing_From_Stranger_Is_Dropped_Silently(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice"))

	x, xEvents := f.connect("alice")
	m, mEvents := f.connect("mallory")
	req.NoError(f.hub.JoinConversation(ctx, x, "c1"))

	f.hub.StartTyping(ctx, m, "c1")

	req.Empty(xEvents.Named(event.UserTypingName))
	req.Empty(mEvents.Named(event.ErrorName))
}

func TestHub_Presence_Transitions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)

	_, zEvents := f.connect("bob")

	// When alice opens two connections
	x, xEvents := f.connect("alice")
	y, _ := f.connect("alice")

	// Then bob is told once that alice is online, and alice never hears about herself
	online := zEvents.Named(event.UserOnlineName)
	req.Len(online, 1)
	req.Equal(domain.UserID("alice"), online[0].(event.UserOnline).UserID)
	req.Empty(xEvents.Named(event.UserOnlineName))

	// When the first connection closes alice is still online
	f.hub.Disconnect(x.ID)
	req.Empty(zEvents.Named(event.UserOfflineName))

	// When the last one closes, twice, a single offline event is emitted
	f.hub.Disconnect(y.ID)
	f.hub.Disconnect(y.ID)
	req.Len(zEvents.Named(event.UserOfflineName), 1)

	// And the bulk status query reflects the registry
	z := f.registry.LiveConnectionsFor("bob")[0]
	f.hub.GetOnlineUsers(ctx, z, []domain.UserID{"alice", "bob"})
	statuses := zEvents.Named(event.OnlineUsersName)
	req.Len(statuses, 1)
	req.Equal(map[domain.UserID]bool{"alice": false, "bob": true}, statuses[0].(event.OnlineUsers).Statuses)
}

func TestHub_Disconnect_Clears_Room_Subscriptions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	x, _ := f.connect("alice")
	z, zEvents := f.connect("bob")
	req.NoError(f.hub.JoinConversation(ctx, z, "c1"))

	f.hub.Disconnect(z.ID)
	req.False(f.rooms.IsSubscribed("c1", z.ID))

	// A join racing with the disconnect does not leave an orphan subscription
	req.NoError(f.hub.JoinConversation(ctx, z, "c1"))
	req.False(f.rooms.IsSubscribed("c1", z.ID))

	req.NoError(f.hub.SendMessage(ctx, x, hi("c1", "hi")))
	req.Empty(zEvents.Named(event.NewMessageName))
}

func TestHub_LeaveConversation_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	x, _ := f.connect("alice")
	z, zEvents := f.connect("bob")
	req.NoError(f.hub.JoinConversation(ctx, z, "c1"))
	f.hub.LeaveConversation(z, "c1")

	req.NoError(f.hub.SendMessage(ctx, x, hi("c1", "hi")))

	// bob still receives the personal notification, not the room message
	req.Empty(zEvents.Named(event.NewMessageName))
	req.Len(zEvents.Named(event.NotificationName), 1)
}

func TestHub_Send_Exports_Notifications(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockINotificationPublisher(ctrl)
	f := newFixture(t, publisher)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob", "carol"))

	// Then one notification is exported per recipient, never for the sender
	publisher.EXPECT().
		Publish(gomock.Any(), domain.UserID("bob"), gomock.Any()).
		Return(nil).
		Times(1)
	publisher.EXPECT().
		Publish(gomock.Any(), domain.UserID("carol"), gomock.Any()).
		Return(fmt.Errorf("broker unavailable")).
		Times(1)

	x, _ := f.connect("alice")
	req.NoError(f.hub.SendMessage(ctx, x, hi("c1", "hi")))
}

func TestHub_Send_Persistence_Failure_Delivers_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIConversationStore(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewRegistry()
	rooms := runtime.NewRooms()
	hub := newHub(log, store, registry, rooms, nil)

	xEvents, zEvents := sink.NewTimeline(), sink.NewTimeline()
	x := contract.Connection{ID: "x", Identity: domain.Identity{UserID: "alice"}, Sink: xEvents}
	z := contract.Connection{ID: "z", Identity: domain.Identity{UserID: "bob"}, Sink: zEvents}
	hub.Connect(x)
	hub.Connect(z)
	rooms.Subscribe("c1", z)

	// Given the store accepts the membership check but fails the insert
	store.EXPECT().
		FindActiveParticipant(gomock.Any(), domain.ConversationID("c1"), domain.UserID("alice")).
		Return(domain.Participant{ConversationID: "c1", UserID: "alice"}, nil)
	store.EXPECT().
		InsertMessage(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, false, fmt.Errorf("%w: disk full", apperrors.ErrPersistence))

	err := hub.SendMessage(ctx, x, hi("c1", "hi"))

	// Then the sender gets a retryable error and nobody else hears anything
	req.ErrorIs(err, apperrors.ErrPersistence)
	errs := xEvents.Named(event.ErrorName)
	req.Len(errs, 1)
	req.Equal("temporary failure, please try again", errs[0].(event.Error).Message)
	req.Empty(zEvents.Named(event.NewMessageName))
	req.Empty(zEvents.Named(event.NotificationName))
}

func TestHub_Send_Aggregate_Failure_Delivers_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIConversationStore(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewRegistry()
	rooms := runtime.NewRooms()
	hub := newHub(log, store, registry, rooms, nil)

	xEvents, zEvents := sink.NewTimeline(), sink.NewTimeline()
	x := contract.Connection{ID: "x", Identity: domain.Identity{UserID: "alice"}, Sink: xEvents}
	z := contract.Connection{ID: "z", Identity: domain.Identity{UserID: "bob"}, Sink: zEvents}
	hub.Connect(x)
	hub.Connect(z)
	rooms.Subscribe("c1", x)
	rooms.Subscribe("c1", z)

	stored := domain.Message{ID: uuid.New(), ConversationID: "c1", SenderID: "alice", Content: "hi", CreatedAt: time.Now()}
	gomock.InOrder(
		store.EXPECT().FindActiveParticipant(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Participant{ConversationID: "c1", UserID: "alice"}, nil),
		store.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).
			Return(stored, false, nil),
		store.EXPECT().ListParticipants(gomock.Any(), domain.ConversationID("c1")).
			Return([]domain.Participant{{UserID: "alice"}, {UserID: "bob"}}, nil),
		store.EXPECT().UpdateConversationAggregate(gomock.Any(), domain.ConversationID("c1"), gomock.Any()).
			Return(fmt.Errorf("%w: conflict", apperrors.ErrPersistence)),
	)

	err := hub.SendMessage(ctx, x, hi("c1", "hi"))
	req.ErrorIs(err, apperrors.ErrPersistence)
	req.Empty(xEvents.Named(event.NewMessageName))
	req.Empty(zEvents.Named(event.NewMessageName))
	req.Empty(zEvents.Named(event.NotificationName))
}

func TestHub_Send_Censors_Before_Persistence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	filter := mocks.NewMockIContentFilter(ctrl)
	f := newFixture(t, nil)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := NewHub(log, f.registry, f.rooms,
		NewMembershipService(log, f.store, f.registry, f.rooms),
		NewPresenceService(log, f.registry, nil),
		NewTypingService(log, f.store, f.rooms),
		NewMessageService(log, f.store, f.registry, f.rooms, filter, nil, 1000),
		NewReadReceiptService(log, f.store, f.rooms))
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob"))

	// Given a filter masking one word
	filter.EXPECT().Censor("you idiot").Return("you *****").Times(1)

	x := contract.Connection{ID: "x", Identity: domain.Identity{UserID: "alice"}, Sink: sink.NewTimeline()}
	zEvents := sink.NewTimeline()
	z := contract.Connection{ID: "z", Identity: domain.Identity{UserID: "bob"}, Sink: zEvents}
	hub.Connect(x)
	hub.Connect(z)
	req.NoError(hub.JoinConversation(ctx, z, "c1"))

	// When alice sends it
	req.NoError(hub.SendMessage(ctx, x, hi("c1", "you idiot")))

	// Then both the delivered and the stored copies are censored
	messages := zEvents.Named(event.NewMessageName)
	req.Len(messages, 1)
	req.Equal("you *****", messages[0].(event.NewMessage).Message.Content)
	req.Equal("you *****", zEvents.Named(event.NotificationName)[0].(event.Notification).Preview)

	page, _, err := f.store.ListMessages(ctx, "c1", nil)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("you *****", page[0].Content)
}

func TestHub_Send_Continues_Past_A_Failing_Sink(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	f := newFixture(t, nil)
	req.NoError(f.store.CreateConversation(ctx, "c1", "alice", "bob", "carol"))

	// Given bob's connection is saturated
	saturated := mocks.NewMockEventSink(ctrl)
	saturated.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(apperrors.ErrSlowConsumer).AnyTimes()
	bob := contract.Connection{ID: "bob-1", Identity: domain.Identity{UserID: "bob"}, Sink: saturated}
	f.hub.Connect(bob)
	f.rooms.Subscribe("c1", bob)

	x, _ := f.connect("alice")
	carol, carolEvents := f.connect("carol")
	req.NoError(f.hub.JoinConversation(ctx, carol, "c1"))

	// When alice sends
	req.NoError(f.hub.SendMessage(ctx, x, hi("c1", "hi")))

	// Then carol is served regardless
	req.Len(carolEvents.Named(event.NewMessageName), 1)
	req.Len(carolEvents.Named(event.NotificationName), 1)
}
