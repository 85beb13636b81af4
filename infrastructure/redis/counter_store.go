package redis

import (
	"chat-core/contract"
	"chat-core/domain"
	apperrors "chat-core/errors"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const defaultMarkerTTL = time.Hour

// incrementOnce bumps every unread field given in ARGV[2..] unless the
// message marker KEYS[2] already exists. Returns 1 when applied.
var incrementOnce = redis.NewScript(`
if redis.call('SET', KEYS[2], '1', 'NX', 'PX', ARGV[1]) then
	for i = 2, #ARGV do
		redis.call('HINCRBY', KEYS[1], ARGV[i], 1)
	end
	return 1
end
return 0
`)

// conversationReader is implemented by the durable store.
type conversationReader interface {
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
}

// CounterStore keeps unread counters in a Redis hash per conversation, one
// field per user, and delegates everything else to the durable store.
// HINCRBY is atomic per field, so concurrent sends never lose an increment.
type CounterStore struct {
	contract.IConversationStore
	client    *redis.Client
	log       *slog.Logger
	markerTTL time.Duration
}

// NewCounterStore wraps store. markerTTL bounds how long a message id is
// remembered to keep its increments from being applied twice.
func NewCounterStore(store contract.IConversationStore, client *redis.Client, log *slog.Logger, markerTTL time.Duration) *CounterStore {
	if markerTTL <= 0 {
		markerTTL = defaultMarkerTTL
	}
	return &CounterStore{IConversationStore: store, client: client, log: log, markerTTL: markerTTL}
}

// UpdateConversationAggregate increments Redis first, then the durable store.
// The durable store marks the message as aggregated, so a retry after either
// step failed replays both and the Redis marker absorbs the second increment.
func (s *CounterStore) UpdateConversationAggregate(ctx context.Context, conversationID domain.ConversationID, update domain.AggregateUpdate) error {
	recipients := lo.Uniq(update.IncrementUnreadFor)
	update.IncrementUnreadFor = nil
	if len(recipients) > 0 {
		if err := s.incrementUnread(ctx, conversationID, update.MessageID, recipients); err != nil {
			return fmt.Errorf("%w: unread increment: %v", apperrors.ErrPersistence, err)
		}
	}
	return s.IConversationStore.UpdateConversationAggregate(ctx, conversationID, update)
}

func (s *CounterStore) incrementUnread(ctx context.Context, conversationID domain.ConversationID, messageID uuid.UUID, recipients []domain.UserID) error {
	key := unreadKey(string(conversationID))
	if messageID == uuid.Nil {
		pipe := s.client.Pipeline()
		for _, userID := range recipients {
			pipe.HIncrBy(ctx, key, string(userID), 1)
		}
		_, err := pipe.Exec(ctx)
		return err
	}

	args := make([]any, 0, len(recipients)+1)
	args = append(args, s.markerTTL.Milliseconds())
	for _, userID := range recipients {
		args = append(args, string(userID))
	}
	applied, err := incrementOnce.Run(ctx, s.client, []string{key, aggregatedKey(messageID.String())}, args...).Int()
	if err != nil {
		return err
	}
	if applied == 0 {
		s.log.Debug("Unread already counted", "conversation_id", conversationID, "message_id", messageID)
	}
	return nil
}

func (s *CounterStore) ResetUnreadFor(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID) error {
	if err := s.client.HSet(ctx, unreadKey(string(conversationID)), string(userID), 0).Err(); err != nil {
		return fmt.Errorf("%w: unread reset: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

// GetConversation reads the aggregate from the durable store and replaces
// its unread counters, which stay at zero there, with the Redis ones.
func (s *CounterStore) GetConversation(ctx context.Context, conversationID domain.ConversationID) (domain.Conversation, error) {
	reader, ok := s.IConversationStore.(conversationReader)
	if !ok {
		return domain.Conversation{}, fmt.Errorf("%w: durable store cannot read conversations", apperrors.ErrPersistence)
	}
	conversation, err := reader.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	conversation.Unread, err = s.Unread(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

// Unread returns every non-zero counter of the conversation.
func (s *CounterStore) Unread(ctx context.Context, conversationID domain.ConversationID) (map[domain.UserID]int64, error) {
	fields, err := s.client.HGetAll(ctx, unreadKey(string(conversationID))).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: unread read: %v", apperrors.ErrPersistence, err)
	}
	res := make(map[domain.UserID]int64, len(fields))
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.log.Warn("Skipping malformed unread counter", "conversation_id", conversationID, "user_id", field, "value", raw)
			continue
		}
		if n != 0 {
			res[domain.UserID(field)] = n
		}
	}
	return res, nil
}
