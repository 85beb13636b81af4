package storage

import (
	"chat-core/domain"
	apperrors "chat-core/errors"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// maxConflictRetries bounds the optimistic transaction loop used by counters.
// Badger detects concurrent writes on the same key and aborts with ErrConflict;
// replaying the transaction is how a per-key atomic increment is obtained.
const maxConflictRetries = 64

// ConversationStore persists conversations, participants, messages and
// per-key counters in BadgerDB.
//
// Keys:
//
//	conv:{conversation}                       conversation record
//	clock:{conversation}                      last assigned send time (ns)
//	agg:{conversation}:last                   last message time (ns)
//	agg:{conversation}:count                  message count
//	agg:{conversation}:unread:{user}          unread counter of one participant
//	part:{conversation}:{user}                participant record
//	msg:{conversation}:{ns_padded}:{uuid}     message, ordered by send time
//	idem:{conversation}:{sender}:{key}        message key, expires after the dedup window
//	done:{conversation}:{uuid}                aggregate applied for the message, same expiry
type ConversationStore struct {
	db                *badger.DB
	log               *slog.Logger
	idempotencyWindow time.Duration
	limitMessages     int
	now               func() time.Time
}

func NewConversationStore(db *badger.DB, log *slog.Logger, idempotencyWindow time.Duration, limitMessages int) *ConversationStore {
	return &ConversationStore{
		db:                db,
		log:               log,
		idempotencyWindow: idempotencyWindow,
		limitMessages:     limitMessages,
		now:               time.Now,
	}
}

type diskConversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type diskParticipant struct {
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	JoinedAt       time.Time  `json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
}

type diskMessage struct {
	ID             uuid.UUID           `json:"id"`
	ConversationID string              `json:"conversation_id"`
	SenderID       string              `json:"sender_id"`
	Content        string              `json:"content"`
	Type           string              `json:"type"`
	ReplyToID      *uuid.UUID          `json:"reply_to_id,omitempty"`
	Attachments    []domain.Attachment `json:"attachments,omitempty"`
	At             int64               `json:"at"`
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte("conv:" + string(id))
}

func clockKey(id domain.ConversationID) []byte {
	return []byte("clock:" + string(id))
}

func lastMessageKey(id domain.ConversationID) []byte {
	return []byte("agg:" + string(id) + ":last")
}

func messageCountKey(id domain.ConversationID) []byte {
	return []byte("agg:" + string(id) + ":count")
}

func unreadPrefix(id domain.ConversationID) []byte {
	return []byte("agg:" + string(id) + ":unread:")
}

func unreadKey(id domain.ConversationID, userID domain.UserID) []byte {
	return append(unreadPrefix(id), []byte(userID)...)
}

func participantPrefix(id domain.ConversationID) []byte {
	return []byte("part:" + string(id) + ":")
}

func participantKey(id domain.ConversationID, userID domain.UserID) []byte {
	return append(participantPrefix(id), []byte(userID)...)
}

func messagePrefix(id domain.ConversationID) string {
	return "msg:" + string(id) + ":"
}

// messageKey is formatted as "msg:{conversation}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector.
func messageKey(id domain.ConversationID, at time.Time, msgID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messagePrefix(id), at.UnixNano(), msgID))
}

func idempotencyKey(id domain.ConversationID, sender domain.UserID, key string) []byte {
	return []byte("idem:" + string(id) + ":" + string(sender) + ":" + key)
}

func aggregatedKey(id domain.ConversationID, msgID uuid.UUID) []byte {
	return []byte("done:" + string(id) + ":" + msgID.String())
}

func persistenceError(err error) error {
	return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
}

// validID rejects identifiers that would break the key layout.
func validID(s string) bool {
	return s != "" && !strings.Contains(s, ":")
}

// update runs fn in a read-write transaction and replays it on conflicts.
func (s *ConversationStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("Transaction conflict, replaying", "attempt", attempt+1)
	}
	return err
}

func readUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupted counter %s", key)
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err
}

func writeUint64(txn *badger.Txn, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return txn.Set(key, buf)
}

func readJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func writeJSON(txn *badger.Txn, key []byte, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// CreateConversation stores a conversation with its initial participants.
func (s *ConversationStore) CreateConversation(ctx context.Context, id domain.ConversationID, participants ...domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(string(id)) {
		return fmt.Errorf("%w: conversation id %q", apperrors.ErrInvalidPayload, id)
	}
	now := s.now().UTC()
	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(conversationKey(id)); err == nil {
			return fmt.Errorf("conversation %s already exists", id)
		}
		if err := writeJSON(txn, conversationKey(id), diskConversation{ID: string(id), CreatedAt: now}); err != nil {
			return err
		}
		for _, userID := range lo.Uniq(participants) {
			if !validID(string(userID)) {
				return fmt.Errorf("%w: user id %q", apperrors.ErrInvalidPayload, userID)
			}
			p := diskParticipant{ConversationID: string(id), UserID: string(userID), JoinedAt: now}
			if err := writeJSON(txn, participantKey(id, userID), p); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddParticipant adds a user to a conversation. A participant who left joins again with a fresh join time.
func (s *ConversationStore) AddParticipant(ctx context.Context, id domain.ConversationID, userID domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(string(userID)) {
		return fmt.Errorf("%w: user id %q", apperrors.ErrInvalidPayload, userID)
	}
	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(conversationKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}
		var p diskParticipant
		err := readJSON(txn, participantKey(id, userID), &p)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			p = diskParticipant{ConversationID: string(id), UserID: string(userID)}
		case err != nil:
			return err
		case p.LeftAt == nil:
			return nil
		}
		p.JoinedAt = s.now().UTC()
		p.LeftAt = nil
		return writeJSON(txn, participantKey(id, userID), p)
	})
}

// RemoveParticipant marks the participant as left. The record is kept.
func (s *ConversationStore) RemoveParticipant(ctx context.Context, id domain.ConversationID, userID domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		var p diskParticipant
		if err := readJSON(txn, participantKey(id, userID), &p); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}
		if p.LeftAt != nil {
			return nil
		}
		p.LeftAt = lo.ToPtr(s.now().UTC())
		return writeJSON(txn, participantKey(id, userID), p)
	})
}

func (s *ConversationStore) FindActiveParticipant(ctx context.Context, id domain.ConversationID, userID domain.UserID) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	var p diskParticipant
	err := s.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, participantKey(id, userID), &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Participant{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Participant{}, persistenceError(err)
	}
	if p.LeftAt != nil {
		return domain.Participant{}, apperrors.ErrNotFound
	}
	return toParticipant(p), nil
}

// ListParticipants returns the active participants of a conversation.
func (s *ConversationStore) ListParticipants(ctx context.Context, id domain.ConversationID) ([]domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var participants []domain.Participant
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := participantPrefix(id)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p diskParticipant
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			if p.LeftAt == nil {
				participants = append(participants, toParticipant(p))
			}
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err)
	}
	return participants, nil
}

// InsertMessage stores a message with a server-assigned id and send time.
// Send times are strictly increasing within a conversation, even when the
// wall clock stalls or goes backwards.
func (s *ConversationStore) InsertMessage(ctx context.Context, m domain.NewMessage) (domain.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, false, err
	}
	var (
		stored    diskMessage
		duplicate bool
	)
	err := s.update(func(txn *badger.Txn) error {
		duplicate = false
		if m.IdempotencyKey != "" {
			item, err := txn.Get(idempotencyKey(m.ConversationID, m.SenderID, m.IdempotencyKey))
			switch {
			case err == nil:
				msgKey, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if err = readJSON(txn, msgKey, &stored); err != nil {
					return err
				}
				// A retry after a failed aggregate update resumes the delivery
				_, err = txn.Get(aggregatedKey(m.ConversationID, stored.ID))
				switch {
				case err == nil:
					duplicate = true
				case errors.Is(err, badger.ErrKeyNotFound):
					s.log.Debug("Resuming undelivered message",
						"conversation_id", m.ConversationID,
						"message_id", stored.ID)
				default:
					return err
				}
				return nil
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
		}

		if _, err := txn.Get(conversationKey(m.ConversationID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		last, err := readUint64(txn, clockKey(m.ConversationID))
		if err != nil {
			return err
		}
		at := s.now().UTC()
		if uint64(at.UnixNano()) <= last {
			at = time.Unix(0, int64(last)+1).UTC()
		}
		if err = writeUint64(txn, clockKey(m.ConversationID), uint64(at.UnixNano())); err != nil {
			return err
		}

		stored = diskMessage{
			ID:             uuid.New(),
			ConversationID: string(m.ConversationID),
			SenderID:       string(m.SenderID),
			Content:        m.Content,
			Type:           string(m.Type),
			ReplyToID:      m.ReplyToID,
			Attachments:    m.Attachments,
			At:             at.UnixNano(),
		}
		key := messageKey(m.ConversationID, at, stored.ID)
		if err = writeJSON(txn, key, stored); err != nil {
			return err
		}
		if m.IdempotencyKey != "" && s.idempotencyWindow > 0 {
			entry := badger.NewEntry(idempotencyKey(m.ConversationID, m.SenderID, m.IdempotencyKey), key).
				WithTTL(s.idempotencyWindow)
			return txn.SetEntry(entry)
		}
		return nil
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.Message{}, false, err
	}
	if err != nil {
		return domain.Message{}, false, persistenceError(err)
	}
	return toMessage(stored), duplicate, nil
}

// UpdateConversationAggregate applies the counter operations of one send.
// Every counter is its own key: concurrent sends only conflict on the keys
// they both touch and the conflicting transaction is replayed.
// With a message id and a dedup window, a marker written in the same
// transaction makes a second application for that message a no-op.
func (s *ConversationStore) UpdateConversationAggregate(ctx context.Context, id domain.ConversationID, u domain.AggregateUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	once := u.MessageID != uuid.Nil && s.idempotencyWindow > 0
	err := s.update(func(txn *badger.Txn) error {
		if once {
			_, err := txn.Get(aggregatedKey(id, u.MessageID))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		last, err := readUint64(txn, lastMessageKey(id))
		if err != nil {
			return err
		}
		if at := uint64(u.LastMessageAt.UnixNano()); at > last {
			if err = writeUint64(txn, lastMessageKey(id), at); err != nil {
				return err
			}
		}
		if u.IncrementMessageCount {
			if err = increment(txn, messageCountKey(id)); err != nil {
				return err
			}
		}
		for _, userID := range lo.Uniq(u.IncrementUnreadFor) {
			if err = increment(txn, unreadKey(id, userID)); err != nil {
				return err
			}
		}
		if once {
			return txn.SetEntry(badger.NewEntry(aggregatedKey(id, u.MessageID), nil).WithTTL(s.idempotencyWindow))
		}
		return nil
	})
	if err != nil {
		return persistenceError(err)
	}
	return nil
}

func increment(txn *badger.Txn, key []byte) error {
	v, err := readUint64(txn, key)
	if err != nil {
		return err
	}
	return writeUint64(txn, key, v+1)
}

func (s *ConversationStore) UpdateParticipantLastRead(ctx context.Context, id domain.ConversationID, userID domain.UserID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.update(func(txn *badger.Txn) error {
		var p diskParticipant
		if err := readJSON(txn, participantKey(id, userID), &p); err != nil {
			return err
		}
		p.LastReadAt = lo.ToPtr(at.UTC())
		return writeJSON(txn, participantKey(id, userID), p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return persistenceError(err)
	}
	return nil
}

func (s *ConversationStore) ResetUnreadFor(ctx context.Context, id domain.ConversationID, userID domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.update(func(txn *badger.Txn) error {
		return writeUint64(txn, unreadKey(id, userID), 0)
	})
	if err != nil {
		return persistenceError(err)
	}
	return nil
}

// GetConversation assembles the aggregate read model of a conversation.
func (s *ConversationStore) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	conversation := domain.Conversation{ID: id, Unread: make(map[domain.UserID]int64)}
	err := s.db.View(func(txn *badger.Txn) error {
		var c diskConversation
		if err := readJSON(txn, conversationKey(id), &c); err != nil {
			return err
		}
		conversation.CreatedAt = c.CreatedAt

		last, err := readUint64(txn, lastMessageKey(id))
		if err != nil {
			return err
		}
		if last > 0 {
			conversation.LastMessageAt = lo.ToPtr(time.Unix(0, int64(last)).UTC())
		}
		count, err := readUint64(txn, messageCountKey(id))
		if err != nil {
			return err
		}
		conversation.MessageCount = int64(count)

		prefix := unreadPrefix(id)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			userID := domain.UserID(item.Key()[len(prefix):])
			if err := item.Value(func(val []byte) error {
				conversation.Unread[userID] = int64(binary.BigEndian.Uint64(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, persistenceError(err)
	}
	return conversation, nil
}

// ListConversationIDs returns every conversation id in key order.
func (s *ConversationStore) ListConversationIDs(ctx context.Context) ([]domain.ConversationID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []domain.ConversationID
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := conversationKey("")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, domain.ConversationID(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err)
	}
	return ids, nil
}

// ListMessages retrieves messages of a conversation, newest first, using a prefix scan.
// Thanks to the padded timestamp in the key, messages are naturally sorted by time.
// The returned cursor is passed back to fetch the next older page.
func (s *ConversationStore) ListMessages(ctx context.Context, id domain.ConversationID, cursor *string) ([]domain.Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	var (
		messages []domain.Message
		lastKey  string
	)
	err := s.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(id)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start after the newest possible key, then walk back in time
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if s.limitMessages > 0 && len(messages) == s.limitMessages {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			var m diskMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			messages = append(messages, toMessage(m))
		}
		return nil
	})
	if err != nil {
		return nil, nil, persistenceError(err)
	}
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

func toParticipant(p diskParticipant) domain.Participant {
	return domain.Participant{
		ConversationID: domain.ConversationID(p.ConversationID),
		UserID:         domain.UserID(p.UserID),
		JoinedAt:       p.JoinedAt,
		LeftAt:         p.LeftAt,
		LastReadAt:     p.LastReadAt,
	}
}

func toMessage(m diskMessage) domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: domain.ConversationID(m.ConversationID),
		SenderID:       domain.UserID(m.SenderID),
		Content:        m.Content,
		Type:           domain.MessageType(m.Type),
		ReplyToID:      m.ReplyToID,
		Attachments:    m.Attachments,
		CreatedAt:      time.Unix(0, m.At).UTC(),
	}
}
