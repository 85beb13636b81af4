package redis

import (
	"chat-core/domain"
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceMirror writes one key per online user, valued with the instance id.
// Keys expire after ttl unless refreshed, so a crashed instance does not leave
// its users online forever.
type PresenceMirror struct {
	client     *redis.Client
	log        *slog.Logger
	instanceID string
	ttl        time.Duration
}

func NewPresenceMirror(client *redis.Client, log *slog.Logger, instanceID string, ttl time.Duration) *PresenceMirror {
	return &PresenceMirror{client: client, log: log, instanceID: instanceID, ttl: ttl}
}

func (m *PresenceMirror) SetOnline(ctx context.Context, userID domain.UserID) error {
	err := m.client.Set(ctx, presenceKey(string(userID)), m.instanceID, m.ttl).Err()
	if err == nil {
		m.log.Debug("Mirrored presence", "user_id", userID, "instance_id", m.instanceID)
	}
	return err
}

func (m *PresenceMirror) SetOffline(ctx context.Context, userID domain.UserID) error {
	return m.client.Del(ctx, presenceKey(string(userID))).Err()
}

// Refresh re-asserts every given user in a single round trip.
// Keys lost in between, after a Redis restart for instance, are written back.
func (m *PresenceMirror) Refresh(ctx context.Context, userIDs []domain.UserID) error {
	pipe := m.client.Pipeline()
	for _, userID := range userIDs {
		pipe.Set(ctx, presenceKey(string(userID)), m.instanceID, m.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
