// Package redis holds the optional shared-state adapters: unread counters and
// the presence mirror. Both are meant for deployments running more than one instance.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat:"

func unreadKey(conversationID string) string {
	return keyPrefix + "unread:" + conversationID
}

func aggregatedKey(messageID string) string {
	return keyPrefix + "aggregated:" + messageID
}

func presenceKey(userID string) string {
	return keyPrefix + "presence:" + userID
}

// NewClient opens a client and fails fast when the server cannot be reached.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
