// Package nats exports personal notifications so that offline push workers
// can pick them up.
package nats

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const SubjectPrefix = "chat.notifications."

// Envelope is the payload published on SubjectPrefix + userID.
type Envelope struct {
	UserID       domain.UserID      `json:"userId"`
	Notification event.Notification `json:"notification"`
	PublishedAt  time.Time          `json:"publishedAt"`
}

type NotificationPublisher struct {
	conn *nats.Conn
	log  *slog.Logger
}

// Connect dials the server with reconnection enabled.
func Connect(url string, log *slog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("chat-core"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(10*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	)
}

func NewNotificationPublisher(conn *nats.Conn, log *slog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// Subject returns the personal subject of a user.
// Ids containing subject separators or wildcards are rejected.
func Subject(userID domain.UserID) (string, error) {
	id := string(userID)
	if id == "" || strings.ContainsAny(id, ".*> \t\r\n") {
		return "", fmt.Errorf("user id %q is not a valid subject token", id)
	}
	return SubjectPrefix + id, nil
}

func (p *NotificationPublisher) Publish(ctx context.Context, userID domain.UserID, notification event.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, err := Subject(userID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{
		UserID:       userID,
		Notification: notification,
		PublishedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return err
	}
	p.log.Debug("Notification published", "subject", subject, "message_id", notification.MessageID)
	return nil
}
