package workers

import (
	"chat-core/contract"
	"chat-core/domain"
	"context"
	"log/slog"
	"time"
)

// PresenceMirrorWorker copies local presence transitions into a shared store.
// Online keys expire on their own, so the worker refreshes them for every
// user still connected to this instance.
type PresenceMirrorWorker struct {
	log             *slog.Logger
	mirror          contract.IPresenceMirror
	changes         <-chan domain.PresenceChange
	onlineUsers     func() []domain.UserID
	refreshInterval time.Duration
}

func NewPresenceMirrorWorker(log *slog.Logger, mirror contract.IPresenceMirror,
	changes <-chan domain.PresenceChange, onlineUsers func() []domain.UserID,
	refreshInterval time.Duration) *PresenceMirrorWorker {
	return &PresenceMirrorWorker{
		log:             log,
		mirror:          mirror,
		changes:         changes,
		onlineUsers:     onlineUsers,
		refreshInterval: refreshInterval,
	}
}

func (w *PresenceMirrorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence mirror")
			return nil
		case change, ok := <-w.changes:
			if !ok {
				w.log.Debug("Presence channel is closed")
				return nil
			}
			w.apply(ctx, change)
		case <-ticker.C:
			users := w.onlineUsers()
			if len(users) == 0 {
				continue
			}
			if err := w.mirror.Refresh(ctx, users); err != nil {
				w.log.Warn("Presence refresh failed", "users", len(users), "error", err)
			}
		}
	}
}

// apply never fails the worker: the mirror is best effort and the local
// registry stays authoritative.
func (w *PresenceMirrorWorker) apply(ctx context.Context, change domain.PresenceChange) {
	var err error
	if change.Online {
		err = w.mirror.SetOnline(ctx, change.UserID)
	} else {
		err = w.mirror.SetOffline(ctx, change.UserID)
	}
	if err != nil {
		w.log.Warn("Presence mirror update failed",
			"user_id", change.UserID,
			"online", change.Online,
			"error", err)
	}
}
