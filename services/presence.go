package services

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/runtime"
	"context"
	"log/slog"
)

// PresenceService announces online/offline transitions and answers status queries
// from the in-memory registry.
type PresenceService struct {
	log      *slog.Logger
	registry *runtime.Registry
	mirror   chan<- domain.PresenceChange
}

// NewPresenceService installs itself as the registry transition hook.
// mirror may be nil when presence is not copied to a shared store.
func NewPresenceService(log *slog.Logger, registry *runtime.Registry, mirror chan<- domain.PresenceChange) *PresenceService {
	p := &PresenceService{log: log, registry: registry, mirror: mirror}
	registry.OnTransition(p.onTransition)
	return p
}

// onTransition runs under the registry shard lock: it only enqueues.
func (p *PresenceService) onTransition(change domain.PresenceChange) {
	var e event.Event = event.UserOffline{UserID: change.UserID}
	if change.Online {
		e = event.UserOnline{UserID: change.UserID}
	}

	// TODO: scope presence to users sharing a conversation instead of every connected peer.
	ctx := context.Background()
	for _, conn := range p.registry.Connections() {
		if conn.Identity.UserID == change.UserID {
			continue
		}
		_ = conn.Sink.Consume(ctx, e)
	}

	if p.mirror == nil {
		return
	}
	select {
	case p.mirror <- change:
	default:
		p.log.Warn("Presence mirror queue full, transition dropped", "user_id", change.UserID)
	}
}

// BulkStatus never performs I/O.
func (p *PresenceService) BulkStatus(userIDs []domain.UserID) map[domain.UserID]bool {
	res := make(map[domain.UserID]bool, len(userIDs))
	for _, userID := range userIDs {
		res[userID] = p.registry.IsOnline(userID)
	}
	return res
}
