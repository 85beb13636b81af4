package runtime

import (
	"chat-core/contract"
	"chat-core/domain"
	"sync"
)

type roomSet map[domain.ConversationID]struct{}

// Rooms tracks which live connections are subscribed to which conversation.
// It holds no authorization logic: callers check participation before Subscribe.
type Rooms struct {
	mu      sync.RWMutex
	members map[domain.ConversationID]map[domain.ConnectionID]contract.Connection
	byConn  map[domain.ConnectionID]roomSet
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[domain.ConversationID]map[domain.ConnectionID]contract.Connection),
		byConn:  make(map[domain.ConnectionID]roomSet),
	}
}

func (r *Rooms) Subscribe(conversationID domain.ConversationID, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[conversationID]; !ok {
		r.members[conversationID] = make(map[domain.ConnectionID]contract.Connection)
	}
	r.members[conversationID][conn.ID] = conn

	if _, ok := r.byConn[conn.ID]; !ok {
		r.byConn[conn.ID] = make(roomSet)
	}
	r.byConn[conn.ID][conversationID] = struct{}{}
}

// Unsubscribe is a no-op when the connection is not subscribed.
func (r *Rooms) Unsubscribe(conversationID domain.ConversationID, connID domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribe(conversationID, connID)
}

// UnsubscribeAll drops every subscription of a connection and returns the rooms it left.
func (r *Rooms) UnsubscribeAll(connID domain.ConnectionID) []domain.ConversationID {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.byConn[connID]
	res := make([]domain.ConversationID, 0, len(rooms))
	for conversationID := range rooms {
		res = append(res, conversationID)
		r.unsubscribe(conversationID, connID)
	}
	return res
}

func (r *Rooms) unsubscribe(conversationID domain.ConversationID, connID domain.ConnectionID) {
	if members, ok := r.members[conversationID]; ok {
		delete(members, connID)
		// If no one is left in the room, remove the room entry entirely
		if len(members) == 0 {
			delete(r.members, conversationID)
		}
	}
	if rooms, ok := r.byConn[connID]; ok {
		delete(rooms, conversationID)
		if len(rooms) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// Subscribers returns a snapshot of the room. Returns nil if nobody is subscribed.
func (r *Rooms) Subscribers(conversationID domain.ConversationID) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.members[conversationID]
	if !ok {
		return nil
	}
	res := make([]contract.Connection, 0, len(members))
	for _, c := range members {
		res = append(res, c)
	}
	return res
}

func (r *Rooms) IsSubscribed(conversationID domain.ConversationID, connID domain.ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[conversationID][connID]
	return ok
}
