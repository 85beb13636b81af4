package runtime

import (
	"chat-core/contract"
	"chat-core/domain"
	"hash/fnv"
	"sync"
)

const shardCount = 32

// PresenceHook receives online/offline transitions.
// It is invoked while the identity's shard is locked and must not call back
// into Register or Unregister.
type PresenceHook func(change domain.PresenceChange)

type shard struct {
	mu    sync.Mutex
	users map[domain.UserID]map[domain.ConnectionID]contract.Connection
}

// Registry tracks the live connections of every identity.
// Identities are spread over shards so that mutations for different users
// do not contend on a single lock. The flat connection index is always
// locked after a shard, never before.
type Registry struct {
	shards [shardCount]*shard
	allMu  sync.RWMutex
	all    map[domain.ConnectionID]contract.Connection
	hook   PresenceHook
}

func NewRegistry() *Registry {
	r := &Registry{all: make(map[domain.ConnectionID]contract.Connection)}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[domain.UserID]map[domain.ConnectionID]contract.Connection)}
	}
	return r
}

// OnTransition installs the presence hook. It must be called before the first Register.
func (r *Registry) OnTransition(hook PresenceHook) {
	r.hook = hook
}

func (r *Registry) shardFor(userID domain.UserID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds the connection to its identity's live set.
// It returns true when this is the identity's first connection.
func (r *Registry) Register(conn contract.Connection) bool {
	userID := conn.Identity.UserID
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		conns = make(map[domain.ConnectionID]contract.Connection)
		s.users[userID] = conns
	}
	conns[conn.ID] = conn

	r.allMu.Lock()
	r.all[conn.ID] = conn
	r.allMu.Unlock()

	first := len(conns) == 1
	if first && r.hook != nil {
		r.hook(domain.PresenceChange{UserID: userID, Online: true})
	}
	return first
}

// Unregister removes a connection. Unknown or already removed connections are ignored.
// It returns true when the identity has no live connection left.
func (r *Registry) Unregister(connID domain.ConnectionID) bool {
	r.allMu.RLock()
	conn, ok := r.all[connID]
	r.allMu.RUnlock()
	if !ok {
		return false
	}

	userID := conn.Identity.UserID
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		return false
	}
	if _, live := conns[connID]; !live {
		return false
	}
	delete(conns, connID)

	r.allMu.Lock()
	delete(r.all, connID)
	r.allMu.Unlock()

	if len(conns) > 0 {
		return false
	}
	delete(s.users, userID)
	if r.hook != nil {
		r.hook(domain.PresenceChange{UserID: userID, Online: false})
	}
	return true
}

func (r *Registry) IsOnline(userID domain.UserID) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users[userID]) > 0
}

func (r *Registry) LiveConnectionsFor(userID domain.UserID) []contract.Connection {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := s.users[userID]
	if len(conns) == 0 {
		return nil
	}
	res := make([]contract.Connection, 0, len(conns))
	for _, c := range conns {
		res = append(res, c)
	}
	return res
}

// Lookup returns the live connection with the given id.
func (r *Registry) Lookup(connID domain.ConnectionID) (contract.Connection, bool) {
	r.allMu.RLock()
	defer r.allMu.RUnlock()
	conn, ok := r.all[connID]
	return conn, ok
}

// Connections returns a snapshot of every live connection.
func (r *Registry) Connections() []contract.Connection {
	r.allMu.RLock()
	defer r.allMu.RUnlock()
	res := make([]contract.Connection, 0, len(r.all))
	for _, c := range r.all {
		res = append(res, c)
	}
	return res
}

// OnlineUsers returns every identity with at least one live connection.
func (r *Registry) OnlineUsers() []domain.UserID {
	var res []domain.UserID
	for _, s := range r.shards {
		s.mu.Lock()
		for userID := range s.users {
			res = append(res, userID)
		}
		s.mu.Unlock()
	}
	return res
}
