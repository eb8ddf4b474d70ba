package realtime

import "sync"

// Conn is the write side of one client connection. *websocket.Conn is wrapped
// behind this so the hub can be exercised in tests without a network.
type Conn interface {
	WriteJSON(v any) error
}

// Envelope is the wire frame for every event in either direction.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub is the presence directory and broadcast-group router. It tracks which
// users have live connections (multi-device: one user, many connections) and
// which connections joined which named group (match:<id>). All state is
// internal; callers only get register/route/query operations.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]Conn
	connUser   map[string]string
	userConns  map[string]map[string]struct{}
	groups     map[string]map[string]struct{}
	connGroups map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]Conn),
		connUser:   make(map[string]string),
		userConns:  make(map[string]map[string]struct{}),
		groups:     make(map[string]map[string]struct{}),
		connGroups: make(map[string]map[string]struct{}),
	}
}

// MatchGroup names the broadcast group of one match.
func MatchGroup(matchID string) string { return "match:" + matchID }

// Add registers a raw connection before it has identified a user.
func (h *Hub) Add(connID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connID] = conn
}

// Identify binds a connection to a user. Returns true when this is the
// user's first live connection (the online transition).
func (h *Hub) Identify(connID, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.connUser[connID]; ok {
		if prev == userID {
			return false
		}
		h.detachUserLocked(connID, prev)
	}

	first := len(h.userConns[userID]) == 0
	h.connUser[connID] = userID
	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[string]struct{})
	}
	h.userConns[userID][connID] = struct{}{}
	return first
}

// Remove drops a connection entirely. Returns the bound user (if any) and
// whether that user now has zero connections left (the offline transition).
func (h *Hub) Remove(connID string) (userID string, last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, connID)
	for group := range h.connGroups[connID] {
		h.leaveLocked(group, connID)
	}
	delete(h.connGroups, connID)

	userID, ok := h.connUser[connID]
	if !ok {
		return "", false
	}
	delete(h.connUser, connID)
	h.detachUserLocked(connID, userID)
	return userID, len(h.userConns[userID]) == 0
}

func (h *Hub) detachUserLocked(connID, userID string) {
	if set := h.userConns[userID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.userConns, userID)
		}
	}
}

// Join adds a connection to a named broadcast group.
func (h *Hub) Join(group, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]struct{})
	}
	h.groups[group][connID] = struct{}{}
	if h.connGroups[connID] == nil {
		h.connGroups[connID] = make(map[string]struct{})
	}
	h.connGroups[connID][group] = struct{}{}
}

// Leave removes a connection from a group.
func (h *Hub) Leave(group, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(group, connID)
	if set := h.connGroups[connID]; set != nil {
		delete(set, group)
	}
}

func (h *Hub) leaveLocked(group, connID string) {
	if set := h.groups[group]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.groups, group)
		}
	}
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID]) > 0
}

// OnlineUserIDs snapshots the ids of every user with a live connection.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.userConns))
	for id := range h.userConns {
		out = append(out, id)
	}
	return out
}

func (h *Hub) snapshot(connIDs map[string]struct{}) []Conn {
	out := make([]Conn, 0, len(connIDs))
	for id := range connIDs {
		if c, ok := h.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// EmitToUser delivers an event to every live connection of one user.
func (h *Hub) EmitToUser(userID, event string, payload any) {
	h.mu.RLock()
	conns := h.snapshot(h.userConns[userID])
	h.mu.RUnlock()
	send(conns, event, payload)
}

// EmitToMatch delivers an event to the match broadcast group.
func (h *Hub) EmitToMatch(matchID, event string, payload any) {
	h.EmitToGroup(MatchGroup(matchID), event, payload)
}

// EmitToGroup delivers an event to every connection in a group.
func (h *Hub) EmitToGroup(group, event string, payload any) {
	h.mu.RLock()
	conns := h.snapshot(h.groups[group])
	h.mu.RUnlock()
	send(conns, event, payload)
}

// EmitToConn delivers an event to one connection.
func (h *Hub) EmitToConn(connID, event string, payload any) {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		send([]Conn{conn}, event, payload)
	}
}

// EmitToAll delivers an event to every live connection.
func (h *Hub) EmitToAll(event string, payload any) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	send(conns, event, payload)
}

func send(conns []Conn, event string, payload any) {
	env := Envelope{Event: event, Data: payload}
	for _, c := range conns {
		// Write failures mean the peer is going away; the read loop will
		// reap the connection, so drops are fine here.
		_ = c.WriteJSON(env)
	}
}
