package gateway

import "sync"

// rooms tracks which connections currently belong to which project and
// chat-session scope, per §4.6 "Rooms and scoping". A connection's project
// is set at connect or on its first project-scoped call; its chat session
// is set on first chat-scoped call.
type rooms struct {
	mu         sync.RWMutex
	byProject  map[string]map[*Client]struct{}
	bySession  map[string]map[*Client]struct{}
}

func newRooms() *rooms {
	return &rooms{
		byProject: make(map[string]map[*Client]struct{}),
		bySession: make(map[string]map[*Client]struct{}),
	}
}

func (r *rooms) joinProject(c *Client, projectID string) {
	if projectID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveProjectLocked(c)
	set, ok := r.byProject[projectID]
	if !ok {
		set = make(map[*Client]struct{})
		r.byProject[projectID] = set
	}
	set[c] = struct{}{}
	c.projectID = projectID
}

func (r *rooms) joinSession(c *Client, sessionID string) {
	if sessionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveSessionLocked(c)
	set, ok := r.bySession[sessionID]
	if !ok {
		set = make(map[*Client]struct{})
		r.bySession[sessionID] = set
	}
	set[c] = struct{}{}
	c.chatSessionID = sessionID
}

func (r *rooms) leave(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveProjectLocked(c)
	r.leaveSessionLocked(c)
}

func (r *rooms) leaveProjectLocked(c *Client) {
	if c.projectID == "" {
		return
	}
	if set, ok := r.byProject[c.projectID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.byProject, c.projectID)
		}
	}
	c.projectID = ""
}

func (r *rooms) leaveSessionLocked(c *Client) {
	if c.chatSessionID == "" {
		return
	}
	if set, ok := r.bySession[c.chatSessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.bySession, c.chatSessionID)
		}
	}
	c.chatSessionID = ""
}

// emitProject delivers channel/payload to every connection in projectID's
// room. Best-effort: a slow/dead client is dropped, never blocked on.
func (r *rooms) emitProject(projectID, channel string, payload interface{}) {
	r.mu.RLock()
	set := r.byProject[projectID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		c.sendEvent(channel, payload)
	}
}

// emitChatSession delivers channel/payload to every connection whose active
// chat session is sessionID.
func (r *rooms) emitChatSession(sessionID, channel string, payload interface{}) {
	r.mu.RLock()
	set := r.bySession[sessionID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		c.sendEvent(channel, payload)
	}
}
