// Package realtime distributes presence, typing and change events to
// connected WebSocket clients. All hub state is process-local; a
// multi-process deployment needs an external broker instead.
package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"taskboard/api/internal/logging"
	"taskboard/api/internal/store"
)

// Typing entries not refreshed within this window are evicted by the
// janitor, so a dropped typing_stop cannot leave a stale indicator.
const typingTTL = 10 * time.Second

const janitorInterval = 2 * time.Second

// TaskStatusUpdater persists a status change requested over the socket.
// The app service implements it so socket updates run through the same
// validation as HTTP ones.
type TaskStatusUpdater interface {
	UpdateTaskStatusForUser(ctx context.Context, userID, role, taskID, status string) (store.Task, error)
}

type typingEntry struct {
	user      PresenceData
	projectID string
	context   string
	contextID string
	deadline  time.Time
}

// Hub is the single owner of room membership, the presence roster and
// typing state. One mutex guards it all; every update is an atomic set
// operation, never a blocking send.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	byUser  map[string]map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	typing  map[string]typingEntry // key: projectID + "|" + userID

	updater TaskStatusUpdater
	done    chan struct{}
	now     func() time.Time
}

func NewHub() *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		byUser:  make(map[string]map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		typing:  make(map[string]typingEntry),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go h.janitor()
	return h
}

// SetTaskUpdater wires the app service in after construction; the hub is
// created first because the service needs it for fan-out.
func (h *Hub) SetTaskUpdater(updater TaskStatusUpdater) {
	h.updater = updater
}

// Close disconnects every client and stops the janitor.
func (h *Hub) Close() {
	close(h.done)

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeConn()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	conns := h.byUser[c.UserID]
	first := len(conns) == 0
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.byUser[c.UserID] = conns
	}
	conns[c] = struct{}{}

	roster := h.rosterLocked()
	h.mu.Unlock()

	c.enqueue(Event{Event: EventOnlineUsers, Data: RosterData{Users: roster}})
	if first {
		h.broadcast(Event{Event: EventUserOnline, Data: PresenceData{UserID: c.UserID, UserName: c.Name}}, c)
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	var stopped []typingEntry
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
		key := typingKey(room, c.UserID)
		if entry, ok := h.typing[key]; ok {
			delete(h.typing, key)
			stopped = append(stopped, entry)
		}
	}

	conns := h.byUser[c.UserID]
	delete(conns, c)
	last := len(conns) == 0
	if last {
		delete(h.byUser, c.UserID)
	}
	h.mu.Unlock()

	for _, entry := range stopped {
		h.emitToRoomExcept(entry.projectID, c, Event{Event: EventTypingStop, Data: typingData(entry)})
	}
	if last {
		h.broadcast(Event{Event: EventUserOffline, Data: PresenceData{UserID: c.UserID, UserName: c.Name}}, nil)
	}
}

func (h *Hub) rosterLocked() []PresenceData {
	roster := make([]PresenceData, 0, len(h.byUser))
	for _, conns := range h.byUser {
		for c := range conns {
			roster = append(roster, PresenceData{UserID: c.UserID, UserName: c.Name})
			break
		}
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].UserID < roster[j].UserID })
	return roster
}

// OnlineUserIDs lists users with at least one open connection.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.byUser))
	for id := range h.byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func typingKey(projectID, userID string) string {
	return projectID + "|" + userID
}

func typingData(entry typingEntry) TypingData {
	return TypingData{
		UserID:    entry.user.UserID,
		UserName:  entry.user.UserName,
		ProjectID: entry.projectID,
		Context:   entry.context,
		ContextID: entry.contextID,
	}
}

// handleAction dispatches one decoded client message.
func (h *Hub) handleAction(c *Client, raw []byte) {
	var action Action
	if err := json.Unmarshal(raw, &action); err != nil {
		c.enqueue(Event{Event: EventError, Data: map[string]string{"message": "malformed action"}})
		return
	}

	switch action.Action {
	case ActionJoinRoom:
		var data roomAction
		if err := json.Unmarshal(action.Data, &data); err != nil || data.ProjectID == "" {
			c.enqueue(Event{Event: EventError, Data: map[string]string{"message": "projectId is required"}})
			return
		}
		h.joinRoom(c, data.ProjectID)
	case ActionLeaveRoom:
		var data roomAction
		if err := json.Unmarshal(action.Data, &data); err != nil || data.ProjectID == "" {
			c.enqueue(Event{Event: EventError, Data: map[string]string{"message": "projectId is required"}})
			return
		}
		h.leaveRoom(c, data.ProjectID)
	case ActionTypingStart:
		var data typingAction
		if err := json.Unmarshal(action.Data, &data); err != nil || data.ProjectID == "" {
			return
		}
		h.typingStart(c, data)
	case ActionTypingStop:
		var data typingAction
		if err := json.Unmarshal(action.Data, &data); err != nil || data.ProjectID == "" {
			return
		}
		h.typingStop(c, data.ProjectID)
	case ActionUpdateTaskStatus:
		var data updateTaskStatusAction
		if err := json.Unmarshal(action.Data, &data); err != nil || data.TaskID == "" {
			c.enqueue(Event{Event: EventError, Data: map[string]string{"message": "taskId is required"}})
			return
		}
		h.updateTaskStatus(c, data)
	default:
		c.enqueue(Event{Event: EventError, Data: map[string]string{"message": "unknown action"}})
	}
}

func (h *Hub) joinRoom(c *Client, projectID string) {
	h.mu.Lock()
	members := h.rooms[projectID]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[projectID] = members
	}
	members[c] = struct{}{}
	c.rooms[projectID] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) leaveRoom(c *Client, projectID string) {
	h.mu.Lock()
	delete(c.rooms, projectID)
	if members, ok := h.rooms[projectID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, projectID)
		}
	}
	key := typingKey(projectID, c.UserID)
	entry, wasTyping := h.typing[key]
	if wasTyping {
		delete(h.typing, key)
	}
	h.mu.Unlock()

	if wasTyping {
		h.emitToRoomExcept(projectID, c, Event{Event: EventTypingStop, Data: typingData(entry)})
	}
}

// typingStart records the typer and fans the event out once. Repeated
// starts from the same user in the same room only refresh the deadline;
// other members never see a duplicate.
func (h *Hub) typingStart(c *Client, data typingAction) {
	key := typingKey(data.ProjectID, c.UserID)
	entry := typingEntry{
		user:      PresenceData{UserID: c.UserID, UserName: c.Name},
		projectID: data.ProjectID,
		context:   data.Context,
		contextID: data.ContextID,
		deadline:  h.now().Add(typingTTL),
	}

	h.mu.Lock()
	_, already := h.typing[key]
	h.typing[key] = entry
	h.mu.Unlock()

	if already {
		return
	}
	h.emitToRoomExcept(data.ProjectID, c, Event{Event: EventTypingStart, Data: typingData(entry)})
}

func (h *Hub) typingStop(c *Client, projectID string) {
	key := typingKey(projectID, c.UserID)

	h.mu.Lock()
	entry, ok := h.typing[key]
	if ok {
		delete(h.typing, key)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.emitToRoomExcept(projectID, c, Event{Event: EventTypingStop, Data: typingData(entry)})
}

func (h *Hub) updateTaskStatus(c *Client, data updateTaskStatusAction) {
	if h.updater == nil {
		c.enqueue(Event{Event: EventError, Data: map[string]string{"message": "task updates unavailable"}})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task, err := h.updater.UpdateTaskStatusForUser(ctx, c.UserID, c.Role, data.TaskID, data.Status)
	if err != nil {
		c.enqueue(Event{Event: EventError, Data: map[string]string{"message": err.Error()}})
		return
	}
	h.EmitToRoom(task.ProjectID, EventTaskStatusUpdated, task)
}

// EmitToUser delivers an event to every connection of one user.
func (h *Hub) EmitToUser(userID, event string, data any) {
	h.mu.Lock()
	targets := make([]*Client, 0, 2)
	for c := range h.byUser[userID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	evt := Event{Event: event, Data: data}
	for _, c := range targets {
		c.enqueue(evt)
	}
}

// EmitToRoom fans an event out to every member of a project room.
func (h *Hub) EmitToRoom(projectID, event string, data any) {
	h.emitToRoomExcept(projectID, nil, Event{Event: event, Data: data})
}

func (h *Hub) emitToRoomExcept(projectID string, skip *Client, evt Event) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.rooms[projectID]))
	for c := range h.rooms[projectID] {
		if c == skip {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(evt)
	}
}

func (h *Hub) broadcast(evt Event, skip *Client) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c == skip {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(evt)
	}
}

func (h *Hub) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.evictStaleTyping()
		}
	}
}

func (h *Hub) evictStaleTyping() {
	now := h.now()

	h.mu.Lock()
	var stale []typingEntry
	for key, entry := range h.typing {
		if now.After(entry.deadline) {
			delete(h.typing, key)
			stale = append(stale, entry)
		}
	}
	h.mu.Unlock()

	for _, entry := range stale {
		logging.Component("realtime").WithField("user", entry.user.UserID).
			Debug("evicted stale typing entry")
		h.EmitToRoom(entry.projectID, EventTypingStop, typingData(entry))
	}
}
