package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"taskboard/api/internal/store"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	t.Cleanup(h.Close)
	return h
}

func connect(t *testing.T, h *Hub, id, name string) *Client {
	t.Helper()
	c := newClient(h, Identity{UserID: id, Name: name, Role: "developer"}, nil)
	h.register(c)
	return c
}

func action(t *testing.T, name string, data any) []byte {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal action data: %v", err)
	}
	raw, err := json.Marshal(Action{Action: name, Data: payload})
	if err != nil {
		t.Fatalf("marshal action: %v", err)
	}
	return raw
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case evt := <-c.send:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestTypingFanOut(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "user_a", "Alice")
	bob := connect(t, h, "user_b", "Bob")

	h.handleAction(alice, action(t, ActionJoinRoom, roomAction{ProjectID: "prj_1"}))
	h.handleAction(bob, action(t, ActionJoinRoom, roomAction{ProjectID: "prj_1"}))
	drain(alice)
	drain(bob)

	h.handleAction(alice, action(t, ActionTypingStart, typingAction{ProjectID: "prj_1", Context: "comment"}))
	evt := nextEvent(t, bob)
	if evt.Event != EventTypingStart {
		t.Fatalf("event = %q, want %q", evt.Event, EventTypingStart)
	}
	data, ok := evt.Data.(TypingData)
	if !ok {
		t.Fatalf("unexpected payload type %T", evt.Data)
	}
	if data.UserID != "user_a" || data.ProjectID != "prj_1" || data.Context != "comment" {
		t.Fatalf("unexpected payload %+v", data)
	}

	// Repeated starts refresh the deadline without a second broadcast.
	h.handleAction(alice, action(t, ActionTypingStart, typingAction{ProjectID: "prj_1", Context: "comment"}))
	select {
	case evt := <-bob.send:
		t.Fatalf("unexpected duplicate event %+v", evt)
	default:
	}

	// The originator never hears their own typing events.
	select {
	case evt := <-alice.send:
		t.Fatalf("originator received %+v", evt)
	default:
	}

	h.handleAction(alice, action(t, ActionTypingStop, typingAction{ProjectID: "prj_1"}))
	evt = nextEvent(t, bob)
	if evt.Event != EventTypingStop {
		t.Fatalf("event = %q, want %q", evt.Event, EventTypingStop)
	}
}

func TestTypingStopsOnLeave(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "user_a", "Alice")
	bob := connect(t, h, "user_b", "Bob")

	h.handleAction(alice, action(t, ActionJoinRoom, roomAction{ProjectID: "prj_1"}))
	h.handleAction(bob, action(t, ActionJoinRoom, roomAction{ProjectID: "prj_1"}))
	h.handleAction(alice, action(t, ActionTypingStart, typingAction{ProjectID: "prj_1"}))
	drain(bob)

	h.handleAction(alice, action(t, ActionLeaveRoom, roomAction{ProjectID: "prj_1"}))
	evt := nextEvent(t, bob)
	if evt.Event != EventTypingStop {
		t.Fatalf("event = %q, want %q", evt.Event, EventTypingStop)
	}
}

func TestJanitorEvictsStaleTyping(t *testing.T) {
	h := newTestHub(t)
	now := time.Now()
	h.now = func() time.Time { return now }

	alice := connect(t, h, "user_a", "Alice")
	bob := connect(t, h, "user_b", "Bob")
	h.handleAction(alice, action(t, ActionJoinRoom, roomAction{ProjectID: "prj_1"}))
	h.handleAction(bob, action(t, ActionJoinRoom, roomAction{ProjectID: "prj_1"}))
	h.handleAction(alice, action(t, ActionTypingStart, typingAction{ProjectID: "prj_1"}))
	drain(bob)

	// Still fresh, nothing evicted.
	h.evictStaleTyping()
	select {
	case evt := <-bob.send:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}

	now = now.Add(typingTTL + time.Second)
	h.evictStaleTyping()
	evt := nextEvent(t, bob)
	if evt.Event != EventTypingStop {
		t.Fatalf("event = %q, want %q", evt.Event, EventTypingStop)
	}
	if data := evt.Data.(TypingData); data.UserID != "user_a" {
		t.Fatalf("unexpected payload %+v", data)
	}
}

func TestPresence(t *testing.T) {
	h := newTestHub(t)

	alice := connect(t, h, "user_a", "Alice")
	evt := nextEvent(t, alice)
	if evt.Event != EventOnlineUsers {
		t.Fatalf("event = %q, want %q", evt.Event, EventOnlineUsers)
	}

	bob := connect(t, h, "user_b", "Bob")
	roster := nextEvent(t, bob)
	if roster.Event != EventOnlineUsers {
		t.Fatalf("event = %q, want %q", roster.Event, EventOnlineUsers)
	}
	users := roster.Data.(RosterData).Users
	if len(users) != 2 {
		t.Fatalf("roster has %d users, want 2", len(users))
	}

	online := nextEvent(t, alice)
	if online.Event != EventUserOnline || online.Data.(PresenceData).UserID != "user_b" {
		t.Fatalf("unexpected event %+v", online)
	}

	// A second connection for the same user is silent; only the last
	// disconnect announces offline.
	bob2 := connect(t, h, "user_b", "Bob")
	drain(bob2)
	select {
	case evt := <-alice.send:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}

	h.unregister(bob)
	select {
	case evt := <-alice.send:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}

	h.unregister(bob2)
	offline := nextEvent(t, alice)
	if offline.Event != EventUserOffline || offline.Data.(PresenceData).UserID != "user_b" {
		t.Fatalf("unexpected event %+v", offline)
	}

	got := h.OnlineUserIDs()
	if len(got) != 1 || got[0] != "user_a" {
		t.Fatalf("OnlineUserIDs() = %v", got)
	}
}

type fakeUpdater struct {
	task store.Task
	err  error

	gotUserID string
	gotTaskID string
	gotStatus string
}

func (f *fakeUpdater) UpdateTaskStatusForUser(ctx context.Context, userID, role, taskID, status string) (store.Task, error) {
	f.gotUserID = userID
	f.gotTaskID = taskID
	f.gotStatus = status
	return f.task, f.err
}

func TestUpdateTaskStatusAction(t *testing.T) {
	h := newTestHub(t)
	updater := &fakeUpdater{task: store.Task{ID: "tsk_1", ProjectID: "prj_1", Status: "done"}}
	h.SetTaskUpdater(updater)

	alice := connect(t, h, "user_a", "Alice")
	bob := connect(t, h, "user_b", "Bob")
	h.handleAction(alice, action(t, ActionJoinRoom, roomAction{ProjectID: "prj_1"}))
	h.handleAction(bob, action(t, ActionJoinRoom, roomAction{ProjectID: "prj_1"}))
	drain(alice)
	drain(bob)

	h.handleAction(alice, action(t, ActionUpdateTaskStatus, updateTaskStatusAction{TaskID: "tsk_1", Status: "done"}))

	if updater.gotUserID != "user_a" || updater.gotTaskID != "tsk_1" || updater.gotStatus != "done" {
		t.Fatalf("updater called with %q %q %q", updater.gotUserID, updater.gotTaskID, updater.gotStatus)
	}

	// Both room members see the change, including the originator.
	for _, c := range []*Client{alice, bob} {
		evt := nextEvent(t, c)
		if evt.Event != EventTaskStatusUpdated {
			t.Fatalf("event = %q, want %q", evt.Event, EventTaskStatusUpdated)
		}
		if task := evt.Data.(store.Task); task.ID != "tsk_1" {
			t.Fatalf("unexpected task %+v", task)
		}
	}
}

func TestMalformedAction(t *testing.T) {
	h := newTestHub(t)
	alice := connect(t, h, "user_a", "Alice")
	drain(alice)

	h.handleAction(alice, []byte("not json"))
	evt := nextEvent(t, alice)
	if evt.Event != EventError {
		t.Fatalf("event = %q, want %q", evt.Event, EventError)
	}

	h.handleAction(alice, action(t, "no_such_action", struct{}{}))
	evt = nextEvent(t, alice)
	if evt.Event != EventError {
		t.Fatalf("event = %q, want %q", evt.Event, EventError)
	}
}
