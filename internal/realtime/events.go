package realtime

import "encoding/json"

// Server-originated event names.
const (
	EventNotification      = "notification"
	EventTaskStatusUpdated = "task_status_updated"
	EventTaskAssigned      = "task_assigned"
	EventProjectUpdated    = "project_updated"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventOnlineUsers       = "online_users"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventError             = "error"
)

// Client-originated action names.
const (
	ActionJoinRoom         = "join_room"
	ActionLeaveRoom        = "leave_room"
	ActionTypingStart      = "typing_start"
	ActionTypingStop       = "typing_stop"
	ActionUpdateTaskStatus = "update_task_status"
)

// Event is the envelope for every server-to-client message.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Action is the envelope for every client-to-server message.
type Action struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type roomAction struct {
	ProjectID string `json:"projectId"`
}

type typingAction struct {
	ProjectID string `json:"projectId"`
	Context   string `json:"context"`
	ContextID string `json:"contextId"`
}

type updateTaskStatusAction struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// TypingData is the payload of typing_start/typing_stop events.
type TypingData struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	ProjectID string `json:"projectId"`
	Context   string `json:"context,omitempty"`
	ContextID string `json:"contextId,omitempty"`
}

// PresenceData is the payload of user_online/user_offline events.
type PresenceData struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// RosterData is the payload of the online_users event sent on connect.
type RosterData struct {
	Users []PresenceData `json:"users"`
}
