// Package realtime carries named JSON events between the server and the
// consoles on the floor, over websockets for full clients and server-sent
// events for read-only observers.
package realtime

import (
	"encoding/json"
)

// Inbound events sent by clients.
const (
	EventJobCreate           = "job:create"
	EventJobUpdateStatus     = "job:update_status"
	EventJobSyncAllFromAdmin = "job:sync_all_from_admin"
	EventJobRequestSync      = "job:request_sync"
	EventUserRegister        = "user:register"
	EventPresenceList        = "presence:list"
)

// Outbound events sent by the server.
const (
	EventJobNew      = "job:new"
	EventJobUpdate   = "job:update"
	EventJobSyncAll  = "job:sync_all"
	EventJobAssigned = "job:assigned"
	EventPresence    = "presence:users"
	EventRegistered  = "user:registered"
	EventError       = "error"
	EventConnected   = "connected"
)

// Message is one named event with a JSON payload.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes payload into a message.
func NewMessage(event string, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: event, Data: data}, nil
}

// UpdatePayload is the body of job:update_status and job:update.
type UpdatePayload struct {
	JobID   string          `json:"jobId"`
	Updates json.RawMessage `json:"updates"`
}

// RegisterPayload is the body of user:register.
type RegisterPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload reports a rejected inbound message to its sender.
type ErrorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
