package model

import (
	"time"
)

// SessionState represents the lifecycle state of a terminal session.
type SessionState string

const (
	SessionStateCreated SessionState = "created"
	SessionStateRunning SessionState = "running"
	SessionStateClosed  SessionState = "closed"
)

// TopicPrefix is the publisher topic prefix for session output.
const TopicPrefix = "terminal_output#"

// OutputTopic returns the publisher topic carrying output for a session.
func OutputTopic(sessionID string) string {
	return TopicPrefix + sessionID
}

// Dimensions is a terminal window size.
type Dimensions struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// DefaultDimensions is the size used when the caller does not pick one.
var DefaultDimensions = Dimensions{Rows: 24, Cols: 80}

// SessionSnapshot is the externally reported view of a session.
type SessionSnapshot struct {
	ID          string       `json:"id"`
	PID         *int         `json:"pid"`
	IsStarted   bool         `json:"is_started"`
	IsCompleted bool         `json:"is_completed"`
	Title       *string      `json:"title"`
	State       SessionState `json:"state"`
	Shell       string       `json:"shell"`
	Rows        uint16       `json:"rows"`
	Cols        uint16       `json:"cols"`
	ExitCode    *int         `json:"exit_code,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// CreateSessionRequest represents a request to create a new session.
type CreateSessionRequest struct {
	ID    string `json:"id"`
	Shell string `json:"shell"`
	Rows  uint16 `json:"rows"`
	Cols  uint16 `json:"cols"`
}

// SessionEvent is one entry of the session lifecycle audit trail.
type SessionEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Kind      EventKind `json:"kind"`
	PID       *int      `json:"pid,omitempty"`
	Shell     string    `json:"shell"`
	ExitCode  *int      `json:"exitCode,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventKind classifies a SessionEvent.
type EventKind string

const (
	EventCreated      EventKind = "created"
	EventCreateFailed EventKind = "create_failed"
	EventExited       EventKind = "exited"
	EventRemoved      EventKind = "removed"
)
