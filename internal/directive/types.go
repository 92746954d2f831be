package directive

import (
	"fmt"
	"time"
)

// Role identifies who authored a chat turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message delivered by the transport, in arrival order
type ChatTurn struct {
	ID            string         `json:"id" yaml:"id"`
	Role          Role           `json:"role" yaml:"role"`
	Content       string         `json:"content" yaml:"content"`
	Timestamp     time.Time      `json:"timestamp" yaml:"timestamp"`
	LegacyActions []LegacyAction `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// LegacyAction is a directive attached to a turn as an explicit object
// rather than embedded in its text
type LegacyAction struct {
	Type string         `json:"type" yaml:"type"`
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Source records which delivery path produced a directive
type Source string

const (
	SourceEmbedded Source = "embedded"
	SourceLegacy   Source = "legacy"
)

// Directive is a decision point awaiting a human confirm or cancel
type Directive struct {
	ID       string         `json:"id" yaml:"id"`
	TurnID   string         `json:"turn_id" yaml:"turn_id"`
	Index    int            `json:"index" yaml:"index"`
	RawType  string         `json:"raw_type" yaml:"raw_type"`
	Category Category       `json:"category" yaml:"category"`
	Data     map[string]any `json:"data" yaml:"data"`
	Source   Source         `json:"source" yaml:"source"`
}

// SessionID returns the session correlator carried in the payload, if any.
// The value is returned as found so it can be echoed back unchanged.
func (d Directive) SessionID() (any, bool) {
	if d.Data == nil {
		return nil, false
	}
	if v, ok := d.Data[SessionIDKey]; ok {
		return v, true
	}
	if v, ok := d.Data[legacySessionIDKey]; ok {
		return v, true
	}
	return nil, false
}

// SessionIDKey is the wire name of the session correlator
const SessionIDKey = "sessionId"

const legacySessionIDKey = "session_id"

// Status is the lifecycle of a directive within its turn
type Status int

const (
	StatusPending Status = iota
	StatusSubmitting
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSubmitting:
		return "submitting"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func embeddedID(turnID string, index int) string {
	return fmt.Sprintf("%s#%d", turnID, index)
}

func legacyID(turnID string, index int) string {
	return fmt.Sprintf("%s#legacy-%d", turnID, index)
}
