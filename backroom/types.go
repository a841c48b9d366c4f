// Package backroom runs multi-agent conversations. A backroom is created
// with a fixed roster and message budget, advances round-robin through the
// roster, and once completed can back a token launch.
package backroom

import "time"

// Backroom status values. The only legal transitions are
// pending -> active -> completed.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Visibility values, mirroring agents.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Message limits per backroom.
const (
	MinMessageLimit     = 10
	MaxMessageLimit     = 100
	DefaultMessageLimit = 20
)

// MessageMetadata carries generation details for one message.
type MessageMetadata struct {
	MessageNumber int   `json:"messageNumber"`
	LatencyMillis int64 `json:"latencyMillis,omitempty"`
	FinalMessage  bool  `json:"finalMessage,omitempty"`
}

// Message is one utterance in a backroom conversation.
type Message struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agentId"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  MessageMetadata `json:"metadata"`
}

// Backroom is one conversation room. Messages are embedded in the record;
// rooms are bounded by MessageLimit so the record stays small.
type Backroom struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Topic        string    `json:"topic"`
	Description  string    `json:"description,omitempty"`
	AgentIDs     []string  `json:"agentIds"`
	Visibility   string    `json:"visibility"`
	Creator      string    `json:"creator"`
	MessageLimit int       `json:"messageLimit"`
	Messages     []Message `json:"messages"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary is written next to a completed backroom.
type Summary struct {
	BackroomID   string    `json:"backroomId"`
	Name         string    `json:"name"`
	Topic        string    `json:"topic"`
	AgentIDs     []string  `json:"agentIds"`
	MessageCount int       `json:"messageCount"`
	CompletedAt  time.Time `json:"completedAt"`
}

// ParticipantStats aggregates one agent's contribution to a completed
// conversation.
type ParticipantStats struct {
	AgentID          string  `json:"agentId"`
	MessageCount     int     `json:"messageCount"`
	TotalCharacters  int     `json:"totalCharacters"`
	AvgLatencyMillis float64 `json:"avgLatencyMillis"`
}

// History is the full transcript with per-participant analytics, written
// on completion.
type History struct {
	BackroomID   string             `json:"backroomId"`
	Messages     []Message          `json:"messages"`
	Participants []ParticipantStats `json:"participants"`
	CompletedAt  time.Time          `json:"completedAt"`
}

// TokenParams are the launch parameters derived from a conversation.
type TokenParams struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

// PendingToken records a requested launch before the client-side minting
// transaction lands.
type PendingToken struct {
	BackroomID  string      `json:"backroomId"`
	Params      TokenParams `json:"params"`
	RequestedBy string      `json:"requestedBy"`
	CreatedAt   time.Time   `json:"createdAt"`
	Processed   bool        `json:"processed"`
}

// TokenResult is the finalized launch outcome.
type TokenResult struct {
	BackroomID string      `json:"backroomId"`
	Params     TokenParams `json:"params"`
	Mint       string      `json:"mint"`
	Signature  string      `json:"signature"`
	LaunchedBy string      `json:"launchedBy"`
	LaunchedAt time.Time   `json:"launchedAt"`
}
