package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Turn is a single message of a conversation input.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Input is what the ingestion pipeline accepts: either plain text or a
// sequence of conversation turns. Exactly one form must be set.
type Input struct {
	Text         string
	Conversation []Turn
}

// TextInput wraps plain text as an Input.
func TextInput(text string) Input {
	return Input{Text: text}
}

// ConversationInput wraps conversation turns as an Input.
func ConversationInput(turns []Turn) Input {
	return Input{Conversation: turns}
}

// Validate checks the input shape. It rejects inputs that are neither plain
// text nor a conversation, and conversations containing empty turns.
func (in Input) Validate() error {
	hasText := in.Text != ""
	hasConv := len(in.Conversation) > 0
	if hasText && hasConv {
		return &ValidationError{Reason: "input must be either text or a conversation, not both"}
	}
	if !hasText && !hasConv {
		return &ValidationError{Reason: "input must contain text or conversation turns"}
	}
	for i, turn := range in.Conversation {
		if turn.Content == "" {
			return &ValidationError{Reason: fmt.Sprintf("conversation turn %d has empty content", i)}
		}
	}
	return nil
}

// Transcript flattens the input into a single readable string. Plain text
// is returned as-is; conversations become role-prefixed lines.
func (in Input) Transcript() string {
	if in.Text != "" {
		return in.Text
	}
	lines := make([]string, 0, len(in.Conversation))
	for _, turn := range in.Conversation {
		role := turn.Role
		if role == "" {
			role = "unknown"
		}
		lines = append(lines, capitalize(role)+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Payload holds the persisted fields of a memory besides its embedding.
// The embedding itself is owned by the Store; the engine only ever sees
// similarity scores.
type Payload struct {
	// Text is the canonical (possibly summarized) content. Used for
	// embedding and display.
	Text string `json:"text"`

	// RawText preserves the original plain-text input for audit.
	// At most one of RawText and RawConversation is set.
	RawText string `json:"raw_text,omitempty"`

	// RawConversation preserves the original conversation input for audit.
	RawConversation []Turn `json:"raw_conversation,omitempty"`

	// Summary is the summarizer output recorded at creation time.
	Summary string `json:"summary,omitempty"`

	// UserID is the tenant key. Empty means a global/shared memory.
	// Once set it is never changed to a different tenant.
	UserID string `json:"user_id,omitempty"`

	// CreatedAt is set once at creation and not updated on merge: a
	// memory's age reflects its first observation. The zero value marks
	// an untimed memory.
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Importance weights ranking. Defaults to 1.0 at creation and is not
	// otherwise mutated by the engine.
	Importance float64 `json:"importance,omitempty"`

	// Metadata carries caller-supplied extra fields.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchHit is one retrieval candidate. Similarity comes straight from the
// vector store; DecayedScore and FinalScore are derived by the engine.
type SearchHit struct {
	ID           string  `json:"id"`
	Similarity   float64 `json:"similarity"`
	Payload      Payload `json:"payload"`
	DecayedScore float64 `json:"decayed_score"`
	FinalScore   float64 `json:"final_score"`
}

// StoredMemory is one entry of a Store listing.
type StoredMemory struct {
	ID      string  `json:"id"`
	Payload Payload `json:"payload"`
}

// Status is the outcome of an ingestion decision.
type Status string

const (
	// StatusCreated means no sufficiently similar memory existed and a new
	// one was inserted.
	StatusCreated Status = "created"

	// StatusMerged means the input was folded into the nearest existing
	// memory; no new id was allocated.
	StatusMerged Status = "merged"
)

// CreateResult reports an ingestion outcome with enough detail for callers
// to show "merged with existing" UX.
type CreateResult struct {
	Status  Status `json:"status"`
	ID      string `json:"id"`
	Summary string `json:"summary,omitempty"`

	// Merge details, set only when Status is StatusMerged.
	Old    string `json:"old,omitempty"`
	New    string `json:"new,omitempty"`
	Merged string `json:"merged,omitempty"`
}

// QueryResult is the retrieval pipeline output. Memories are in final
// ranking order; callers must not re-sort.
type QueryResult struct {
	Query          string      `json:"query"`
	Memories       []SearchHit `json:"memories"`
	ContextSummary string      `json:"context_summary,omitempty"`
}

// Health summarizes a tenant's memory set.
type Health struct {
	MemoryCount       int       `json:"memory_count"`
	AverageImportance float64   `json:"average_importance"`
	OldestCreatedAt   time.Time `json:"oldest_created_at,omitzero"`
	NewestCreatedAt   time.Time `json:"newest_created_at,omitzero"`
	UntimedCount      int       `json:"untimed_count"`
}

// ErrNotFound reports an update or delete referencing an id that does not
// exist within the tenant scope.
var ErrNotFound = errors.New("memory not found")

// ValidationError reports malformed input. Fatal to the single call and
// surfaced before any collaborator is contacted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Reason
}

// IsValidation reports whether err is an input-validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
