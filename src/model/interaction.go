package model

import "time"

// Kind enumerates the supported interaction record types.
type Kind string

const (
	KindClientRequest    Kind = "client_request"
	KindAgentResponse    Kind = "agent_response"
	KindConversationTurn Kind = "conversation_turn"
	KindHealthCheck      Kind = "health_check"
	KindOther            Kind = "other"
)

// Status enumerates interaction outcomes.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPending Status = "pending"
)

// Interaction is one logged exchange unit in the interaction store.
// Content fields are immutable once written; the engine only reads them
// and attaches derived annotations keyed by ID.
type Interaction struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	TextIn    string    `json:"text_in"`
	TextOut   string    `json:"text_out"`
	Status    Status    `json:"status"`
	Metadata  string    `json:"metadata"`
}

// CombinedText returns the request and response text joined for scoring,
// keyword extraction and embedding.
func (i Interaction) CombinedText() string {
	switch {
	case i.TextIn == "":
		return i.TextOut
	case i.TextOut == "":
		return i.TextIn
	}
	return i.TextIn + "\n" + i.TextOut
}

// RelevanceAnnotation is a derived, cache-only score for one interaction.
// It is never persisted; recency makes stale scores incorrect.
type RelevanceAnnotation struct {
	Score      float64   `json:"score"`
	ComputedAt time.Time `json:"computed_at"`
}

// EmbeddingRecord associates an interaction with its vector representation.
// Owned exclusively by the embedding index; at most one per interaction id.
type EmbeddingRecord struct {
	InteractionID int64     `json:"interaction_id"`
	Vector        []float32 `json:"vector"`
	ContentHash   string    `json:"content_hash"`
}
