package model

import "time"

// TopicBranch is a labeled cluster of interactions sharing a keyword-derived
// category. Branches are rebuilt from scratch per call over a bounded recent
// window; they are a view, not durable state.
type TopicBranch struct {
	Label        string    `json:"label"`
	MemberIDs    []int64   `json:"member_interaction_ids"`
	IsActive     bool      `json:"is_active"`
	Score        float64   `json:"score"`
	LastMemberAt time.Time `json:"last_member_at"`
}

// Section is one atomic block of rendered context. Sections are never
// partially truncated; the assembler includes or skips them whole.
type Section struct {
	SourceKind   string  `json:"source_kind"`
	RenderedText string  `json:"rendered_text"`
	Weight       float64 `json:"weight"`
}

// Payload metadata status values.
const (
	SemanticStatusOK          = "ok"
	SemanticStatusBruteForce  = "brute_force"
	SemanticStatusUnavailable = "unavailable"
	SemanticStatusDisabled    = "disabled"

	StoreStatusOK          = "ok"
	StoreStatusUnavailable = "unavailable"
)

// PayloadMeta summarizes how a payload was produced, including every
// degradation the engine observed while building it.
type PayloadMeta struct {
	ActiveBranches []string `json:"active_branches"`
	Keywords       []string `json:"keywords"`
	Confidence     float64  `json:"confidence"`
	SemanticStatus string   `json:"semantic_status"`
	StoreStatus    string   `json:"store_status"`
	CandidateCount int      `json:"candidate_count"`
	IncludedCount  int      `json:"included_count"`
	TotalChars     int      `json:"total_chars"`
	SkippedRecords int      `json:"skipped_records,omitempty"`
}

// ContextPayload is the final bounded-size, ordered context handed to prompt
// assembly. Constructed fresh per request, never persisted.
type ContextPayload struct {
	Sections []Section   `json:"sections"`
	Prompt   string      `json:"prompt"`
	Meta     PayloadMeta `json:"meta"`
}
