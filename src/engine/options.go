package engine

import (
	"time"

	"github.com/Protocol-Lattice/go-context/src/index"
)

// Options configures the context intelligence engine. The zero value of any
// field falls back to the recommended default; BudgetChars has no default
// and is supplied per call.
type Options struct {
	// ActiveWindow marks topic branches active when a member falls inside it.
	ActiveWindow time.Duration
	// RecentWindow bounds how far back candidate interactions are read.
	RecentWindow time.Duration
	// RecentLimit caps the candidate window by count.
	RecentLimit int
	// TopicTopK branches by aggregate relevance stay active regardless of age.
	TopicTopK int
	// MaxEmbeddings bounds the embedding index record set.
	MaxEmbeddings int
	// MinSimilarity filters semantic matches.
	MinSimilarity float64
	// EmbedTimeout bounds each embedding computation.
	EmbedTimeout time.Duration
	// LexicalOnly selects the lexical-only engine variant at construction:
	// identical call signatures, no embedding index involvement.
	LexicalOnly bool
	// SemanticTopK caps how many matches a semantic query may return.
	SemanticTopK int
	// UpsertPerRequest caps how many candidates are lazily embedded during
	// one context-gathering call.
	UpsertPerRequest int
	// TopPerCategory caps entries per payload section.
	TopPerCategory int
	// ScoreCacheTTL is the freshness window for cached relevance scores.
	ScoreCacheTTL time.Duration
	// ScoreCacheSize bounds the score cache.
	ScoreCacheSize int
	// EmbedConcurrency bounds parallel embedding during WarmIndex.
	EmbedConcurrency int
	// Backend optionally accelerates similarity queries (e.g. Qdrant).
	Backend index.Backend
	// Clock overrides the time source, for tests.
	Clock func() time.Time
}

// DefaultOptions returns the recommended engine defaults.
func DefaultOptions() Options {
	return Options{
		ActiveWindow:     24 * time.Hour,
		RecentWindow:     7 * 24 * time.Hour,
		RecentLimit:      200,
		TopicTopK:        3,
		MaxEmbeddings:    4096,
		MinSimilarity:    0.7,
		EmbedTimeout:     250 * time.Millisecond,
		SemanticTopK:     20,
		UpsertPerRequest: 50,
		TopPerCategory:   5,
		ScoreCacheTTL:    30 * time.Second,
		ScoreCacheSize:   2048,
		EmbedConcurrency: 4,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.ActiveWindow == 0 {
		o.ActiveWindow = defaults.ActiveWindow
	}
	if o.RecentWindow == 0 {
		o.RecentWindow = defaults.RecentWindow
	}
	if o.RecentLimit == 0 {
		o.RecentLimit = defaults.RecentLimit
	}
	if o.TopicTopK == 0 {
		o.TopicTopK = defaults.TopicTopK
	}
	if o.MaxEmbeddings == 0 {
		o.MaxEmbeddings = defaults.MaxEmbeddings
	}
	if o.MinSimilarity == 0 {
		o.MinSimilarity = defaults.MinSimilarity
	}
	if o.EmbedTimeout == 0 {
		o.EmbedTimeout = defaults.EmbedTimeout
	}
	if o.SemanticTopK == 0 {
		o.SemanticTopK = defaults.SemanticTopK
	}
	if o.UpsertPerRequest == 0 {
		o.UpsertPerRequest = defaults.UpsertPerRequest
	}
	if o.TopPerCategory == 0 {
		o.TopPerCategory = defaults.TopPerCategory
	}
	if o.ScoreCacheTTL == 0 {
		o.ScoreCacheTTL = defaults.ScoreCacheTTL
	}
	if o.ScoreCacheSize == 0 {
		o.ScoreCacheSize = defaults.ScoreCacheSize
	}
	if o.EmbedConcurrency == 0 {
		o.EmbedConcurrency = defaults.EmbedConcurrency
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
