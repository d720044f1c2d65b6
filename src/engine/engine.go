// Package engine decides which stored interactions are relevant to a new
// message, optionally narrows the candidate set by embedding similarity, and
// assembles a bounded-size context payload. Engines are safe for concurrent
// use; the only shared mutable state lives inside the embedding index and
// the score cache, each behind its own mutex.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Protocol-Lattice/go-context/src/assemble"
	"github.com/Protocol-Lattice/go-context/src/cache"
	"github.com/Protocol-Lattice/go-context/src/concurrent"
	"github.com/Protocol-Lattice/go-context/src/embed"
	"github.com/Protocol-Lattice/go-context/src/index"
	"github.com/Protocol-Lattice/go-context/src/intent"
	"github.com/Protocol-Lattice/go-context/src/model"
	"github.com/Protocol-Lattice/go-context/src/score"
	"github.com/Protocol-Lattice/go-context/src/store"
	"github.com/Protocol-Lattice/go-context/src/topics"
)

// ErrInput marks malformed caller input, rejected before any work happens.
var ErrInput = errors.New("invalid input")

// Engine coordinates scoring, topic grouping, semantic narrowing and
// assembly of context payloads.
type Engine struct {
	store      store.InteractionStore
	index      *index.Index
	scores     *cache.ScoreCache
	summarizer Summarizer
	pool       *concurrent.WorkerPool
	opts       Options
	metrics    *Metrics
	logger     *log.Logger
	clock      func() time.Time
}

// NewEngine constructs a context intelligence engine over an interaction
// store.
func NewEngine(st store.InteractionStore, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		store:      st,
		scores:     cache.NewScoreCache(opts.ScoreCacheSize, opts.ScoreCacheTTL),
		summarizer: HeuristicSummarizer{},
		pool:       concurrent.NewWorkerPool(opts.EmbedConcurrency),
		opts:       opts,
		metrics:    &Metrics{},
		logger:     log.New(os.Stderr, "context-engine: ", log.LstdFlags),
		clock:      opts.Clock,
	}
	if !opts.LexicalOnly {
		e.index = index.New(embed.AutoEmbedder(), index.Options{
			MaxEmbeddings: opts.MaxEmbeddings,
			EmbedTimeout:  opts.EmbedTimeout,
			Backend:       opts.Backend,
		})
	}
	return e
}

// WithEmbedder overrides the default embedder. No-op for lexical-only
// engines.
func (e *Engine) WithEmbedder(embedder embed.Embedder) *Engine {
	if embedder != nil && !e.opts.LexicalOnly {
		e.index = index.New(embedder, index.Options{
			MaxEmbeddings: e.opts.MaxEmbeddings,
			EmbedTimeout:  e.opts.EmbedTimeout,
			Backend:       e.opts.Backend,
		})
	}
	return e
}

// WithSummarizer overrides the default conversation summarizer.
func (e *Engine) WithSummarizer(s Summarizer) *Engine {
	if s != nil {
		e.summarizer = s
	}
	return e
}

// WithLogger overrides the default logger.
func (e *Engine) WithLogger(logger *log.Logger) *Engine {
	if logger != nil {
		e.logger = logger
		if e.index != nil {
			e.index.WithLogger(logger)
		}
	}
	return e
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// MetricsSnapshot returns a copy of the runtime counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// GetContext builds the context payload for one incoming message.
// budgetChars must be positive; there is no default budget. A store read
// failure yields an explicit empty payload flagged store_status=unavailable
// rather than an error, so the caller can still forward the raw message.
func (e *Engine) GetContext(ctx context.Context, message, sessionID string, budgetChars int) (model.ContextPayload, error) {
	if strings.TrimSpace(message) == "" {
		return model.ContextPayload{}, fmt.Errorf("%w: empty message", ErrInput)
	}
	if budgetChars <= 0 {
		return model.ContextPayload{}, fmt.Errorf("%w: budget_chars must be positive", ErrInput)
	}

	cls := intent.Classify(message)
	now := e.clock().UTC()

	interactions, err := e.readWindow(ctx, sessionID)
	if err != nil {
		e.logf("interaction store unavailable: %v", err)
		e.metrics.IncStoreFailures()
		payload := assemble.Assemble(assemble.Input{
			Message:        message,
			Categories:     cls.Categories,
			Keywords:       cls.Keywords,
			BudgetChars:    budgetChars,
			SemanticStatus: e.semanticStatus(true),
			StoreStatus:    model.StoreStatusUnavailable,
		})
		e.metrics.IncContextsBuilt()
		return payload, nil
	}

	candidates, skipped := e.rankCandidates(interactions, now)
	branches := topics.Build(interactions, now, topics.Options{
		ActiveWindow: e.opts.ActiveWindow,
		TopK:         e.opts.TopicTopK,
	})

	semanticOK := true
	if e.index != nil && len(candidates) > 0 {
		narrowed, ok := e.narrow(ctx, message, candidates)
		semanticOK = ok
		if !ok {
			e.metrics.IncDegraded()
		}
		candidates = narrowed
	}

	historySummary := e.summarizeHistory(ctx, cls.Categories, candidates)

	payload := assemble.Assemble(assemble.Input{
		Message:        message,
		Categories:     cls.Categories,
		Candidates:     candidates,
		Branches:       branches,
		Keywords:       topics.Keywords(message),
		Preferences:    collectPreferences(interactions),
		HistorySummary: historySummary,
		BudgetChars:    budgetChars,
		TopPerCategory: e.opts.TopPerCategory,
		SemanticStatus: e.semanticStatus(semanticOK),
		StoreStatus:    model.StoreStatusOK,
		SkippedRecords: skipped,
	})

	e.metrics.IncContextsBuilt()
	e.metrics.IncSectionsOut(len(payload.Sections))
	e.metrics.IncRecordsSkipped(skipped)
	return payload, nil
}

// Debug mirrors GetContext's computation with richer output and no side
// effects: the embedding index is not touched, so access recency and record
// contents stay as they were.
type Debug struct {
	Classification intent.Classification `json:"classification"`
	Branches       []model.TopicBranch   `json:"branches"`
	Scores         []ScoredInteraction   `json:"scores"`
	SemanticStatus string                `json:"semantic_status"`
	StoreStatus    string                `json:"store_status"`
}

// ScoredInteraction pairs an interaction id with its score breakdown.
type ScoredInteraction struct {
	InteractionID int64           `json:"interaction_id"`
	Breakdown     score.Breakdown `json:"breakdown"`
}

// RelevanceDebug explains how the engine would rank context for a message.
func (e *Engine) RelevanceDebug(ctx context.Context, message, sessionID string) (Debug, error) {
	if strings.TrimSpace(message) == "" {
		return Debug{}, fmt.Errorf("%w: empty message", ErrInput)
	}
	now := e.clock().UTC()
	dbg := Debug{
		Classification: intent.Classify(message),
		SemanticStatus: e.semanticStatus(e.index != nil),
		StoreStatus:    model.StoreStatusOK,
	}

	interactions, err := e.readWindow(ctx, sessionID)
	if err != nil {
		dbg.StoreStatus = model.StoreStatusUnavailable
		return dbg, nil
	}

	dbg.Branches = topics.Build(interactions, now, topics.Options{
		ActiveWindow: e.opts.ActiveWindow,
		TopK:         e.opts.TopicTopK,
	})
	for _, in := range interactions {
		dbg.Scores = append(dbg.Scores, ScoredInteraction{
			InteractionID: in.ID,
			Breakdown:     score.Detailed(in, now),
		})
	}
	sort.SliceStable(dbg.Scores, func(i, j int) bool {
		if dbg.Scores[i].Breakdown.Total != dbg.Scores[j].Breakdown.Total {
			return dbg.Scores[i].Breakdown.Total > dbg.Scores[j].Breakdown.Total
		}
		return dbg.Scores[i].InteractionID > dbg.Scores[j].InteractionID
	})
	return dbg, nil
}

// WarmIndex eagerly embeds the current candidate window so first requests
// are not dominated by embedding latency. Embedding runs through the bounded
// worker pool.
func (e *Engine) WarmIndex(ctx context.Context) error {
	if e.index == nil {
		return nil
	}
	interactions, err := e.readWindow(ctx, "")
	if err != nil {
		return fmt.Errorf("read window: %w", err)
	}
	var warmed atomic.Int64
	err = concurrent.ForEach(ctx, e.pool, interactions, func(in model.Interaction) error {
		if err := e.index.Upsert(ctx, in.ID, in.CombinedText()); err != nil {
			// Unembeddable records are skipped, not fatal.
			e.logf("warm index: interaction %d: %v", in.ID, err)
			return nil
		}
		warmed.Add(1)
		return nil
	})
	e.metrics.IncIndexWarmed(int(warmed.Load()))
	return err
}

// Index exposes the embedding index for diagnostics; nil for lexical-only
// engines.
func (e *Engine) Index() *index.Index { return e.index }

func (e *Engine) readWindow(ctx context.Context, sessionID string) ([]model.Interaction, error) {
	if e.store == nil {
		return nil, errors.New("engine has no interaction store")
	}
	if sessionID != "" {
		return e.store.BySession(ctx, sessionID)
	}
	return e.store.Recent(ctx, e.opts.RecentWindow, e.opts.RecentLimit)
}

// rankCandidates scores the window and orders it by descending relevance.
// Scores are memoized within the current epoch; records with unusable
// timestamps are degraded, counted, and kept.
func (e *Engine) rankCandidates(interactions []model.Interaction, now time.Time) ([]assemble.Candidate, int) {
	epoch := now.Truncate(e.opts.ScoreCacheTTL).Format(time.RFC3339Nano)
	skipped := 0
	out := make([]assemble.Candidate, 0, len(interactions))
	for _, in := range interactions {
		key := cache.Key(in.ID, epoch)
		ann, ok := e.scores.Get(key)
		if !ok {
			detail := score.Detailed(in, now)
			if detail.BadTimestamp {
				skipped++
			}
			ann = model.RelevanceAnnotation{Score: detail.Total, ComputedAt: now}
			e.scores.Set(key, ann)
		}
		out = append(out, assemble.Candidate{Interaction: in, Weight: ann.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if !out[i].Interaction.Timestamp.Equal(out[j].Interaction.Timestamp) {
			return out[i].Interaction.Timestamp.After(out[j].Interaction.Timestamp)
		}
		return out[i].Interaction.ID > out[j].Interaction.ID
	})
	return out, skipped
}

// narrow re-ranks candidates by similarity to the message. It lazily embeds
// the top candidates, queries the index, and keeps matched candidates
// ordered by similarity. An unavailable embedding backend, or a query with
// no matches, leaves the relevance ranking untouched.
func (e *Engine) narrow(ctx context.Context, message string, candidates []assemble.Candidate) ([]assemble.Candidate, bool) {
	limit := e.opts.UpsertPerRequest
	if limit > len(candidates) {
		limit = len(candidates)
	}
	for _, c := range candidates[:limit] {
		if err := e.index.Upsert(ctx, c.Interaction.ID, c.Interaction.CombinedText()); err != nil {
			if errors.Is(err, index.ErrSemanticUnavailable) {
				return candidates, false
			}
			e.logf("index upsert interaction %d: %v", c.Interaction.ID, err)
		}
	}

	matches, err := e.index.Query(ctx, message, e.opts.SemanticTopK, e.opts.MinSimilarity)
	if err != nil {
		e.logf("semantic narrowing unavailable: %v", err)
		return candidates, false
	}
	if len(matches) == 0 {
		return candidates, true
	}

	rank := make(map[int64]int, len(matches))
	for i, m := range matches {
		rank[m.InteractionID] = i
	}
	narrowed := make([]assemble.Candidate, 0, len(matches))
	for _, c := range candidates {
		if _, ok := rank[c.Interaction.ID]; ok {
			narrowed = append(narrowed, c)
		}
	}
	sort.SliceStable(narrowed, func(i, j int) bool {
		return rank[narrowed[i].Interaction.ID] < rank[narrowed[j].Interaction.ID]
	})
	return narrowed, true
}

func (e *Engine) summarizeHistory(ctx context.Context, cats []intent.Category, candidates []assemble.Candidate) string {
	if e.summarizer == nil {
		return ""
	}
	wanted := false
	for _, c := range cats {
		if c == intent.CategoryConversationHistory {
			wanted = true
			break
		}
	}
	if !wanted {
		return ""
	}
	var turns []model.Interaction
	for _, c := range candidates {
		if c.Interaction.Kind == model.KindConversationTurn {
			turns = append(turns, c.Interaction)
		}
		if len(turns) >= e.opts.TopPerCategory {
			break
		}
	}
	if len(turns) == 0 {
		return ""
	}
	summary, err := e.summarizer.Summarize(ctx, turns)
	if err != nil {
		e.logf("summarize history: %v", err)
		return ""
	}
	if summary != "" {
		e.metrics.IncSummaries()
	}
	return summary
}

func (e *Engine) semanticStatus(ok bool) string {
	if e.opts.LexicalOnly {
		return model.SemanticStatusDisabled
	}
	if !ok {
		return model.SemanticStatusUnavailable
	}
	if e.opts.Backend != nil && e.index != nil && e.index.Mode() == index.ModeBruteForce {
		return model.SemanticStatusBruteForce
	}
	return model.SemanticStatusOK
}

func collectPreferences(interactions []model.Interaction) map[string]any {
	var prefs map[string]any
	for _, in := range interactions {
		meta := model.DecodeMetadata(in.Metadata)
		raw, ok := meta["preferences"].(map[string]any)
		if !ok {
			continue
		}
		if prefs == nil {
			prefs = map[string]any{}
		}
		// Later interactions override earlier ones; the window is
		// chronological.
		for k, v := range raw {
			prefs[k] = v
		}
	}
	return prefs
}
