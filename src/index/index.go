// Package index maintains vector representations of interaction text and
// answers nearest-neighbor similarity queries under a bounded memory budget.
// All record and access-order mutation happens under a single mutex so a
// reader never observes a partially evicted record.
package index

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Protocol-Lattice/go-context/src/embed"
	"github.com/Protocol-Lattice/go-context/src/model"
)

// Mode reports how queries are currently answered.
type Mode string

const (
	// ModeANN means the configured approximate backend is serving queries.
	ModeANN Mode = "ann"
	// ModeBruteForce means exact cosine over all held vectors. This is the
	// only mode when no backend is configured, and the transparent fallback
	// when the backend errors at runtime.
	ModeBruteForce Mode = "brute_force"
)

// ErrSemanticUnavailable signals that the embedding backend could not
// produce a vector in time. Callers degrade to lexical-only ranking; this is
// never fatal for context gathering.
var ErrSemanticUnavailable = errors.New("semantic narrowing unavailable")

// Match is one similarity result.
type Match struct {
	InteractionID int64   `json:"interaction_id"`
	Similarity    float64 `json:"similarity"`
}

// Backend is an optional fast-search structure for similarity queries.
// Implementations must tolerate concurrent calls.
type Backend interface {
	Upsert(ctx context.Context, rec model.EmbeddingRecord) error
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
	Delete(ctx context.Context, ids []int64) error
}

// Options configures the index.
type Options struct {
	// MaxEmbeddings bounds the record set. Insertion beyond the cap evicts
	// the least-recently-queried record.
	MaxEmbeddings int
	// EmbedTimeout bounds each embedding computation; on expiry the caller
	// proceeds without semantic narrowing for that request.
	EmbedTimeout time.Duration
	// Backend optionally accelerates queries; nil means brute force only.
	Backend Backend
}

// DefaultOptions returns the recommended index defaults.
func DefaultOptions() Options {
	return Options{
		MaxEmbeddings: 4096,
		EmbedTimeout:  250 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxEmbeddings == 0 {
		o.MaxEmbeddings = 4096
	}
	if o.EmbedTimeout == 0 {
		o.EmbedTimeout = 250 * time.Millisecond
	}
	return o
}

type entry struct {
	rec     model.EmbeddingRecord
	queried bool
	elem    *list.Element // in unqueried (FIFO) or queried (LRU) list
}

// Index owns all EmbeddingRecords: at most one per interaction id, vector
// dimension fixed for the lifetime of the instance.
type Index struct {
	mu       sync.Mutex
	opts     Options
	embedder embed.Embedder
	records  map[int64]*entry
	// Eviction is LRU by query access, not insertion time: records that
	// were never matched by a query evict first, in insertion order.
	unqueried *list.List // front = oldest inserted, element value int64
	queried   *list.List // back = least recently matched, element value int64
	dim       int
	degraded  bool // backend failed; answering brute force
	logger    *log.Logger
	evictions int64
}

// New constructs an index over the given embedder.
func New(embedder embed.Embedder, opts Options) *Index {
	if embedder == nil {
		embedder = embed.DummyEmbedder{}
	}
	return &Index{
		opts:      opts.withDefaults(),
		embedder:  embedder,
		records:   make(map[int64]*entry),
		unqueried: list.New(),
		queried:   list.New(),
		logger:    log.New(os.Stderr, "embedding-index: ", log.LstdFlags),
	}
}

// WithLogger overrides the default logger.
func (ix *Index) WithLogger(logger *log.Logger) *Index {
	if logger != nil {
		ix.logger = logger
	}
	return ix
}

// HashContent returns the content hash used to detect identical text.
func HashContent(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Upsert embeds text for the interaction unless a record with a matching
// content hash already exists. Calling it twice with identical input leaves
// the stored vector and count unchanged.
func (ix *Index) Upsert(ctx context.Context, interactionID int64, text string) error {
	hash := HashContent(text)

	ix.mu.Lock()
	if ent, ok := ix.records[interactionID]; ok && ent.rec.ContentHash == hash {
		ix.mu.Unlock()
		return nil
	}
	ix.mu.Unlock()

	vec, err := ix.embedText(ctx, text)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vec)
	} else if len(vec) != ix.dim {
		return fmt.Errorf("embedding dimension %d does not match index dimension %d", len(vec), ix.dim)
	}

	rec := model.EmbeddingRecord{InteractionID: interactionID, Vector: vec, ContentHash: hash}

	if ent, ok := ix.records[interactionID]; ok {
		// Content changed: replace the vector in place, keep access order.
		ent.rec = rec
	} else {
		for len(ix.records) >= ix.opts.MaxEmbeddings {
			ix.evictLocked(ctx)
		}
		ix.records[interactionID] = &entry{
			rec:  rec,
			elem: ix.unqueried.PushBack(interactionID),
		}
	}

	if ix.opts.Backend != nil && !ix.degraded {
		if err := ix.opts.Backend.Upsert(ctx, rec); err != nil {
			ix.logf("backend upsert failed, switching to brute force: %v", err)
			ix.degraded = true
		}
	}
	return nil
}

// Query returns up to k interactions whose stored vectors are at least
// minSimilarity cosine-similar to text, ordered by similarity descending
// with ties broken by the more recent interaction. Matched records have
// their query-access recency bumped.
func (ix *Index) Query(ctx context.Context, text string, k int, minSimilarity float64) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := ix.embedText(ctx, text)
	if err != nil {
		return nil, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	var matches []Match
	if ix.opts.Backend != nil && !ix.degraded {
		matches, err = ix.opts.Backend.Query(ctx, vec, k)
		if err != nil {
			ix.logf("backend query failed, switching to brute force: %v", err)
			ix.degraded = true
		}
	}
	if ix.opts.Backend == nil || ix.degraded {
		matches = ix.bruteForceLocked(vec)
	}

	filtered := matches[:0]
	for _, m := range matches {
		if m.Similarity >= minSimilarity {
			filtered = append(filtered, m)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Similarity != filtered[j].Similarity {
			return filtered[i].Similarity > filtered[j].Similarity
		}
		return filtered[i].InteractionID > filtered[j].InteractionID
	})
	if len(filtered) > k {
		filtered = filtered[:k]
	}

	for _, m := range filtered {
		ix.touchLocked(m.InteractionID)
	}
	return append([]Match(nil), filtered...), nil
}

// Mode reports whether queries are served by the ANN backend or brute force.
func (ix *Index) Mode() Mode {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.opts.Backend != nil && !ix.degraded {
		return ModeANN
	}
	return ModeBruteForce
}

// Len returns the number of records currently held.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.records)
}

// Evictions returns the number of records removed under the cap.
func (ix *Index) Evictions() int64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.evictions
}

func (ix *Index) bruteForceLocked(vec []float32) []Match {
	matches := make([]Match, 0, len(ix.records))
	for id, ent := range ix.records {
		matches = append(matches, Match{
			InteractionID: id,
			Similarity:    model.CosineSimilarity(vec, ent.rec.Vector),
		})
	}
	return matches
}

func (ix *Index) touchLocked(id int64) {
	ent, ok := ix.records[id]
	if !ok {
		return
	}
	if !ent.queried {
		ix.unqueried.Remove(ent.elem)
		ent.queried = true
		ent.elem = ix.queried.PushFront(id)
		return
	}
	ix.queried.MoveToFront(ent.elem)
}

func (ix *Index) evictLocked(ctx context.Context) {
	var victim *list.Element
	switch {
	case ix.unqueried.Len() > 0:
		victim = ix.unqueried.Front()
		ix.unqueried.Remove(victim)
	case ix.queried.Len() > 0:
		victim = ix.queried.Back()
		ix.queried.Remove(victim)
	default:
		return
	}
	id := victim.Value.(int64)
	delete(ix.records, id)
	ix.evictions++
	if ix.opts.Backend != nil && !ix.degraded {
		if err := ix.opts.Backend.Delete(ctx, []int64{id}); err != nil {
			ix.logf("backend delete failed, switching to brute force: %v", err)
			ix.degraded = true
		}
	}
}

// embedText bounds the (possibly slow) model inference by EmbedTimeout.
func (ix *Index) embedText(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.opts.EmbedTimeout)
	defer cancel()
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSemanticUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, ErrSemanticUnavailable
	}
	return vec, nil
}

func (ix *Index) logf(format string, args ...any) {
	if ix.logger != nil {
		ix.logger.Printf(format, args...)
	}
}
