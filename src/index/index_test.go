package index

import (
	"context"
	"errors"
	"testing"
)

// stubEmbedder returns fixed vectors per text and counts invocations.
type stubEmbedder struct {
	vecs  map[string][]float32
	calls int
	err   error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestUpsert_IdempotentByContentHash(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float32{"hello": {1, 0, 0}}}
	ix := New(emb, Options{})
	ctx := context.Background()

	if err := ix.Upsert(ctx, 1, "hello"); err != nil {
		t.Fatal(err)
	}
	calls := emb.calls
	if err := ix.Upsert(ctx, 1, "hello"); err != nil {
		t.Fatal(err)
	}
	if emb.calls != calls {
		t.Error("identical content must not re-embed")
	}
	if ix.Len() != 1 {
		t.Errorf("expected 1 record, got %d", ix.Len())
	}
}

func TestUpsert_ReplacesChangedContent(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float32{
		"old": {1, 0, 0},
		"new": {0, 1, 0},
	}}
	ix := New(emb, Options{})
	ctx := context.Background()

	if err := ix.Upsert(ctx, 1, "old"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Upsert(ctx, 1, "new"); err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 1 {
		t.Fatalf("expected 1 record after replace, got %d", ix.Len())
	}

	matches, err := ix.Query(ctx, "new", 1, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].InteractionID != 1 {
		t.Errorf("expected the replaced vector to match, got %v", matches)
	}
}

func TestUpsert_CapNeverExceeded(t *testing.T) {
	emb := &stubEmbedder{}
	ix := New(emb, Options{MaxEmbeddings: 3})
	ctx := context.Background()

	for id := int64(1); id <= 10; id++ {
		if err := ix.Upsert(ctx, id, "hello"); err != nil {
			t.Fatal(err)
		}
		if ix.Len() > 3 {
			t.Fatalf("cap exceeded after insert %d: %d records", id, ix.Len())
		}
	}
	if ix.Evictions() != 7 {
		t.Errorf("expected 7 evictions, got %d", ix.Evictions())
	}
}

func TestEviction_NeverQueriedGoFirst(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
		"d": {1, 1, 0},
	}}
	ix := New(emb, Options{MaxEmbeddings: 3})
	ctx := context.Background()

	if err := ix.Upsert(ctx, 1, "a"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Upsert(ctx, 2, "b"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Upsert(ctx, 3, "c"); err != nil {
		t.Fatal(err)
	}

	// Query matching record 1 bumps it into the recently-queried set.
	if _, err := ix.Query(ctx, "a", 1, 0.9); err != nil {
		t.Fatal(err)
	}

	// Inserting a fourth record must evict record 2 (oldest never-queried),
	// not record 1, even though 1 was inserted first.
	if err := ix.Upsert(ctx, 4, "d"); err != nil {
		t.Fatal(err)
	}

	if m, _ := ix.Query(ctx, "a", 1, 0.9); len(m) != 1 || m[0].InteractionID != 1 {
		t.Errorf("queried record was evicted: %v", m)
	}
	if m, _ := ix.Query(ctx, "b", 1, 0.9); len(m) != 0 {
		t.Errorf("expected record 2 evicted, still matches: %v", m)
	}
}

func TestQuery_FiltersAndOrders(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float32{
		"exact": {1, 0, 0},
		"close": {0.9, 0.1, 0},
		"far":   {0, 1, 0},
		"probe": {1, 0, 0},
	}}
	ix := New(emb, Options{})
	ctx := context.Background()

	for id, text := range map[int64]string{1: "exact", 2: "close", 3: "far"} {
		if err := ix.Upsert(ctx, id, text); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := ix.Query(ctx, "probe", 10, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches above threshold, got %v", matches)
	}
	if matches[0].InteractionID != 1 {
		t.Errorf("expected exact match first, got %v", matches)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("matches not ordered by similarity")
	}
}

func TestQuery_EmbedderFailure(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("model offline")}
	ix := New(emb, Options{})
	ctx := context.Background()

	if err := ix.Upsert(ctx, 1, "hello"); !errors.Is(err, ErrSemanticUnavailable) {
		t.Errorf("expected ErrSemanticUnavailable from upsert, got %v", err)
	}
	if _, err := ix.Query(ctx, "hello", 5, 0.7); !errors.Is(err, ErrSemanticUnavailable) {
		t.Errorf("expected ErrSemanticUnavailable from query, got %v", err)
	}
}

func TestHashContent_Stable(t *testing.T) {
	if HashContent("abc") != HashContent("abc") {
		t.Error("hash must be deterministic")
	}
	if HashContent("abc") == HashContent("abd") {
		t.Error("distinct content must not collide")
	}
}

func TestMode(t *testing.T) {
	ix := New(&stubEmbedder{}, Options{})
	if ix.Mode() != ModeBruteForce {
		t.Errorf("no backend: expected brute force, got %q", ix.Mode())
	}
}
