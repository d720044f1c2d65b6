package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	json "github.com/alpkeskin/gotoon"

	"github.com/Protocol-Lattice/go-context/src/model"
)

// QdrantBackend implements Backend over Qdrant's HTTP API.
type QdrantBackend struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope struct {
	Status qdrantStatus    `json:"status"`
	Time   float64         `json:"time"`
	Result json.RawMessage `json:"result"`
}

type qdrantPoint struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// NewQdrantBackend builds a backend for the given deployment. Empty baseURL
// defaults to http://localhost:6333; the API key falls back to
// QDRANT_API_KEY.
func NewQdrantBackend(baseURL, collection, apiKey string) *QdrantBackend {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	if apiKey == "" {
		apiKey = os.Getenv("QDRANT_API_KEY")
	}
	return &QdrantBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// EnsureCollection creates the collection if it does not exist. Existing
// collections are left untouched.
func (qb *QdrantBackend) EnsureCollection(ctx context.Context, dim int) error {
	req := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	err := qb.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", url.PathEscape(qb.collection)), req, nil)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}

func (qb *QdrantBackend) Upsert(ctx context.Context, rec model.EmbeddingRecord) error {
	req := map[string]any{
		"points": []map[string]any{{
			"id":     rec.InteractionID,
			"vector": rec.Vector,
			"payload": map[string]any{
				"content_hash": rec.ContentHash,
			},
		}},
	}
	return qb.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points", url.PathEscape(qb.collection)), req, nil)
}

func (qb *QdrantBackend) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": false,
	}
	var result []qdrantPoint
	if err := qb.doResult(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", url.PathEscape(qb.collection)), req, &result); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(result))
	for _, p := range result {
		matches = append(matches, Match{InteractionID: p.ID, Similarity: p.Score})
	}
	return matches, nil
}

func (qb *QdrantBackend) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	req := map[string]any{"points": ids}
	return qb.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete", url.PathEscape(qb.collection)), req, nil)
}

func (qb *QdrantBackend) do(ctx context.Context, method, path string, body any, env *qdrantEnvelope) error {
	if qb.collection == "" {
		return errors.New("qdrant collection is empty")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, qb.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if qb.apiKey != "" {
		// Either header works; sending both covers deployments with either check.
		req.Header.Set("api-key", qb.apiKey)
		req.Header.Set("Authorization", "Bearer "+qb.apiKey)
	}
	resp, err := qb.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed qdrantEnvelope
	_ = json.Unmarshal(respBody, &parsed)
	if env != nil {
		*env = parsed
	}

	if resp.StatusCode/100 != 2 {
		if parsed.Status.Error != "" {
			return errors.New(parsed.Status.Error)
		}
		return fmt.Errorf("qdrant error: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func (qb *QdrantBackend) doResult(ctx context.Context, method, path string, body, result any) error {
	var env qdrantEnvelope
	if err := qb.do(ctx, method, path, body, &env); err != nil {
		return err
	}
	if len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, result)
}
