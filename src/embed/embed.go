package embed

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// ---------- Dummy (fallback) ----------

// DummyEmbedder produces deterministic lexical vectors. It keeps the index
// usable in tests and in deployments with no embedding backend at all.
type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

// DummyEmbedding folds the text bytes into a fixed 768-dim vector.
func DummyEmbedding(text string) []float32 {
	vec := make([]float32, 768)
	for i, ch := range []byte(text) {
		vec[i%768] += float32(ch) / 255.0
	}
	return vec
}

// AutoEmbedder chooses a provider from env:
// CTX_EMBED_PROVIDER=openai|google|gemini|ollama|voyage|fastembed
// CTX_EMBED_MODEL=<model string>
// Unset or failed providers fall back to the dummy embedder so context
// gathering keeps working in lexical-only mode.
func AutoEmbedder() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("CTX_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("CTX_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "google", "gemini", "vertex", "vertexai":
		if e, err := NewVertexAIEmbedder(model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "voyage", "claude", "anthropic":
		if e, err := NewVoyageEmbedder(model); err == nil {
			return e
		}
	case "fastembed":
		if opts := defaultFastEmbedOptions(); opts != nil {
			if e, err := NewFastEmbedder(context.Background(), opts); err == nil {
				return e
			}
		}
	}

	log.Printf("AutoEmbedder: falling back to DummyEmbedder")
	return DummyEmbedder{}
}
