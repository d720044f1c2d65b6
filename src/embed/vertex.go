package embed

import (
	"context"
	"errors"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// VertexAIEmbedder uses the Gemini embedding models via the generative-ai SDK.
// Requires GOOGLE_API_KEY.
type VertexAIEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

func NewVertexAIEmbedder(model string) (Embedder, error) {
	key := os.Getenv("GOOGLE_API_KEY")
	if key == "" {
		return nil, errors.New("VertexAIEmbedder: GOOGLE_API_KEY not set")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(key))
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &VertexAIEmbedder{client: client, model: client.EmbeddingModel(model)}, nil
}

func (e *VertexAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, ErrNotSupported
	}
	return resp.Embedding.Values, nil
}

func (e *VertexAIEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
