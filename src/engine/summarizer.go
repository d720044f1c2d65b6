package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Protocol-Lattice/go-context/src/model"
)

// Summarizer condenses a run of conversation turns into one line for the
// conversation_history section.
type Summarizer interface {
	Summarize(ctx context.Context, turns []model.Interaction) (string, error)
}

// HeuristicSummarizer produces deterministic summaries suitable for tests
// and for engines that must stay byte-reproducible.
type HeuristicSummarizer struct{}

func (HeuristicSummarizer) Summarize(_ context.Context, turns []model.Interaction) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	var sentences []string
	for _, t := range turns {
		sentences = append(sentences, strings.TrimSpace(t.CombinedText()))
	}
	summary := strings.Join(sentences, " ")
	if len(summary) > 280 {
		summary = summary[:280]
	}
	return summary, nil
}

// AnthropicSummarizer asks Claude for a one-line summary of the turns.
// Requires ANTHROPIC_API_KEY. A failed call degrades to no summary; it never
// fails the context request.
type AnthropicSummarizer struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

func NewAnthropicSummarizer(model string) *AnthropicSummarizer {
	key := os.Getenv("ANTHROPIC_API_KEY")
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(key),
	)
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &AnthropicSummarizer{
		Client:    &cl,
		Model:     model,
		MaxTokens: 256,
	}
}

func (a *AnthropicSummarizer) Summarize(ctx context.Context, turns []model.Interaction) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation turns in one sentence:\n\n")
	for _, t := range turns {
		fmt.Fprintf(&sb, "- %s\n", strings.TrimSpace(t.CombinedText()))
	}

	msg, err := a.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(a.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sb.String())),
		},
	})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(tb.Text)
		}
	}
	return strings.TrimSpace(out.String()), nil
}
