package assemble

import (
	"strings"
	"testing"
	"time"

	"github.com/Protocol-Lattice/go-context/src/intent"
	"github.com/Protocol-Lattice/go-context/src/model"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleCandidates() []Candidate {
	return []Candidate{
		{
			Interaction: model.Interaction{
				ID:        3,
				Timestamp: now.Add(-5 * time.Minute),
				Kind:      model.KindConversationTurn,
				TextIn:    "the production deployment is failing with an image pull error",
				Status:    model.StatusError,
			},
			Weight: 3.2,
		},
		{
			Interaction: model.Interaction{
				ID:        2,
				Timestamp: now.Add(-20 * time.Minute),
				Kind:      model.KindAgentResponse,
				TextOut:   "pushed the docker container to the staging registry",
				Status:    model.StatusSuccess,
			},
			Weight: 2.1,
		},
		{
			Interaction: model.Interaction{
				ID:        1,
				Timestamp: now.Add(-40 * time.Minute),
				Kind:      model.KindClientRequest,
				TextIn:    "update the architecture documentation for the ingest layer",
				Status:    model.StatusSuccess,
			},
			Weight: 1.9,
		},
	}
}

func TestAssemble_SectionsFollowCategoryOrder(t *testing.T) {
	payload := Assemble(Input{
		Message:     "why is the deployment failing?",
		Categories:  []intent.Category{intent.CategoryErrorContext, intent.CategoryRecentActions, intent.CategoryTechStack},
		Candidates:  sampleCandidates(),
		BudgetChars: 4000,
	})

	if len(payload.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(payload.Sections))
	}
	want := []string{"error_context", "recent_actions", "tech_stack"}
	for i, sec := range payload.Sections {
		if sec.SourceKind != want[i] {
			t.Errorf("section %d: expected %q, got %q", i, want[i], sec.SourceKind)
		}
	}
	if !strings.Contains(payload.Sections[0].RenderedText, "## ERROR CONTEXT") {
		t.Errorf("missing section header: %q", payload.Sections[0].RenderedText)
	}
}

func TestAssemble_BudgetSkipsWholeSections(t *testing.T) {
	payload := Assemble(Input{
		Message:     "why is the deployment failing?",
		Categories:  []intent.Category{intent.CategoryRecentActions, intent.CategoryErrorContext},
		Candidates:  sampleCandidates(),
		BudgetChars: 140,
	})

	if payload.Meta.TotalChars > 140 {
		t.Errorf("budget exceeded: %d chars", payload.Meta.TotalChars)
	}
	for _, sec := range payload.Sections {
		// Atomic sections: whatever was admitted is complete.
		if !strings.HasPrefix(sec.RenderedText, "## ") {
			t.Errorf("truncated section: %q", sec.RenderedText)
		}
	}
	if payload.Meta.IncludedCount >= 2 {
		t.Errorf("expected at least one section skipped, got %d included", payload.Meta.IncludedCount)
	}
}

func TestAssemble_OutputBoundedByFixedOverhead(t *testing.T) {
	// Thousands of candidates: the rendered prompt stays within the budget
	// plus the scaffold allowance and the echoed query.
	var candidates []Candidate
	for i := 0; i < 3000; i++ {
		candidates = append(candidates, Candidate{
			Interaction: model.Interaction{
				ID:        int64(i + 1),
				Timestamp: now.Add(-time.Duration(i) * time.Minute),
				Kind:      model.KindConversationTurn,
				TextIn:    strings.Repeat("deployment pipeline log line ", 10),
				Status:    model.StatusError,
			},
			Weight: 1,
		})
	}
	msg := "why is the deployment failing?"
	for _, budget := range []int{25, 300, 2000} {
		payload := Assemble(Input{
			Message: msg,
			Categories: []intent.Category{
				intent.CategoryErrorContext,
				intent.CategoryRecentActions,
				intent.CategoryTechStack,
				intent.CategoryConversationHistory,
			},
			Candidates:     candidates,
			TopPerCategory: 50,
			BudgetChars:    budget,
		})
		if max := budget + FixedOverhead + len(msg); len(payload.Prompt) > max {
			t.Errorf("budget %d: prompt %d chars exceeds bound %d", budget, len(payload.Prompt), max)
		}
		if payload.Meta.TotalChars > budget {
			t.Errorf("budget %d: sections used %d chars", budget, payload.Meta.TotalChars)
		}
	}
}

func TestAssemble_ConfidenceIgnoresBudget(t *testing.T) {
	in := Input{
		Message:     "why is the deployment failing?",
		Categories:  []intent.Category{intent.CategoryErrorContext, intent.CategoryRecentActions, intent.CategoryUserPreferences},
		Candidates:  sampleCandidates(),
		BudgetChars: 4000,
	}
	payload := Assemble(in)
	// Two of three categories have content; no preferences exist.
	if diff := payload.Meta.Confidence - 2.0/3.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected confidence 2/3, got %v", payload.Meta.Confidence)
	}

	in.BudgetChars = 1
	squeezed := Assemble(in)
	if squeezed.Meta.Confidence != payload.Meta.Confidence {
		t.Errorf("confidence changed with budget: %v vs %v",
			squeezed.Meta.Confidence, payload.Meta.Confidence)
	}
	if squeezed.Meta.IncludedCount != 0 {
		t.Errorf("expected no sections under a 1-char budget, got %d", squeezed.Meta.IncludedCount)
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	in := Input{
		Message:    "why is the deployment failing?",
		Categories: []intent.Category{intent.CategoryErrorContext, intent.CategoryRecentActions, intent.CategoryUserPreferences},
		Candidates: sampleCandidates(),
		Preferences: map[string]any{
			"style":    "concise",
			"language": "go",
		},
		BudgetChars: 4000,
	}
	first := Assemble(in)
	for i := 0; i < 20; i++ {
		if again := Assemble(in); again.Prompt != first.Prompt {
			t.Fatalf("prompt differs between runs:\n%q\n%q", again.Prompt, first.Prompt)
		}
	}
}

func TestAssemble_EmptyPayload(t *testing.T) {
	payload := Assemble(Input{
		Message:     "hello",
		Categories:  []intent.Category{intent.CategoryConversationHistory},
		BudgetChars: 1000,
	})
	if len(payload.Sections) != 0 {
		t.Fatalf("expected no sections, got %d", len(payload.Sections))
	}
	if !strings.Contains(payload.Prompt, "(No relevant context found)") {
		t.Errorf("missing empty-context marker: %q", payload.Prompt)
	}
	if !strings.Contains(payload.Prompt, "User Query:\nhello") {
		t.Errorf("missing user query block: %q", payload.Prompt)
	}
}

func TestAssemble_HistorySummaryLeadsSection(t *testing.T) {
	payload := Assemble(Input{
		Message:        "what did we talk about?",
		Categories:     []intent.Category{intent.CategoryConversationHistory},
		Candidates:     sampleCandidates(),
		HistorySummary: "deployment debugging across staging and production",
		BudgetChars:    4000,
	})
	if len(payload.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(payload.Sections))
	}
	lines := strings.Split(strings.TrimSpace(payload.Sections[0].RenderedText), "\n")
	if len(lines) < 2 || !strings.Contains(lines[1], "deployment debugging") {
		t.Errorf("summary must be the first entry: %q", payload.Sections[0].RenderedText)
	}
}

func TestClip_RuneBoundary(t *testing.T) {
	long := strings.Repeat("héllo wörld ", 40)
	clipped := clip(long)
	if len([]rune(clipped)) > maxEntryChars+1 {
		t.Errorf("clip too long: %d runes", len([]rune(clipped)))
	}
	if !strings.HasSuffix(clipped, "…") {
		t.Errorf("expected ellipsis suffix: %q", clipped)
	}
}
