// Package assemble combines ranked interactions, topic branches and message
// metadata into a size-bounded, ordered context payload and renders the
// final prompt. Assembly is pure: identical inputs always produce
// byte-identical output.
package assemble

import (
	"fmt"
	"sort"
	"strings"
	"time"

	gotoon "github.com/alpkeskin/gotoon"

	"github.com/Protocol-Lattice/go-context/src/intent"
	"github.com/Protocol-Lattice/go-context/src/model"
	"github.com/Protocol-Lattice/go-context/src/topics"
)

// Candidate pairs an interaction with its relevance weight; the slice handed
// to Assemble is expected ranked by descending weight.
type Candidate struct {
	Interaction model.Interaction
	Weight      float64
}

// Input carries everything Assemble needs. BudgetChars must be supplied by
// the caller; there is no default budget.
type Input struct {
	Message        string
	Categories     []intent.Category
	Candidates     []Candidate
	Branches       []model.TopicBranch
	Keywords       []string
	Preferences    map[string]any
	HistorySummary string
	BudgetChars    int
	TopPerCategory int

	SemanticStatus string
	StoreStatus    string
	SkippedRecords int
}

// Fixed structural overhead: prompt header, section markers and the trailing
// user-query block are not charged against the section budget.
const FixedOverhead = 256

const (
	maxEntryChars     = 240
	defaultPerSection = 5
)

// Assemble renders the payload. Categories are visited in the priority order
// the intent classifier emitted; each section is atomic — when a whole
// section would exceed the remaining budget it is skipped and the next
// (typically smaller) one is tried.
func Assemble(in Input) model.ContextPayload {
	perSection := in.TopPerCategory
	if perSection <= 0 {
		perSection = defaultPerSection
	}

	payload := model.ContextPayload{
		Meta: model.PayloadMeta{
			ActiveBranches: activeLabels(in.Branches),
			Keywords:       append([]string(nil), in.Keywords...),
			SemanticStatus: in.SemanticStatus,
			StoreStatus:    in.StoreStatus,
			CandidateCount: len(in.Candidates),
			SkippedRecords: in.SkippedRecords,
		},
	}

	used := 0
	populated := 0
	for _, cat := range in.Categories {
		text, weight := renderCategory(cat, in, perSection)
		if text == "" {
			continue
		}
		populated++
		if in.BudgetChars > 0 && used+len(text) > in.BudgetChars {
			continue
		}
		used += len(text)
		payload.Sections = append(payload.Sections, model.Section{
			SourceKind:   string(cat),
			RenderedText: text,
			Weight:       weight,
		})
	}

	// Confidence is a derived diagnostic: the fraction of requested
	// categories that yielded at least one non-empty entry, regardless of
	// whether the budget later admitted them.
	if len(in.Categories) > 0 {
		payload.Meta.Confidence = float64(populated) / float64(len(in.Categories))
	}
	payload.Prompt = renderPrompt(in.Message, payload.Sections)

	// Rendered output never exceeds the section budget plus FixedOverhead
	// for the scaffold and the echoed query. Section separators count
	// against the overhead, so trailing sections are dropped if they would
	// push past it.
	if in.BudgetChars > 0 {
		maxLen := in.BudgetChars + FixedOverhead + len(in.Message)
		for len(payload.Prompt) > maxLen && len(payload.Sections) > 0 {
			last := len(payload.Sections) - 1
			used -= len(payload.Sections[last].RenderedText)
			payload.Sections = payload.Sections[:last]
			payload.Prompt = renderPrompt(in.Message, payload.Sections)
		}
	}

	payload.Meta.IncludedCount = len(payload.Sections)
	payload.Meta.TotalChars = used
	return payload
}

func renderCategory(cat intent.Category, in Input, perSection int) (string, float64) {
	var entries []string
	var weight float64

	add := func(c Candidate, line string) {
		entries = append(entries, line)
		if c.Weight > weight {
			weight = c.Weight
		}
	}

	switch cat {
	case intent.CategoryRecentActions:
		for _, c := range newestFirst(in.Candidates) {
			if len(entries) >= perSection {
				break
			}
			add(c, entryLine(c.Interaction))
		}
	case intent.CategoryErrorContext:
		for _, c := range in.Candidates {
			if len(entries) >= perSection {
				break
			}
			if c.Interaction.Status == model.StatusError || matchesAny(c.Interaction, "debugging") {
				add(c, entryLine(c.Interaction))
			}
		}
	case intent.CategoryTechStack:
		for _, c := range in.Candidates {
			if len(entries) >= perSection {
				break
			}
			if matchesAny(c.Interaction, "coding", "deployment", "system_administration", "testing") {
				add(c, entryLine(c.Interaction))
			}
		}
	case intent.CategoryProjectStructure:
		for _, c := range in.Candidates {
			if len(entries) >= perSection {
				break
			}
			if matchesAny(c.Interaction, "architecture", "documentation", "project_management") {
				add(c, entryLine(c.Interaction))
			}
		}
	case intent.CategoryConversationHistory:
		if in.HistorySummary != "" {
			entries = append(entries, "- "+clip(in.HistorySummary))
		}
		for _, c := range in.Candidates {
			if len(entries) >= perSection {
				break
			}
			if c.Interaction.Kind == model.KindConversationTurn {
				add(c, entryLine(c.Interaction))
			}
		}
	case intent.CategoryUserPreferences:
		if len(in.Preferences) > 0 {
			if encoded, err := gotoon.Encode(in.Preferences, gotoon.WithSortedKeys(true)); err == nil {
				entries = append(entries, encoded)
			}
		}
	}

	if len(entries) == 0 {
		return "", 0
	}
	var sb strings.Builder
	sb.WriteString(sectionHeader(cat))
	sb.WriteString("\n")
	sb.WriteString(strings.Join(entries, "\n"))
	sb.WriteString("\n")
	return sb.String(), weight
}

func sectionHeader(cat intent.Category) string {
	return "## " + strings.ToUpper(strings.ReplaceAll(string(cat), "_", " "))
}

func entryLine(in model.Interaction) string {
	ts := ""
	if !in.Timestamp.IsZero() {
		ts = in.Timestamp.UTC().Format(time.RFC3339) + " "
	}
	return fmt.Sprintf("- %s[%s] %s", ts, in.Kind, clip(in.CombinedText()))
}

// clip bounds one entry at a rune boundary. Sections stay atomic; individual
// entries are shortened before they ever enter a section.
func clip(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= maxEntryChars {
		return text
	}
	runes := []rune(text)
	if len(runes) > maxEntryChars {
		runes = runes[:maxEntryChars]
	}
	return strings.TrimRight(string(runes), " ") + "…"
}

func matchesAny(in model.Interaction, labels ...string) bool {
	matched := topics.MatchLabels(in.CombinedText())
	for _, l := range labels {
		for _, m := range matched {
			if l == m {
				return true
			}
		}
	}
	return false
}

func newestFirst(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Interaction.Timestamp.Equal(out[j].Interaction.Timestamp) {
			return out[i].Interaction.Timestamp.After(out[j].Interaction.Timestamp)
		}
		return out[i].Interaction.ID > out[j].Interaction.ID
	})
	return out
}

func activeLabels(branches []model.TopicBranch) []string {
	var out []string
	for _, b := range branches {
		if b.IsActive {
			out = append(out, b.Label)
		}
	}
	return out
}

func renderPrompt(message string, sections []model.Section) string {
	var sb strings.Builder
	sb.WriteString("Use the context below to answer accurately.\n\n")
	if len(sections) == 0 {
		sb.WriteString("(No relevant context found)\n")
	} else {
		for _, sec := range sections {
			sb.WriteString(sec.RenderedText)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("User Query:\n")
	sb.WriteString(message)
	sb.WriteString("\n")
	return sb.String()
}
