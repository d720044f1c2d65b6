// Package intent inspects an incoming message and decides which categories
// of stored context the response will need. Classification is rule-based and
// total: every message maps to exactly one primary intent.
package intent

import (
	"sort"
	"strings"
	"unicode"
)

// Intent is a primary message intent from the closed set.
type Intent string

const (
	Troubleshooting Intent = "troubleshooting"
	Development     Intent = "development"
	Explanation     Intent = "explanation"
	Optimization    Intent = "optimization"
	General         Intent = "general"
)

// Urgency of the request implied by the message.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// Complexity is a rough effort estimate derived from message shape.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Category names the kinds of context the assembler can emit.
type Category string

const (
	CategoryRecentActions       Category = "recent_actions"
	CategoryTechStack           Category = "tech_stack"
	CategoryErrorContext        Category = "error_context"
	CategoryProjectStructure    Category = "project_structure"
	CategoryUserPreferences     Category = "user_preferences"
	CategoryConversationHistory Category = "conversation_history"
)

// Priority order for tie-breaking between equally matched families. A message
// that might need urgent help must not lose that treatment to an incidental
// keyword match from a lower family.
var priority = []Intent{Troubleshooting, Development, Explanation, Optimization}

var families = map[Intent][]string{
	Troubleshooting: {
		"error", "fail", "failing", "failed", "break", "broken", "fix",
		"crash", "bug", "issue", "problem", "debug", "troubleshoot",
	},
	Development: {
		"create", "build", "implement", "add", "write", "develop",
		"make", "generate", "setup", "scaffold",
	},
	Explanation: {
		"how", "what", "why", "explain", "describe", "understand",
		"meaning", "difference", "documentation",
	},
	Optimization: {
		"optimize", "improve", "faster", "slow", "performance",
		"refactor", "reduce", "cleanup", "efficient",
	},
}

// categories reproduces the fixed intent→category table. The vocabulary is
// closed and must stay byte-compatible with callers.
var categories = map[Intent][]Category{
	Troubleshooting: {CategoryErrorContext, CategoryRecentActions, CategoryTechStack},
	Development:     {CategoryProjectStructure, CategoryTechStack, CategoryRecentActions},
	Explanation:     {CategoryProjectStructure, CategoryTechStack, CategoryConversationHistory},
	Optimization:    {CategoryTechStack, CategoryRecentActions, CategoryProjectStructure},
	General:         {CategoryConversationHistory},
}

// Classification is the full result of inspecting one message.
type Classification struct {
	Primary    Intent     `json:"primary"`
	Secondary  []Intent   `json:"secondary,omitempty"`
	Categories []Category `json:"categories"`
	Urgency    Urgency    `json:"urgency"`
	Complexity Complexity `json:"complexity"`
	Keywords   []string   `json:"keywords,omitempty"`
}

// Classify determines the primary intent, the context categories it needs,
// and the urgency/complexity of the message. It never fails: unmatched
// messages get the general intent and a minimal category set.
func Classify(message string) Classification {
	tokens := tokenize(message)

	hits := map[Intent]int{}
	var matched []string
	seen := map[string]struct{}{}
	for fam, terms := range families {
		for _, term := range terms {
			n := tokens[term]
			if n == 0 {
				continue
			}
			hits[fam] += n
			if _, dup := seen[term]; !dup {
				seen[term] = struct{}{}
				matched = append(matched, term)
			}
		}
	}
	sort.Strings(matched)

	primary := General
	best := 0
	for _, fam := range priority {
		if hits[fam] > best {
			best = hits[fam]
			primary = fam
		}
	}

	var secondary []Intent
	for _, fam := range priority {
		if fam != primary && hits[fam] > 0 {
			secondary = append(secondary, fam)
		}
	}

	urgency := UrgencyNormal
	if primary == Troubleshooting {
		urgency = UrgencyHigh
	}

	return Classification{
		Primary:    primary,
		Secondary:  secondary,
		Categories: append([]Category(nil), categories[primary]...),
		Urgency:    urgency,
		Complexity: complexityOf(message),
		Keywords:   matched,
	}
}

// complexityOf estimates effort from message length and clause count.
func complexityOf(message string) Complexity {
	words := len(strings.Fields(message))
	clauses := 1 + strings.Count(message, ",") + strings.Count(message, " and ") + strings.Count(message, ";")
	switch {
	case words > 40 || clauses > 3:
		return ComplexityHigh
	case words > 12 || clauses > 1:
		return ComplexityMedium
	}
	return ComplexityLow
}

func tokenize(message string) map[string]int {
	counts := map[string]int{}
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		counts[f]++
	}
	return counts
}
