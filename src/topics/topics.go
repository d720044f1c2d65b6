// Package topics groups recent interactions into labeled branches using the
// closed topic vocabulary, and marks which branches are active. Builders are
// pure per call; branches are recomputed from scratch over a bounded window
// rather than maintained incrementally.
package topics

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/Protocol-Lattice/go-context/src/model"
	"github.com/Protocol-Lattice/go-context/src/score"
)

// Options configures branch construction.
type Options struct {
	// ActiveWindow marks a branch active when any member falls inside it.
	ActiveWindow time.Duration
	// TopK branches by aggregate relevance are active regardless of age,
	// so a branch of many older related turns is not starved by a single
	// recent unrelated ping.
	TopK int
}

// DefaultOptions returns the recommended builder defaults.
func DefaultOptions() Options {
	return Options{ActiveWindow: 24 * time.Hour, TopK: 3}
}

func (o Options) withDefaults() Options {
	if o.ActiveWindow == 0 {
		o.ActiveWindow = 24 * time.Hour
	}
	if o.TopK == 0 {
		o.TopK = 3
	}
	return o
}

var sortedLabels = func() []string {
	labels := make([]string, 0, len(vocabulary))
	for label := range vocabulary {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}()

// Build groups the given window of interactions into topic branches.
// Output ordering is deterministic: aggregate relevance descending, then
// most-recent-member descending, then label ascending.
func Build(interactions []model.Interaction, now time.Time, opts Options) []model.TopicBranch {
	opts = opts.withDefaults()

	type agg struct {
		members []int64
		total   float64
		latest  time.Time
	}
	branches := map[string]*agg{}

	assign := func(label string, in model.Interaction, weight float64) {
		b := branches[label]
		if b == nil {
			b = &agg{}
			branches[label] = b
		}
		b.members = append(b.members, in.ID)
		b.total += weight
		if in.Timestamp.After(b.latest) {
			b.latest = in.Timestamp
		}
	}

	for _, in := range interactions {
		weight := score.Score(in, now)
		tokens := tokenSet(in.CombinedText())
		matched := false
		for _, label := range sortedLabels {
			if overlaps(tokens, vocabulary[label]) {
				assign(label, in, weight)
				matched = true
			}
		}
		if !matched {
			assign(Uncategorized, in, weight)
		}
	}

	out := make([]model.TopicBranch, 0, len(branches))
	for label, b := range branches {
		out = append(out, model.TopicBranch{
			Label:        label,
			MemberIDs:    b.members,
			Score:        b.total,
			LastMemberAt: b.latest,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].LastMemberAt.Equal(out[j].LastMemberAt) {
			return out[i].LastMemberAt.After(out[j].LastMemberAt)
		}
		return out[i].Label < out[j].Label
	})

	for i := range out {
		recent := !out[i].LastMemberAt.IsZero() && now.Sub(out[i].LastMemberAt) < opts.ActiveWindow
		out[i].IsActive = recent || i < opts.TopK
	}
	return out
}

// Keywords returns the vocabulary terms present in text, in first-seen order.
// Used for payload metadata and for matching a message against branches.
func Keywords(text string) []string {
	tokens := tokenList(text)
	seen := map[string]struct{}{}
	var out []string
	known := map[string]struct{}{}
	for _, terms := range vocabulary {
		for _, term := range terms {
			known[term] = struct{}{}
		}
	}
	for _, tok := range tokens {
		if _, ok := known[tok]; !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// MatchLabels returns the vocabulary labels whose keyword overlap with text
// is at least one term, in lexical order.
func MatchLabels(text string) []string {
	tokens := tokenSet(text)
	var out []string
	for _, label := range sortedLabels {
		if overlaps(tokens, vocabulary[label]) {
			out = append(out, label)
		}
	}
	return out
}

func overlaps(tokens map[string]struct{}, terms []string) bool {
	for _, term := range terms {
		if _, ok := tokens[term]; ok {
			return true
		}
	}
	return false
}

func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range tokenList(text) {
		set[tok] = struct{}{}
	}
	return set
}

func tokenList(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
