package score

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Protocol-Lattice/go-context/src/model"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func almost(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestScore_RecencyBuckets(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{5 * time.Minute, 1.8},
		{time.Hour, 1.8}, // boundary belongs to the more recent bucket
		{3 * time.Hour, 1.5},
		{6 * time.Hour, 1.5},
		{12 * time.Hour, 1.2},
		{24 * time.Hour, 1.2},
		{48 * time.Hour, 1.0},
	}
	for _, tc := range cases {
		in := model.Interaction{Timestamp: now.Add(-tc.age)}
		b := Detailed(in, now)
		if b.Recency != tc.want {
			t.Errorf("age %v: expected recency %v, got %v", tc.age, tc.want, b.Recency)
		}
		if b.BadTimestamp {
			t.Errorf("age %v: unexpected bad timestamp", tc.age)
		}
	}
}

func TestScore_BadTimestamp(t *testing.T) {
	for name, in := range map[string]model.Interaction{
		"zero":   {},
		"future": {Timestamp: now.Add(time.Minute)},
	} {
		b := Detailed(in, now)
		if !b.BadTimestamp {
			t.Errorf("%s: expected bad timestamp flag", name)
		}
		if b.Recency != 1.0 {
			t.Errorf("%s: expected neutral recency, got %v", name, b.Recency)
		}
	}
}

func TestScore_KindWeights(t *testing.T) {
	cases := map[model.Kind]float64{
		model.KindConversationTurn: 1.5,
		model.KindClientRequest:    1.3,
		model.KindAgentResponse:    1.2,
		model.KindHealthCheck:      1.0,
	}
	for kind, want := range cases {
		in := model.Interaction{Timestamp: now.Add(-48 * time.Hour), Kind: kind}
		if b := Detailed(in, now); b.Kind != want {
			t.Errorf("kind %s: expected %v, got %v", kind, want, b.Kind)
		}
	}
}

func TestScore_LengthBucketsExclusive(t *testing.T) {
	cases := []struct {
		chars int
		want  float64
	}{
		{50, 1.0},
		{100, 1.0},
		{101, 1.2},
		{200, 1.2},
		{201, 1.3},
	}
	for _, tc := range cases {
		in := model.Interaction{
			Timestamp: now.Add(-48 * time.Hour),
			TextIn:    strings.Repeat("x", tc.chars),
		}
		if b := Detailed(in, now); b.Length != tc.want {
			t.Errorf("%d chars: expected %v, got %v", tc.chars, tc.want, b.Length)
		}
	}
}

func TestScore_AllFactorsMultiply(t *testing.T) {
	in := model.Interaction{
		Timestamp: now.Add(-30 * time.Minute),
		Kind:      model.KindConversationTurn,
		TextIn:    strings.Repeat("a", 250),
		Status:    model.StatusSuccess,
	}
	almost(t, Score(in, now), 1.8*1.5*1.3*1.1)
}

func TestScore_MonotonicInRecency(t *testing.T) {
	base := model.Interaction{Kind: model.KindClientRequest, TextIn: "hello"}
	prev := math.Inf(1)
	for _, age := range []time.Duration{time.Minute, 2 * time.Hour, 10 * time.Hour, 30 * time.Hour} {
		in := base
		in.Timestamp = now.Add(-age)
		s := Score(in, now)
		if s > prev {
			t.Errorf("score increased with age %v: %v > %v", age, s, prev)
		}
		prev = s
	}
}
