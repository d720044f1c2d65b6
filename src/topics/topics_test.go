package topics

import (
	"testing"
	"time"

	"github.com/Protocol-Lattice/go-context/src/model"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestBuild_GroupsByVocabulary(t *testing.T) {
	interactions := []model.Interaction{
		{ID: 1, Timestamp: now.Add(-30 * time.Minute), TextIn: "deploy the service to staging"},
		{ID: 2, Timestamp: now.Add(-20 * time.Minute), TextIn: "the rollout to production failed"},
		{ID: 3, Timestamp: now.Add(-10 * time.Minute), TextIn: "write unit tests for the parser"},
	}
	branches := Build(interactions, now, Options{})

	byLabel := map[string]model.TopicBranch{}
	for _, b := range branches {
		byLabel[b.Label] = b
	}

	dep, ok := byLabel["deployment"]
	if !ok {
		t.Fatal("expected a deployment branch")
	}
	if len(dep.MemberIDs) != 2 {
		t.Errorf("expected 2 deployment members, got %v", dep.MemberIDs)
	}
	if !dep.LastMemberAt.Equal(now.Add(-20 * time.Minute)) {
		t.Errorf("wrong last member time: %v", dep.LastMemberAt)
	}
	if _, ok := byLabel["testing"]; !ok {
		t.Error("expected a testing branch")
	}
}

func TestBuild_MultiMembership(t *testing.T) {
	interactions := []model.Interaction{
		{ID: 7, Timestamp: now.Add(-time.Hour), TextIn: "fix the error in the deployment pipeline"},
	}
	branches := Build(interactions, now, Options{})

	labels := map[string]bool{}
	for _, b := range branches {
		for _, id := range b.MemberIDs {
			if id == 7 {
				labels[b.Label] = true
			}
		}
	}
	if !labels["debugging"] || !labels["deployment"] {
		t.Errorf("expected membership in debugging and deployment, got %v", labels)
	}
}

func TestBuild_UncategorizedFallback(t *testing.T) {
	interactions := []model.Interaction{
		{ID: 1, Timestamp: now.Add(-time.Hour), TextIn: "good morning everyone"},
	}
	branches := Build(interactions, now, Options{})
	if len(branches) != 1 || branches[0].Label != Uncategorized {
		t.Fatalf("expected a single uncategorized branch, got %+v", branches)
	}
}

func TestBuild_OrderingAndActive(t *testing.T) {
	// Three deployment turns outweigh the single recent testing ping; the
	// stale branch stays active only through the top-k rule.
	interactions := []model.Interaction{
		{ID: 1, Timestamp: now.Add(-40 * time.Hour), TextIn: "deploy to docker"},
		{ID: 2, Timestamp: now.Add(-41 * time.Hour), TextIn: "kubernetes rollout notes"},
		{ID: 3, Timestamp: now.Add(-42 * time.Hour), TextIn: "staging release checklist"},
		{ID: 4, Timestamp: now.Add(-5 * time.Minute), TextIn: "run the tests"},
	}
	branches := Build(interactions, now, Options{TopK: 1})

	if branches[0].Label != "deployment" {
		t.Fatalf("expected deployment first, got %q", branches[0].Label)
	}
	if !branches[0].IsActive {
		t.Error("top branch must be active even when stale")
	}
	for _, b := range branches {
		if b.Label == "testing" && !b.IsActive {
			t.Error("branch with a member inside the window must be active")
		}
	}
}

func TestBuild_RecentClusterLeads(t *testing.T) {
	// A week of scattered chatter plus a burst of deployment turns inside
	// the last hour: the deployment branch is active and ranked first.
	var interactions []model.Interaction
	for i := 0; i < 35; i++ {
		interactions = append(interactions, model.Interaction{
			ID:        int64(i + 1),
			Timestamp: now.Add(-time.Duration(i+30) * time.Hour),
			TextIn:    "misc note with no topic words",
		})
	}
	for i := 0; i < 10; i++ {
		interactions = append(interactions, model.Interaction{
			ID:        int64(100 + i),
			Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
			Kind:      model.KindConversationTurn,
			TextIn:    "the kubernetes deployment to production keeps restarting after the rollout, the container exits immediately and the pipeline marks the release as unstable before traffic ever shifts over to the new replica set in the staging namespace too",
			Status:    model.StatusSuccess,
		})
	}

	branches := Build(interactions, now, Options{})
	if branches[0].Label != "deployment" {
		t.Fatalf("expected deployment branch first, got %q", branches[0].Label)
	}
	if !branches[0].IsActive {
		t.Error("deployment branch must be active")
	}
	if len(branches[0].MemberIDs) != 10 {
		t.Errorf("expected 10 members, got %d", len(branches[0].MemberIDs))
	}
}

func TestBuild_Deterministic(t *testing.T) {
	interactions := []model.Interaction{
		{ID: 1, Timestamp: now.Add(-time.Hour), TextIn: "deploy the api"},
		{ID: 2, Timestamp: now.Add(-time.Hour), TextIn: "refactor the api module"},
		{ID: 3, Timestamp: now.Add(-time.Hour), TextIn: "debug the api error"},
	}
	first := Build(interactions, now, Options{})
	for i := 0; i < 10; i++ {
		again := Build(interactions, now, Options{})
		if len(again) != len(first) {
			t.Fatalf("branch count changed between runs: %d vs %d", len(again), len(first))
		}
		for j := range first {
			if again[j].Label != first[j].Label {
				t.Fatalf("branch order changed between runs at %d: %q vs %q", j, again[j].Label, first[j].Label)
			}
		}
	}
}

func TestKeywords_FirstSeenOrder(t *testing.T) {
	got := Keywords("Deploy the Docker container, then deploy again")
	want := []string{"deploy", "docker", "container"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestMatchLabels(t *testing.T) {
	got := MatchLabels("fix the failing deployment")
	want := []string{"debugging", "deployment"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
