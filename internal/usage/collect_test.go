package usage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agusx1211/swarmix/internal/store"
)

func writeRollout(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCollectRound(t *testing.T) {
	dir := t.TempDir()

	good := writeRollout(t, dir, "good.jsonl",
		`{"type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":100,"cached_input_tokens":10,"output_tokens":50,"total_tokens":150}}}}`+"\n")
	empty := writeRollout(t, dir, "empty.jsonl", "")

	rec := &store.RoundRecord{
		RecordID: "rec-1",
		RunID:    "run-1",
		Agents: []store.AgentOutcome{
			{AgentID: "01", SessionID: "sess-01", RolloutPath: good},
			{AgentID: "02", SessionID: "sess-02", RolloutPath: filepath.Join(dir, "missing.jsonl")},
			{AgentID: "03", SessionID: "sess-03", RolloutPath: empty},
			{AgentID: "04", SessionID: "sess-04"},
		},
	}

	ru := CollectRound(DefaultProvider(), rec)

	if ru.RecordID != "rec-1" || ru.RunID != "run-1" {
		t.Errorf("ids = %q/%q", ru.RecordID, ru.RunID)
	}
	if len(ru.Agents) != 4 {
		t.Fatalf("agents = %d", len(ru.Agents))
	}

	if ru.Agents[0].Err != "" || ru.Agents[0].Totals.TotalTokens != 150 {
		t.Errorf("agent 01 = %+v", ru.Agents[0])
	}
	if ru.Agents[1].Err == "" {
		t.Error("agent 02 with missing rollout has no error")
	}
	if ru.Agents[2].Err == "" {
		t.Error("agent 03 with empty rollout has no error")
	}
	if ru.Agents[3].Err != "no rollout path recorded" {
		t.Errorf("agent 04 err = %q", ru.Agents[3].Err)
	}

	// Aggregate counts only the readable rollout.
	want := Totals{InputTokens: 100, CachedTokens: 10, OutputTokens: 50, TotalTokens: 150}
	if ru.Totals != want {
		t.Errorf("totals = %+v, want %+v", ru.Totals, want)
	}
}

func TestCollectRoundNoAgents(t *testing.T) {
	ru := CollectRound(DefaultProvider(), &store.RoundRecord{RecordID: "rec-2", RunID: "run-2"})
	if len(ru.Agents) != 0 || !ru.Totals.IsZero() {
		t.Errorf("usage = %+v", ru)
	}
}
