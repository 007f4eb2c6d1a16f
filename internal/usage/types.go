// Package usage reads token consumption out of worker session rollouts.
// Rollouts belong to the worker CLI; swarmix only records their paths, so
// everything here is best-effort over files another program owns.
package usage

// Totals is a cumulative token usage snapshot for one session.
type Totals struct {
	InputTokens  int64 `json:"input_tokens"`
	CachedTokens int64 `json:"cached_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Add accumulates another snapshot into t.
func (t *Totals) Add(o Totals) {
	t.InputTokens += o.InputTokens
	t.CachedTokens += o.CachedTokens
	t.OutputTokens += o.OutputTokens
	t.TotalTokens += o.TotalTokens
}

// IsZero reports whether no tokens were counted.
func (t Totals) IsZero() bool {
	return t.InputTokens == 0 && t.CachedTokens == 0 && t.OutputTokens == 0 && t.TotalTokens == 0
}

// AgentUsage is one agent's usage, or the reason it is unknown.
type AgentUsage struct {
	AgentID     string `json:"agent_id"`
	SessionID   string `json:"session_id,omitempty"`
	RolloutPath string `json:"rollout_path,omitempty"`
	Totals      Totals `json:"totals"`
	Err         string `json:"error,omitempty"`
}

// RoundUsage aggregates usage across a recorded round. Totals sums only the
// agents whose rollouts could be read.
type RoundUsage struct {
	RecordID string       `json:"record_id"`
	RunID    string       `json:"run_id"`
	Agents   []AgentUsage `json:"agents"`
	Totals   Totals       `json:"totals"`
}
