package usage

import (
	"io"
	"os"

	"github.com/agusx1211/swarmix/internal/store"
)

// Provider parses one worker CLI's rollout format into totals.
type Provider interface {
	Name() string
	ParseRollout(r io.Reader) (Totals, error)
}

// DefaultProvider returns the parser for the standard worker CLI.
func DefaultProvider() Provider {
	return NewCodexProvider()
}

// CollectRound gathers usage for every successful agent in a recorded
// round. Unreadable rollouts become per-agent errors, never a failure of
// the whole collection.
func CollectRound(p Provider, rec *store.RoundRecord) *RoundUsage {
	ru := &RoundUsage{RecordID: rec.RecordID, RunID: rec.RunID}
	for _, a := range rec.Agents {
		au := AgentUsage{
			AgentID:     a.AgentID,
			SessionID:   a.SessionID,
			RolloutPath: a.RolloutPath,
		}
		au.Totals, au.Err = readRollout(p, a.RolloutPath)
		if au.Err == "" {
			ru.Totals.Add(au.Totals)
		}
		ru.Agents = append(ru.Agents, au)
	}
	return ru
}

func readRollout(p Provider, path string) (Totals, string) {
	if path == "" {
		return Totals{}, "no rollout path recorded"
	}
	f, err := os.Open(path)
	if err != nil {
		return Totals{}, err.Error()
	}
	defer f.Close()

	totals, err := p.ParseRollout(f)
	if err != nil {
		return Totals{}, err.Error()
	}
	return totals, ""
}
