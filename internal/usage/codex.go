package usage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNoUsage means a rollout held no token count events at all.
var ErrNoUsage = errors.New("no token usage events in rollout")

const (
	// Rollout lines carry whole prompts; they get big.
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 8 * 1024 * 1024
)

// CodexProvider reads the codex CLI's session rollout files: JSON lines
// where token counts arrive as event_msg/token_count entries carrying a
// cumulative total_token_usage. The last entry wins.
type CodexProvider struct{}

// NewCodexProvider returns the codex rollout parser.
func NewCodexProvider() *CodexProvider {
	return &CodexProvider{}
}

// Name implements Provider.
func (p *CodexProvider) Name() string { return "codex" }

type codexTokenUsage struct {
	InputTokens           int64 `json:"input_tokens"`
	CachedInputTokens     int64 `json:"cached_input_tokens"`
	OutputTokens          int64 `json:"output_tokens"`
	ReasoningOutputTokens int64 `json:"reasoning_output_tokens"`
	TotalTokens           int64 `json:"total_tokens"`
}

type codexRolloutLine struct {
	Type    string `json:"type"`
	Payload struct {
		Type string `json:"type"`
		Info *struct {
			TotalTokenUsage *codexTokenUsage `json:"total_token_usage"`
		} `json:"info"`
	} `json:"payload"`
}

// ParseRollout implements Provider. Lines that are not token count events,
// or that do not parse at all, are skipped; rollouts mix many event kinds
// and the format is not ours to police.
func (p *CodexProvider) ParseRollout(r io.Reader) (Totals, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scannerInitialBuffer), scannerMaxBuffer)

	var (
		last  Totals
		found bool
	)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry codexRolloutLine
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Type != "event_msg" || entry.Payload.Type != "token_count" {
			continue
		}
		if entry.Payload.Info == nil || entry.Payload.Info.TotalTokenUsage == nil {
			continue
		}
		u := entry.Payload.Info.TotalTokenUsage
		last = Totals{
			InputTokens:  u.InputTokens,
			CachedTokens: u.CachedInputTokens,
			OutputTokens: u.OutputTokens,
			TotalTokens:  u.TotalTokens,
		}
		found = true
	}
	if err := scanner.Err(); err != nil {
		return Totals{}, fmt.Errorf("reading rollout: %w", err)
	}
	if !found {
		return Totals{}, ErrNoUsage
	}
	return last, nil
}
