package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agusx1211/swarmix/internal/store"
)

const (
	timeFormat   = time.RFC3339
	timeRounding = time.Second
)

// resolveRepoRoot finds the git repository the command should operate on:
// SWARMIX_REPO_DIR when set, otherwise the nearest ancestor of the working
// directory containing .git. Worktrees keep .git as a file, so any entry
// counts.
func resolveRepoRoot() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("SWARMIX_REPO_DIR")); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolving SWARMIX_REPO_DIR: %w", err)
		}
		return abs, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return findRepoRoot(dir)
}

func findRepoRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not inside a git repository (set SWARMIX_REPO_DIR to point at one)")
		}
		dir = parent
	}
}

// openStore creates a Store rooted at the repository.
func openStore(repoRoot string) (*store.Store, error) {
	return store.New(repoRoot)
}

// openRepoStore resolves the repository and its store in one step. Most
// commands start here.
func openRepoStore() (string, *store.Store, error) {
	repoRoot, err := resolveRepoRoot()
	if err != nil {
		return "", nil, err
	}
	s, err := openStore(repoRoot)
	if err != nil {
		return "", nil, err
	}
	return repoRoot, s, nil
}

// printHeader prints a formatted section header.
func printHeader(title string) {
	fmt.Printf("\n%s%s%s\n", ansiBoldCyan, title, ansiReset)
	fmt.Println(ansiDim + strings.Repeat("-", len(title)+2) + ansiReset)
}

// printField prints a labeled field.
func printField(label, value string) {
	fmt.Printf("  %s%-16s%s %s\n", ansiBold, label+":", ansiReset, value)
}

// roundBadge colors a recorded round by how it went.
func roundBadge(rec *store.RoundRecord) string {
	switch {
	case rec.Cancelled:
		return ansiYellow + "[cancelled]" + ansiReset
	case len(rec.Failures) > 0 && len(rec.Agents) == 0:
		return ansiRed + "[failed]" + ansiReset
	case len(rec.Failures) > 0:
		return ansiYellow + "[partial]" + ansiReset
	default:
		return ansiGreen + "[ok]" + ansiReset
	}
}

// printRecentRounds prints up to limit rounds, newest first.
func printRecentRounds(s *store.Store, limit int) error {
	rounds, err := s.ListRounds()
	if err != nil {
		return err
	}
	if len(rounds) == 0 {
		fmt.Println(ansiDim + "  No rounds recorded yet. Start one with 'swarmix run'." + ansiReset)
		return nil
	}

	printHeader("Recent Rounds")
	shown := 0
	for i := len(rounds) - 1; i >= 0 && shown < limit; i-- {
		rec := rounds[i]
		fmt.Printf("  %s%s%s  %s  %d agents  %s  %s\n",
			ansiBold, rec.RunID, ansiReset,
			roundBadge(&rec),
			len(rec.Agents)+len(rec.Failures)+len(rec.Skipped),
			timeAgo(rec.FinishedAt),
			ansiDim+truncate(firstLine(rec.Task), 48)+ansiReset,
		)
		shown++
	}
	fmt.Println()
	return nil
}

// timeAgo renders a timestamp as a coarse relative age.
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncate truncates a string to a given max length, adding "..." if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// firstLine returns the first line of a multi-line string.
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// shortHash trims a commit hash for display.
func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	if hash == "" {
		return "-"
	}
	return hash
}
