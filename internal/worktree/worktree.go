// Package worktree manages the per-agent git worktrees of one fan-out run.
//
// Every agent works on its own branch in its own directory under
// .swarmix/worktrees/<runID>/, all rooted at the commit the repository was
// on when the run started. Nothing here ever touches the user's checked-out
// branch.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agusx1211/swarmix/internal/debug"
)

const worktreesDir = ".swarmix/worktrees"

// Manager creates and commits agent worktrees for a single run.
type Manager struct {
	repoRoot    string
	runID       string
	root        string // <repoRoot>/.swarmix/worktrees/<runID>
	startHead   string // commit all agent branches fork from
	authorName  string
	authorEmail string
}

// NewManager opens the repository at repoPath and prepares the worktrees
// root for runID. It fails when repoPath is not inside a git repository or
// when the repository has no commits yet.
func NewManager(ctx context.Context, repoPath, runID string) (*Manager, error) {
	m := &Manager{
		repoRoot:    repoPath,
		runID:       runID,
		authorName:  "Swarmix",
		authorEmail: "swarmix@localhost",
	}

	top, err := m.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", repoPath, err)
	}
	m.repoRoot = strings.TrimSpace(top)

	head, err := m.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	m.startHead = strings.TrimSpace(head)

	m.root = filepath.Join(m.repoRoot, worktreesDir, runID)
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("creating worktrees root: %w", err)
	}

	debug.LogKV("worktree", "manager ready", "run_id", runID, "root", m.root, "head", m.startHead)
	return m, nil
}

// SetCommitIdentity overrides the author identity used for round commits.
func (m *Manager) SetCommitIdentity(name, email string) {
	if strings.TrimSpace(name) != "" {
		m.authorName = name
	}
	if strings.TrimSpace(email) != "" {
		m.authorEmail = email
	}
}

// RepoRoot returns the resolved repository top-level directory.
func (m *Manager) RepoRoot() string {
	return m.repoRoot
}

// Root returns the run's worktrees directory.
func (m *Manager) Root() string {
	return m.root
}

// StartHead returns the commit all agent branches fork from.
func (m *Manager) StartHead() string {
	return m.startHead
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

// BranchName builds the branch name for one agent of one run.
func BranchName(runID, agentID string) string {
	return fmt.Sprintf("round1-%s-agent-%s", sanitize(runID), sanitize(agentID))
}

// PathFor returns where one agent's worktree lives under repoRoot. It does
// not check that the worktree exists.
func PathFor(repoRoot, runID, agentID string) string {
	return filepath.Join(repoRoot, worktreesDir, sanitize(runID), "agent-"+sanitize(agentID))
}

// AgentWorktree is one agent's isolated checkout.
type AgentWorktree struct {
	Path    string
	Branch  string
	AgentID string

	m *Manager
}

// Create makes a fresh worktree for agentID on a new branch forked from the
// run's starting head. A leftover directory from an interrupted earlier run
// is removed first, so Create always hands back a clean checkout.
func (m *Manager) Create(ctx context.Context, agentID string) (*AgentWorktree, error) {
	branch := BranchName(m.runID, agentID)
	path := filepath.Join(m.root, "agent-"+sanitize(agentID))

	debug.LogKV("worktree", "Create()", "agent_id", agentID, "branch", branch, "path", path)

	if _, err := os.Stat(path); err == nil {
		if err := m.remove(ctx, path); err != nil {
			return nil, fmt.Errorf("removing stale worktree %s: %w", path, err)
		}
		// The stale branch from the interrupted run would make the add fail.
		m.git(ctx, "branch", "-D", branch)
	}

	if _, err := m.git(ctx, "worktree", "add", "-b", branch, path, m.startHead); err != nil {
		return nil, fmt.Errorf("creating worktree for agent %s: %w", agentID, err)
	}

	debug.LogKV("worktree", "created", "agent_id", agentID, "branch", branch, "path", path)
	return &AgentWorktree{Path: path, Branch: branch, AgentID: agentID, m: m}, nil
}

// remove tears down a worktree directory, falling back to plain removal
// when git no longer knows about it.
func (m *Manager) remove(ctx context.Context, path string) error {
	if _, err := m.git(ctx, "worktree", "remove", "--force", path); err != nil {
		if removeErr := os.RemoveAll(path); removeErr != nil {
			m.git(ctx, "worktree", "prune")
			return fmt.Errorf("worktree remove failed (%w) and manual cleanup also failed: %v", err, removeErr)
		}
	}
	m.git(ctx, "worktree", "prune")
	return nil
}

// AutoCommit stages everything in the worktree and commits it onto the
// agent's branch. When the staged tree is identical to the fork point's
// tree it commits nothing and returns the existing head, so calling it on
// an untouched worktree is a no-op. The returned hash is always the commit
// that represents the agent's final state.
func (w *AgentWorktree) AutoCommit(ctx context.Context) (string, error) {
	m := w.m

	if _, err := m.git(ctx, "-C", w.Path, "add", "-A"); err != nil {
		return "", fmt.Errorf("staging agent %s changes: %w", w.AgentID, err)
	}

	treeHash, err := m.git(ctx, "-C", w.Path, "write-tree")
	if err != nil {
		return "", fmt.Errorf("writing tree for agent %s: %w", w.AgentID, err)
	}
	headTree, err := m.git(ctx, "-C", w.Path, "rev-parse", "HEAD^{tree}")
	if err != nil {
		return "", fmt.Errorf("resolving head tree for agent %s: %w", w.AgentID, err)
	}

	if strings.TrimSpace(treeHash) == strings.TrimSpace(headTree) {
		debug.LogKV("worktree", "no changes to commit", "agent_id", w.AgentID)
		head, err := m.git(ctx, "-C", w.Path, "rev-parse", "HEAD")
		if err != nil {
			return "", fmt.Errorf("resolving head for agent %s: %w", w.AgentID, err)
		}
		return strings.TrimSpace(head), nil
	}

	commitArgs := []string{
		"-C", w.Path,
		"-c", "user.name=" + m.authorName,
		"-c", "user.email=" + m.authorEmail,
		"commit", "-m", fmt.Sprintf("Round 1 - Agent %s", w.AgentID),
	}
	if _, err := m.git(ctx, commitArgs...); err != nil {
		return "", fmt.Errorf("committing agent %s changes: %w", w.AgentID, err)
	}

	hash, err := m.git(ctx, "-C", w.Path, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving commit for agent %s: %w", w.AgentID, err)
	}

	debug.LogKV("worktree", "committed", "agent_id", w.AgentID, "commit", strings.TrimSpace(hash))
	return strings.TrimSpace(hash), nil
}

// git runs a git command in the repo root and returns combined output.
func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		debug.LogKV("worktree", "git exec failed", "cmd", "git "+strings.Join(args, " "), "error", err, "output_len", len(out))
		return string(out), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), string(out), err)
	}
	return string(out), nil
}
