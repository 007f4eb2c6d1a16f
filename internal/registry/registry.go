// Package registry enforces the one-active-run-per-session invariant and
// hands out cooperative cancellation tokens for fan-out rounds.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// RunDescriptor identifies one active fan-out round.
type RunDescriptor struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
}

// Token is the cancellation handle shared by every agent task under a run.
// Signalling it is cooperative: tasks poll it at safe points (before creating
// a worktree, before starting a subprocess). It never hard-kills an in-flight
// worker; killing mid-commit could corrupt a worktree's git state.
type Token struct {
	once sync.Once
	done chan struct{}
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel signals the token. Safe to call any number of times.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Done returns a channel that is closed once the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether the token has been signalled.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// AlreadyRunningError is returned by Register when the session already has
// an active run.
type AlreadyRunningError struct {
	SessionID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("a run is already in progress for session %s", e.SessionID)
}

type entry struct {
	runID string
	token *Token
}

// Registry is the table of active runs, at most one per session id. Each
// orchestrator owns its own instance, so tests get independent registries.
// The mutex is held only across table mutation, never across agent work.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{runs: make(map[string]*entry)}
}

// Register atomically claims the session slot and installs a fresh
// cancellation token. It fails with *AlreadyRunningError when an entry for
// sessionID exists, leaving the table untouched.
func (r *Registry) Register(sessionID, runID string) (*RunGuard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[sessionID]; exists {
		return nil, &AlreadyRunningError{SessionID: sessionID}
	}

	tok := newToken()
	r.runs[sessionID] = &entry{runID: runID, token: tok}

	return &RunGuard{
		registry:   r,
		descriptor: RunDescriptor{SessionID: sessionID, RunID: runID},
		token:      tok,
	}, nil
}

// CancelSession signals the token of the session's active run, if any, and
// reports what was cancelled. The entry stays registered until its guard is
// released; only the owning run removes it.
func (r *Registry) CancelSession(sessionID string) (RunDescriptor, bool) {
	r.mu.Lock()
	e, ok := r.runs[sessionID]
	var desc RunDescriptor
	if ok {
		desc = RunDescriptor{SessionID: sessionID, RunID: e.runID}
	}
	r.mu.Unlock()

	if !ok {
		return RunDescriptor{}, false
	}
	e.token.Cancel()
	return desc, true
}

// CancelAll snapshots every active run, signals each token, and returns the
// descriptors, sorted by session id. Used for global interrupt and shutdown.
func (r *Registry) CancelAll() []RunDescriptor {
	r.mu.Lock()
	descs := make([]RunDescriptor, 0, len(r.runs))
	tokens := make([]*Token, 0, len(r.runs))
	for sid, e := range r.runs {
		descs = append(descs, RunDescriptor{SessionID: sid, RunID: e.runID})
		tokens = append(tokens, e.token)
	}
	r.mu.Unlock()

	for _, t := range tokens {
		t.Cancel()
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].SessionID < descs[j].SessionID })
	return descs
}

// Active returns the descriptors of currently registered runs, sorted by
// session id.
func (r *Registry) Active() []RunDescriptor {
	r.mu.Lock()
	descs := make([]RunDescriptor, 0, len(r.runs))
	for sid, e := range r.runs {
		descs = append(descs, RunDescriptor{SessionID: sid, RunID: e.runID})
	}
	r.mu.Unlock()

	sort.Slice(descs, func(i, j int) bool { return descs[i].SessionID < descs[j].SessionID })
	return descs
}

// RunGuard is the owning handle for a registered run. Releasing it frees the
// session slot; callers defer Release so the slot is freed on every exit
// path (success, error, cancellation, panic).
type RunGuard struct {
	registry   *Registry
	descriptor RunDescriptor
	token      *Token
	once       sync.Once
}

// Descriptor returns the run's identity.
func (g *RunGuard) Descriptor() RunDescriptor {
	return g.descriptor
}

// Token returns the run's shared cancellation token.
func (g *RunGuard) Token() *Token {
	return g.token
}

// Release removes the run's entry from the registry. Idempotent.
func (g *RunGuard) Release() {
	g.once.Do(func() {
		g.registry.mu.Lock()
		delete(g.registry.runs, g.descriptor.SessionID)
		g.registry.mu.Unlock()
	})
}
