package registry

import (
	"errors"
	"sync"
	"testing"
)

func TestRegisterRejectsSecondRun(t *testing.T) {
	r := New()

	guard, err := r.Register("sess-a", "run-1")
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	defer guard.Release()

	_, err = r.Register("sess-a", "run-2")
	if err == nil {
		t.Fatal("second Register should fail while the first guard is held")
	}
	var are *AlreadyRunningError
	if !errors.As(err, &are) {
		t.Fatalf("error type = %T, want *AlreadyRunningError", err)
	}
	if are.SessionID != "sess-a" {
		t.Fatalf("SessionID = %q, want sess-a", are.SessionID)
	}

	// A different session is unaffected.
	other, err := r.Register("sess-b", "run-3")
	if err != nil {
		t.Fatalf("Register for other session: %v", err)
	}
	other.Release()
}

func TestReleaseFreesSlot(t *testing.T) {
	r := New()

	guard, err := r.Register("sess-a", "run-1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	guard.Release()
	guard.Release() // idempotent

	again, err := r.Register("sess-a", "run-2")
	if err != nil {
		t.Fatalf("Register after Release: %v", err)
	}
	if got := again.Descriptor().RunID; got != "run-2" {
		t.Fatalf("RunID = %q, want run-2", got)
	}
	again.Release()
}

func TestCancelSession(t *testing.T) {
	r := New()

	if _, ok := r.CancelSession("missing"); ok {
		t.Fatal("CancelSession on unknown session should report false")
	}

	guard, err := r.Register("sess-a", "run-1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer guard.Release()

	desc, ok := r.CancelSession("sess-a")
	if !ok {
		t.Fatal("CancelSession should find the active run")
	}
	if desc.SessionID != "sess-a" || desc.RunID != "run-1" {
		t.Fatalf("descriptor = %+v", desc)
	}
	if !guard.Token().Cancelled() {
		t.Fatal("token should be cancelled")
	}
	select {
	case <-guard.Token().Done():
	default:
		t.Fatal("Done channel should be closed")
	}

	// Entry stays registered until the guard releases it.
	if _, err := r.Register("sess-a", "run-2"); err == nil {
		t.Fatal("slot should still be held after cancellation")
	}
}

func TestCancelAll(t *testing.T) {
	r := New()

	g1, _ := r.Register("sess-a", "run-1")
	g2, _ := r.Register("sess-b", "run-2")
	defer g1.Release()
	defer g2.Release()

	descs := r.CancelAll()
	if len(descs) != 2 {
		t.Fatalf("CancelAll returned %d descriptors, want 2", len(descs))
	}
	if descs[0].SessionID != "sess-a" || descs[1].SessionID != "sess-b" {
		t.Fatalf("descriptors not sorted by session: %+v", descs)
	}
	if !g1.Token().Cancelled() || !g2.Token().Cancelled() {
		t.Fatal("all tokens should be cancelled")
	}

	if got := r.CancelAll(); len(got) != 2 {
		t.Fatalf("repeat CancelAll should still see held entries, got %d", len(got))
	}
}

func TestActive(t *testing.T) {
	r := New()
	if got := r.Active(); len(got) != 0 {
		t.Fatalf("empty registry Active() = %+v", got)
	}

	g, _ := r.Register("sess-a", "run-1")
	active := r.Active()
	if len(active) != 1 || active[0].RunID != "run-1" {
		t.Fatalf("Active() = %+v", active)
	}
	g.Release()
	if got := r.Active(); len(got) != 0 {
		t.Fatalf("Active() after release = %+v", got)
	}
}

func TestRegisterRace(t *testing.T) {
	r := New()

	const workers = 32
	var wg sync.WaitGroup
	guards := make([]*RunGuard, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			guards[i], errs[i] = r.Register("sess-a", "run-x")
		}(i)
	}
	wg.Wait()

	won := 0
	for i := 0; i < workers; i++ {
		if errs[i] == nil {
			won++
			guards[i].Release()
		} else {
			var are *AlreadyRunningError
			if !errors.As(errs[i], &are) {
				t.Fatalf("loser %d got %T, want *AlreadyRunningError", i, errs[i])
			}
		}
	}
	if won != 1 {
		t.Fatalf("exactly one registration should win, got %d", won)
	}
}

func TestTokenCancelIdempotent(t *testing.T) {
	r := New()
	g, _ := r.Register("sess-a", "run-1")
	defer g.Release()

	tok := g.Token()
	tok.Cancel()
	tok.Cancel()
	if !tok.Cancelled() {
		t.Fatal("token should stay cancelled")
	}
}
