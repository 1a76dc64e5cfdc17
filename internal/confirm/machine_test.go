package confirm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"resetctl/internal/scope"
)

func testMachine(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine(NewMemorySessionStore(), NewMemoryTokenStore(), 10*time.Minute, 3*time.Second, time.Minute, zap.NewNop().Sugar())
	m.sleep = func(time.Duration) {} // settle delay elided; timed behavior tested separately
	return m
}

func testScope() scope.Descriptor {
	return scope.Descriptor{TenantID: "T1", Level: scope.LevelResourceGroup, ResourceGroups: []string{"rg-A"}, SubscriptionID: "sub-1"}
}

func mustStart(t *testing.T, m *Machine) Session {
	t.Helper()
	s, err := m.Start(context.Background(), testScope(), 2)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func TestHappyPathIssuesToken(t *testing.T) {
	m := testMachine(t)
	s := mustStart(t, m)
	ctx := context.Background()

	inputs := []string{"yes", "yes", "T1", "yes", "DELETE"}
	for i, in := range inputs {
		res, err := m.Submit(ctx, s.ID, i+1, in)
		if err != nil {
			t.Fatalf("stage %d: %v", i+1, err)
		}
		if i < 4 {
			if !res.Advanced || res.CurrentStage != i+2 {
				t.Fatalf("stage %d: advanced=%v currentStage=%d", i+1, res.Advanced, res.CurrentStage)
			}
		} else {
			if !res.Confirmed || res.Token == nil {
				t.Fatalf("stage 5 did not confirm: %+v", res)
			}
			if res.Token.TenantID != "T1" || res.Token.PreviewCount != 2 {
				t.Errorf("token binding wrong: %+v", res.Token)
			}
			if string(res.Token.ScopeCanonical) != string(testScope().Canonical()) {
				t.Errorf("token scope canonical mismatch")
			}
		}
	}
	// Session destroyed on success.
	if _, err := m.Submit(ctx, s.ID, 5, "DELETE"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("completed session still reachable: %v", err)
	}
}

func TestStageOrderingEnforced(t *testing.T) {
	m := testMachine(t)
	s := mustStart(t, m)
	ctx := context.Background()

	for n := 2; n <= 5; n++ {
		if _, err := m.Submit(ctx, s.ID, n, "yes"); !errors.Is(err, ErrStageMismatch) {
			t.Errorf("stage %d before stage 1: got %v", n, err)
		}
	}
	if _, err := m.Submit(ctx, s.ID, 1, "yes"); err != nil {
		t.Fatalf("stage 1 after mismatches should still work: %v", err)
	}
	// Replaying a passed stage is also a mismatch.
	if _, err := m.Submit(ctx, s.ID, 1, "yes"); !errors.Is(err, ErrStageMismatch) {
		t.Errorf("replayed stage 1: got %v", err)
	}
}

func TestExactMatchValidation(t *testing.T) {
	m := testMachine(t)
	s := mustStart(t, m)
	ctx := context.Background()

	for _, bad := range []string{"Yes", "YES", " yes", "yes ", "y"} {
		if _, err := m.Submit(ctx, s.ID, 1, bad); !errors.Is(err, ErrValidationFailed) {
			t.Errorf("stage 1 input %q: got %v", bad, err)
		}
	}
	// Failed validation neither advances nor destroys the session.
	if _, err := m.Submit(ctx, s.ID, 1, "yes"); err != nil {
		t.Fatalf("retry after failures: %v", err)
	}
	if _, err := m.Submit(ctx, s.ID, 2, "yes"); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"t1", "T1 ", " T1", "T2"} {
		if _, err := m.Submit(ctx, s.ID, 3, bad); !errors.Is(err, ErrValidationFailed) {
			t.Errorf("stage 3 input %q: got %v", bad, err)
		}
	}
	if _, err := m.Submit(ctx, s.ID, 3, "T1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Submit(ctx, s.ID, 4, "yes"); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"delete", "Delete", "DELETE "} {
		if _, err := m.Submit(ctx, s.ID, 5, bad); !errors.Is(err, ErrValidationFailed) {
			t.Errorf("stage 5 input %q: got %v", bad, err)
		}
	}
}

func TestBackReopensPreviousStage(t *testing.T) {
	m := testMachine(t)
	s := mustStart(t, m)
	ctx := context.Background()

	_, _ = m.Submit(ctx, s.ID, 1, "yes")
	_, _ = m.Submit(ctx, s.ID, 2, "yes")
	got, err := m.Back(ctx, s.ID)
	if err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if got.Stage != 2 {
		t.Fatalf("Back landed on stage %d, want 2", got.Stage)
	}
	// Only one step rolls back; stage 1 stays passed.
	if _, ok := got.StageInputs[1]; !ok {
		t.Error("stage 1 input lost on Back")
	}
	if _, err := m.Submit(ctx, s.ID, 2, "yes"); err != nil {
		t.Fatalf("resubmit after Back: %v", err)
	}
	// Back at stage 1 is a no-op.
	s2 := mustStart(t, m)
	got, err = m.Back(ctx, s2.ID)
	if err != nil || got.Stage != 1 {
		t.Errorf("Back at stage 1: stage=%d err=%v", got.Stage, err)
	}
}

func TestCancelIdempotent(t *testing.T) {
	m := testMachine(t)
	s := mustStart(t, m)
	ctx := context.Background()

	if err := m.Cancel(ctx, s.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := m.Cancel(ctx, s.ID); err != nil {
		t.Fatalf("second Cancel not idempotent: %v", err)
	}
	if err := m.Cancel(ctx, "unknown"); err != nil {
		t.Fatalf("Cancel unknown session: %v", err)
	}
	if _, err := m.Submit(ctx, s.ID, 1, "yes"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("cancelled session still accepts input: %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	m := testMachine(t)
	s := mustStart(t, m)
	ctx := context.Background()

	future := time.Now().Add(11 * time.Minute)
	m.now = func() time.Time { return future }
	if _, err := m.Submit(ctx, s.ID, 1, "yes"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expired session: got %v", err)
	}
}

func TestSettleDelayLocksSession(t *testing.T) {
	m := testMachine(t)
	settling := make(chan struct{})
	release := make(chan struct{})
	m.sleep = func(time.Duration) {
		close(settling)
		<-release
	}
	s := mustStart(t, m)
	ctx := context.Background()
	for i, in := range []string{"yes", "yes", "T1", "yes"} {
		if _, err := m.Submit(ctx, s.ID, i+1, in); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var res SubmitResult
	var submitErr error
	go func() {
		defer wg.Done()
		res, submitErr = m.Submit(ctx, s.ID, 5, "DELETE")
	}()

	<-settling
	// The settle delay has started: cancel and further submissions refused.
	if err := m.Cancel(ctx, s.ID); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("Cancel during settle: got %v", err)
	}
	if _, err := m.Submit(ctx, s.ID, 5, "DELETE"); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("Submit during settle: got %v", err)
	}
	close(release)
	wg.Wait()

	if submitErr != nil || !res.Confirmed || res.Token == nil {
		t.Fatalf("settled submission failed: res=%+v err=%v", res, submitErr)
	}
}

func TestTokenSingleUseInStore(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()
	tok := Token{ID: newTokenID(), TenantID: "T1", ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Put(ctx, tok, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Consume(ctx, tok.ID); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := store.Consume(ctx, tok.ID); !errors.Is(err, ErrTokenUsed) {
		t.Errorf("second consume: got %v", err)
	}
	if _, err := store.Consume(ctx, "never-issued"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("unknown token: got %v", err)
	}
}
