package session

import (
	"context"
	"testing"
	"time"

	"quantmuse/models"
	"quantmuse/terminal"
)

// fakeTerminal scripts login results and records call times.
type fakeTerminal struct {
	loginCodes []int
	loginErr   error
	loginTimes []time.Time
	logouts    int
}

func (f *fakeTerminal) Login(ctx context.Context, userID, password string) (int, error) {
	f.loginTimes = append(f.loginTimes, time.Now())
	if f.loginErr != nil {
		return 0, f.loginErr
	}
	idx := len(f.loginTimes) - 1
	if idx >= len(f.loginCodes) {
		idx = len(f.loginCodes) - 1
	}
	return f.loginCodes[idx], nil
}

func (f *fakeTerminal) Logout(ctx context.Context) error {
	f.logouts++
	return nil
}

func (f *fakeTerminal) Invoke(ctx context.Context, op terminal.Op, params ...string) (models.RawResponse, error) {
	return models.NewRawNil(), nil
}

func TestLoginSuccess(t *testing.T) {
	ft := &fakeTerminal{loginCodes: []int{terminal.StatusOK}}
	m := NewManager(ft, "user", "pass", 3, time.Millisecond)

	if !m.EnsureActive(context.Background()) {
		t.Fatal("expected login to succeed")
	}
	if got := m.State(); got != LoggedIn {
		t.Fatalf("state = %v, want LoggedIn", got)
	}
	if len(ft.loginTimes) != 1 {
		t.Fatalf("login calls = %d, want 1", len(ft.loginTimes))
	}
}

func TestLoginAcceptsAlreadyActive(t *testing.T) {
	ft := &fakeTerminal{loginCodes: []int{terminal.StatusAlreadyActive}}
	m := NewManager(ft, "user", "pass", 3, time.Millisecond)

	if !m.Login(context.Background()) {
		t.Fatal("already-active soft code should count as logged in")
	}
	if got := m.State(); got != LoggedIn {
		t.Fatalf("state = %v, want LoggedIn", got)
	}
}

func TestEnsureActiveFastPath(t *testing.T) {
	ft := &fakeTerminal{loginCodes: []int{terminal.StatusOK}}
	m := NewManager(ft, "user", "pass", 3, time.Millisecond)

	ctx := context.Background()
	if !m.EnsureActive(ctx) || !m.EnsureActive(ctx) || !m.EnsureActive(ctx) {
		t.Fatal("expected all EnsureActive calls to succeed")
	}
	if len(ft.loginTimes) != 1 {
		t.Fatalf("login calls = %d, want 1 (fast path must not hit the network)", len(ft.loginTimes))
	}
}

func TestRetriesExhaustedWithBackoff(t *testing.T) {
	ft := &fakeTerminal{loginCodes: []int{-1}}
	base := 30 * time.Millisecond
	m := NewManager(ft, "user", "pass", 3, base)

	if m.EnsureActive(context.Background()) {
		t.Fatal("expected EnsureActive to fail")
	}
	if len(ft.loginTimes) != 3 {
		t.Fatalf("login calls = %d, want exactly 3", len(ft.loginTimes))
	}

	gap1 := ft.loginTimes[1].Sub(ft.loginTimes[0])
	gap2 := ft.loginTimes[2].Sub(ft.loginTimes[1])
	if gap1 < base {
		t.Fatalf("first backoff %v shorter than base %v", gap1, base)
	}
	if gap2 <= gap1 {
		t.Fatalf("delays not strictly increasing: %v then %v", gap1, gap2)
	}
	if got := m.State(); got != LoggedOut {
		t.Fatalf("state = %v, want LoggedOut", got)
	}
	if got := m.RetryCount(); got != 3 {
		t.Fatalf("retry count = %d, want 3", got)
	}
}

func TestInvalidateForcesRelogin(t *testing.T) {
	ft := &fakeTerminal{loginCodes: []int{terminal.StatusOK}}
	m := NewManager(ft, "user", "pass", 3, time.Millisecond)
	ctx := context.Background()

	if !m.EnsureActive(ctx) {
		t.Fatal("initial login failed")
	}
	m.Invalidate()
	if got := m.State(); got != LoggedOut {
		t.Fatalf("state after invalidate = %v, want LoggedOut", got)
	}
	if !m.EnsureActive(ctx) {
		t.Fatal("re-login failed")
	}
	if len(ft.loginTimes) != 2 {
		t.Fatalf("login calls = %d, want 2", len(ft.loginTimes))
	}
}

func TestLogoutBestEffort(t *testing.T) {
	ft := &fakeTerminal{loginCodes: []int{terminal.StatusOK}}
	m := NewManager(ft, "user", "pass", 3, time.Millisecond)
	ctx := context.Background()

	// Logout while logged out must not call upstream.
	m.Logout(ctx)
	if ft.logouts != 0 {
		t.Fatalf("logout calls = %d, want 0", ft.logouts)
	}

	m.EnsureActive(ctx)
	m.Logout(ctx)
	if ft.logouts != 1 {
		t.Fatalf("logout calls = %d, want 1", ft.logouts)
	}
	if got := m.State(); got != LoggedOut {
		t.Fatalf("state = %v, want LoggedOut", got)
	}
}
