// Package session owns the logical login session against the terminal.
// It is the sole point of truth for "are we currently logged in"; other
// components call EnsureActive and never cache its result.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"quantmuse/logger"
	"quantmuse/terminal"
)

// State of the logical session.
type State int

const (
	LoggedOut State = iota
	LoggingIn
	LoggedIn
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	}
	return "unknown"
}

// Manager drives login/logout and recovers the session across retries.
// Login failures are retried locally and surfaced only as a boolean:
// the resolver treats "no session" as just another failed attempt.
type Manager struct {
	mu         sync.Mutex
	state      State
	lastErr    error
	retryCount int

	term       terminal.Terminal
	userID     string
	password   string
	maxRetries int
	baseDelay  time.Duration
	log        *logger.Entry
}

// NewManager creates a manager in the LoggedOut state.
func NewManager(term terminal.Terminal, userID, password string, maxRetries int, baseDelay time.Duration) *Manager {
	return &Manager{
		term:       term,
		userID:     userID,
		password:   password,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		log:        logger.GetLogger().WithComponent("session"),
	}
}

// State reports the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureActive returns true when a session is live, logging in with
// exponential backoff if necessary. Already-logged-in is a fast path
// with no network call. Concurrent callers serialize here so the shared
// account never sees parallel login storms.
func (m *Manager) EnsureActive(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == LoggedIn {
		return true
	}

	b := &backoff.Backoff{
		Min:    m.baseDelay,
		Max:    m.baseDelay * 32,
		Factor: 2,
		Jitter: false,
	}

	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		if m.loginLocked(ctx) {
			return true
		}
		m.retryCount++
		if attempt == m.maxRetries {
			break
		}
		delay := b.Duration()
		m.log.WithFields(logger.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("login failed, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}

	m.log.WithError(m.lastErr).WithFields(logger.Fields{
		"retries": m.maxRetries,
	}).Error("login retries exhausted")
	return false
}

// Login issues exactly one login call. Both a clean success and the
// "session already active elsewhere" soft code leave the session live.
func (m *Manager) Login(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginLocked(ctx)
}

func (m *Manager) loginLocked(ctx context.Context) bool {
	m.state = LoggingIn
	code, err := m.term.Login(ctx, m.userID, m.password)
	if err != nil {
		m.state = LoggedOut
		m.lastErr = err
		return false
	}
	switch code {
	case terminal.StatusOK, terminal.StatusAlreadyActive:
		m.state = LoggedIn
		m.lastErr = nil
		m.log.WithFields(logger.Fields{"code": code}).Info("terminal session established")
		return true
	default:
		m.state = LoggedOut
		m.log.WithFields(logger.Fields{"code": code}).Warn("terminal rejected login")
		return false
	}
}

// Invalidate marks the session expired. The next EnsureActive will log
// in afresh. Called by the resolver on a session-expired soft code.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == LoggedIn {
		m.log.Warn("session invalidated, will re-login on next call")
	}
	m.state = LoggedOut
}

// Logout is best-effort: the upstream logout is attempted only when
// logged in, errors are swallowed, and the state always ends LoggedOut.
// Logout failures must never block shutdown.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == LoggedIn {
		if err := m.term.Logout(ctx); err != nil {
			m.log.WithError(err).Warn("logout failed")
		}
	}
	m.state = LoggedOut
}

// RetryCount reports how many failed login attempts have been made over
// the manager's lifetime.
func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}
