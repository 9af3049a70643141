// Package view holds the per-page controllers: session state, route gating
// and the message list.
package view

import (
	"context"
	"log/slog"
	"sync"

	"customerqueries/web/internal/identity"
)

// AuthState is the UI session tri-state.
type AuthState int

const (
	StateUnknown AuthState = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s AuthState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// SessionLookup is the part of the identity client the controller needs.
type SessionLookup interface {
	GetCurrentSession(ctx context.Context) (identity.Session, error)
}

// SessionController owns the tri-state for one page load. It issues a single
// lookup and never retries.
type SessionController struct {
	lookup SessionLookup
	logger *slog.Logger

	mu       sync.Mutex
	state    AuthState
	userName string
	started  bool
	settled  bool
	done     chan struct{}
}

func NewSessionController(lookup SessionLookup, logger *slog.Logger) *SessionController {
	return &SessionController{
		lookup: lookup,
		logger: logger.With("component", "session"),
		done:   make(chan struct{}),
	}
}

// Start issues the session lookup in the background. Only the first call has
// any effect. The lookup is not cancelled when ctx ends.
func (c *SessionController) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	lookupCtx := context.WithoutCancel(ctx)
	go func() {
		sess, err := c.lookup.GetCurrentSession(lookupCtx)
		c.resolve(sess, err)
	}()
}

func (c *SessionController) resolve(sess identity.Session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		// an explicit Set already decided the state
		return
	}
	if err != nil {
		c.logger.Debug("session lookup failed", "error", err)
		c.state = StateUnauthenticated
	} else {
		c.state = StateAuthenticated
		c.userName = sess.UserName
	}
	c.settle()
}

// Set changes the state without a lookup, for login, signup and logout
// flows. Setting StateUnknown is ignored.
func (c *SessionController) Set(state AuthState) {
	if state == StateUnknown {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	if state != StateAuthenticated {
		c.userName = ""
	}
	if !c.settled {
		c.settle()
	}
}

// caller holds mu
func (c *SessionController) settle() {
	c.settled = true
	close(c.done)
}

func (c *SessionController) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserName is the display name from the looked-up session, if any.
func (c *SessionController) UserName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userName
}

// Done is closed once the state has left StateUnknown.
func (c *SessionController) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the state settles or ctx ends, and returns the state at
// that point.
func (c *SessionController) Wait(ctx context.Context) AuthState {
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return c.State()
}
