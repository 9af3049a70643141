package view

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customerqueries/web/internal/identity"
	"customerqueries/web/internal/logging"
)

type stubLookup struct {
	calls   atomic.Int32
	release chan struct{}
	sess    identity.Session
	err     error
}

func (s *stubLookup) GetCurrentSession(ctx context.Context) (identity.Session, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	return s.sess, s.err
}

func waitSettled(t *testing.T, c *SessionController) AuthState {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session lookup did not settle")
	}
	return c.State()
}

func TestSessionControllerStartsUnknown(t *testing.T) {
	c := NewSessionController(&stubLookup{}, logging.Discard())
	assert.Equal(t, StateUnknown, c.State())
}

func TestSessionControllerLookupOutcomes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want AuthState
	}{
		{name: "session", want: StateAuthenticated},
		{name: "no session", err: identity.ErrNoSession, want: StateUnauthenticated},
		{name: "backend error", err: errors.New("connection refused"), want: StateUnauthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lookup := &stubLookup{sess: identity.Session{ID: "sess_1", UserName: "Alice"}, err: tc.err}
			c := NewSessionController(lookup, logging.Discard())
			c.Start(context.Background())
			assert.Equal(t, tc.want, waitSettled(t, c))
		})
	}
}

func TestSessionControllerKeepsUserName(t *testing.T) {
	c := NewSessionController(&stubLookup{sess: identity.Session{UserName: "Alice"}}, logging.Discard())
	c.Start(context.Background())
	waitSettled(t, c)
	assert.Equal(t, "Alice", c.UserName())

	c.Set(StateUnauthenticated)
	assert.Empty(t, c.UserName())
}

func TestSessionControllerLooksUpOnce(t *testing.T) {
	lookup := &stubLookup{}
	c := NewSessionController(lookup, logging.Discard())
	c.Start(context.Background())
	c.Start(context.Background())
	c.Start(context.Background())
	waitSettled(t, c)

	// give a stray second lookup a chance to show up
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), lookup.calls.Load())
}

func TestSessionControllerStaysUnknownWhileInFlight(t *testing.T) {
	lookup := &stubLookup{release: make(chan struct{})}
	c := NewSessionController(lookup, logging.Discard())
	c.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, StateUnknown, c.Wait(ctx))

	close(lookup.release)
	assert.Equal(t, StateAuthenticated, waitSettled(t, c))
}

func TestSessionControllerLookupSurvivesCancel(t *testing.T) {
	lookup := &stubLookup{release: make(chan struct{})}
	c := NewSessionController(lookup, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()
	close(lookup.release)

	assert.Equal(t, StateAuthenticated, waitSettled(t, c))
}

func TestSessionControllerExplicitSetWinsOverLateLookup(t *testing.T) {
	lookup := &stubLookup{release: make(chan struct{}), err: identity.ErrNoSession}
	c := NewSessionController(lookup, logging.Discard())
	c.Start(context.Background())

	c.Set(StateAuthenticated)
	assert.Equal(t, StateAuthenticated, waitSettled(t, c))

	close(lookup.release)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateAuthenticated, c.State())
}

func TestSessionControllerSetUnknownIgnored(t *testing.T) {
	c := NewSessionController(&stubLookup{}, logging.Discard())
	c.Set(StateUnauthenticated)
	c.Set(StateUnknown)
	assert.Equal(t, StateUnauthenticated, c.State())
}

func TestSessionControllerSetAfterSettle(t *testing.T) {
	c := NewSessionController(&stubLookup{}, logging.Discard())
	c.Start(context.Background())
	require.Equal(t, StateAuthenticated, waitSettled(t, c))

	c.Set(StateUnauthenticated)
	assert.Equal(t, StateUnauthenticated, c.State())
	c.Set(StateAuthenticated)
	assert.Equal(t, StateAuthenticated, c.State())
}

func TestAuthStateString(t *testing.T) {
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
}
