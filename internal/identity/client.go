// Package identity is the client for session lookup, creation and deletion.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"customerqueries/web/internal/auth"
	"customerqueries/web/internal/authpw"
	"customerqueries/web/internal/session"
	"customerqueries/web/internal/store"
	"customerqueries/web/internal/util"
)

// ErrNoSession is returned when the bound credential does not map to a live
// session.
var ErrNoSession = errors.New("no current session")

// Session is proof of an authenticated identity. ID is opaque.
type Session struct {
	ID        string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

// SessionStore persists session records keyed by a hash of the session id.
// Missing records are reported as session.ErrNotFound or sql.ErrNoRows.
type SessionStore interface {
	SaveSession(ctx context.Context, sessionHash string, record store.SessionRecord, expiresAt time.Time) error
	LookupSession(ctx context.Context, sessionHash string) (store.SessionRecord, error)
	DeleteSession(ctx context.Context, sessionHash string) error
}

// Authenticator checks credentials and creates accounts.
type Authenticator interface {
	SignIn(ctx context.Context, req authpw.SignInRequest) (store.User, error)
	SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, error)
}

type Client struct {
	sessions SessionStore
	accounts Authenticator
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewClient(sessions SessionStore, accounts Authenticator, secret string, ttl time.Duration) *Client {
	return &Client{
		sessions: sessions,
		accounts: accounts,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Bind returns the view of the identity service for one browser context,
// identified by its session token. An empty token is allowed and simply has
// no session.
func (c *Client) Bind(token string) *Current {
	return &Current{client: c, token: token}
}

// SignIn checks credentials and creates a session. It returns the session
// and the token the browser must present on later requests.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, string, error) {
	user, err := c.accounts.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, "", err
	}
	return c.createSession(ctx, user)
}

// SignUp creates an account and a session for it.
func (c *Client) SignUp(ctx context.Context, name, email, password string) (Session, string, error) {
	user, err := c.accounts.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: name})
	if err != nil {
		return Session{}, "", err
	}
	return c.createSession(ctx, user)
}

func (c *Client) createSession(ctx context.Context, user store.User) (Session, string, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)
	sessionID := util.NewID("sess")

	token, err := auth.IssueToken(c.secret, auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  sessionID,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, "", err
	}

	record := store.SessionRecord{UserID: user.ID, DisplayName: user.DisplayName, CreatedAt: now}
	if err := c.sessions.SaveSession(ctx, auth.HashToken(sessionID), record, expiresAt); err != nil {
		return Session{}, "", fmt.Errorf("create session: %w", err)
	}

	return Session{
		ID:        sessionID,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		ExpiresAt: time.Unix(expiresAt.Unix(), 0),
	}, token, nil
}

// Current is the identity service as seen by one browser context.
type Current struct {
	client *Client
	token  string
}

func (c *Current) Token() string {
	return c.token
}

// GetCurrentSession returns the live session for the bound token, or
// ErrNoSession. Backend failures are returned wrapped.
func (c *Current) GetCurrentSession(ctx context.Context) (Session, error) {
	claims, err := c.claims()
	if err != nil {
		return Session{}, err
	}

	record, err := c.client.sessions.LookupSession(ctx, auth.HashToken(claims.JTI))
	if err != nil {
		if isMissing(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if record.UserID != claims.Sub {
		return Session{}, ErrNoSession
	}

	return Session{
		ID:        claims.JTI,
		UserID:    record.UserID,
		UserName:  record.DisplayName,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// DeleteCurrentSession removes the session behind the bound token.
func (c *Current) DeleteCurrentSession(ctx context.Context) error {
	claims, err := c.claims()
	if err != nil {
		return err
	}
	if err := c.client.sessions.DeleteSession(ctx, auth.HashToken(claims.JTI)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SessionKey is the storage key of the bound session, or "" when the token
// does not carry one.
func (c *Current) SessionKey() string {
	claims, err := c.claims()
	if err != nil {
		return ""
	}
	return auth.HashToken(claims.JTI)
}

func (c *Current) claims() (auth.Claims, error) {
	if c.token == "" {
		return auth.Claims{}, ErrNoSession
	}
	claims, err := auth.ParseToken(c.client.secret, c.token)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return claims, nil
}

func isMissing(err error) bool {
	return errors.Is(err, session.ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
