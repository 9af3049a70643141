package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"customerqueries/web/internal/authpw"
	"customerqueries/web/internal/config"
	"customerqueries/web/internal/identity"
	"customerqueries/web/internal/logging"
	"customerqueries/web/internal/messages"
	"customerqueries/web/internal/session"
	"customerqueries/web/internal/store"
)

const testSecret = "test-secret"

type fakeAccounts struct {
	mu    sync.Mutex
	users map[string]store.User
	pass  map[string]string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{users: map[string]store.User{}, pass: map[string]string{}}
}

func (f *fakeAccounts) SignIn(_ context.Context, req authpw.SignInRequest) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(req.Email)
	user, ok := f.users[key]
	if !ok || f.pass[key] != req.Password {
		return store.User{}, authpw.ErrInvalidCredentials
	}
	return user, nil
}

func (f *fakeAccounts) SignUp(_ context.Context, req authpw.SignUpRequest) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(req.Email)
	if _, ok := f.users[key]; ok {
		return store.User{}, authpw.ErrEmailTaken
	}
	if len(req.Password) < 8 {
		return store.User{}, &authpw.ValidationError{Message: "password must be at least 8 characters"}
	}
	user := store.User{ID: "user-" + key, DisplayName: req.DisplayName, Email: req.Email}
	f.users[key] = user
	f.pass[key] = req.Password
	return user, nil
}

type fakeMessages struct {
	mu        sync.Mutex
	items     []messages.Message
	listErr   error
	listCalls int
	created   []messages.Message
	searches  []searchCall
}

type searchCall struct {
	query string
	limit int
}

func (f *fakeMessages) List(context.Context) ([]messages.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, &messages.FetchError{Err: f.listErr}
	}
	return append([]messages.Message(nil), f.items...), nil
}

func (f *fakeMessages) Search(_ context.Context, query string, limit int) ([]messages.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, searchCall{query: query, limit: limit})
	if f.listErr != nil {
		return nil, &messages.FetchError{Err: f.listErr}
	}
	out := make([]messages.Message, 0)
	for _, item := range f.items {
		if strings.Contains(strings.ToLower(item.Body), strings.ToLower(query)) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeMessages) Create(_ context.Context, author, body string) (messages.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	author = strings.TrimSpace(author)
	body = strings.TrimSpace(body)
	if author == "" || body == "" {
		return messages.Message{}, messages.ErrInvalidMessage
	}
	msg := messages.Message{ID: "msg_new", Author: author, Body: body, CreatedAt: time.Unix(500, 0).UTC()}
	f.created = append(f.created, msg)
	return msg, nil
}

func (f *fakeMessages) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type fakeDB struct {
	pingFn func(context.Context) error
}

func (f *fakeDB) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type blockingSessions struct {
	release chan struct{}
}

func (b *blockingSessions) SaveSession(context.Context, string, store.SessionRecord, time.Time) error {
	return nil
}

func (b *blockingSessions) LookupSession(ctx context.Context, _ string) (store.SessionRecord, error) {
	<-b.release
	return store.SessionRecord{}, errors.New("released")
}

func (b *blockingSessions) DeleteSession(context.Context, string) error {
	return nil
}

// gatedSessions holds DeleteSession until release is closed.
type gatedSessions struct {
	identity.SessionStore
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	deletes int
}

func (g *gatedSessions) DeleteSession(ctx context.Context, key string) error {
	g.mu.Lock()
	g.deletes++
	g.mu.Unlock()
	g.entered <- struct{}{}
	<-g.release
	return g.SessionStore.DeleteSession(ctx, key)
}

func (g *gatedSessions) deleteCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deletes
}

type testEnv struct {
	server   *HTTPServer
	service  *Service
	accounts *fakeAccounts
	messages *fakeMessages
	db       *fakeDB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := session.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })
	return newTestEnvWithSessions(t, sessions)
}

func newTestEnvWithSessions(t *testing.T, sessions identity.SessionStore) *testEnv {
	t.Helper()
	accounts := newFakeAccounts()
	msgs := &fakeMessages{}
	db := &fakeDB{}
	cfg := config.Config{SessionSecret: testSecret, SessionTTL: time.Hour, PageWait: 2 * time.Second}
	client := identity.NewClient(sessions, accounts, cfg.SessionSecret, cfg.SessionTTL)
	svc := New(cfg, client, msgs, db, nil, logging.Discard())
	return &testEnv{
		server:   NewHTTPServer(svc, logging.Discard()),
		service:  svc,
		accounts: accounts,
		messages: msgs,
		db:       db,
	}
}

// signIn registers a user and returns a session token for it.
func (e *testEnv) signIn(t *testing.T, name, email string) string {
	t.Helper()
	ctx := context.Background()
	if _, _, err := e.service.SignUp(ctx, name, email, "password1"); err != nil && !errors.Is(err, authpw.ErrEmailTaken) {
		t.Fatalf("sign up: %v", err)
	}
	_, token, err := e.service.SignIn(ctx, email, "password1")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	return token
}
