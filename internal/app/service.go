package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"customerqueries/web/internal/config"
	"customerqueries/web/internal/identity"
	"customerqueries/web/internal/messages"
	"customerqueries/web/internal/view"
)

type messageStore interface {
	List(ctx context.Context) ([]messages.Message, error)
	Search(ctx context.Context, query string, limit int) ([]messages.Message, error)
	Create(ctx context.Context, author, body string) (messages.Message, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type reindexer interface {
	ReindexFromSource(ctx context.Context) error
}

// Service wires the identity client and the message repository into the
// per-request view controllers.
type Service struct {
	cfg       config.Config
	identity  *identity.Client
	messages  messageStore
	db        pinger
	reindexer reindexer
	logger    *slog.Logger

	// loggingOut holds the session keys with a logout in flight.
	loggingOut sync.Map
}

// New creates the service. reindexer may be nil when no search index is
// configured.
func New(cfg config.Config, identityClient *identity.Client, repo messageStore, db pinger, reindexer reindexer, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		identity:  identityClient,
		messages:  repo,
		db:        db,
		reindexer: reindexer,
		logger:    logger,
	}
}

// Bootstrap fills the search index from the database.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.reindexer == nil {
		return nil
	}
	return s.reindexer.ReindexFromSource(ctx)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Service) PageWait() time.Duration {
	if s.cfg.PageWait <= 0 {
		return 5 * time.Second
	}
	return s.cfg.PageWait
}

// Page holds the controllers for one page load or API call.
type Page struct {
	Current  *identity.Current
	Session  *view.SessionController
	Messages *view.MessageListController
}

// NewPage binds the controllers to the credential of one request. The
// session lookup is not started.
func (s *Service) NewPage(token string, nav view.Navigator) *Page {
	current := s.identity.Bind(token)
	session := view.NewSessionController(current, s.logger)
	return &Page{
		Current:  current,
		Session:  session,
		Messages: view.NewMessageListController(session, s.messages, current, nav, s.logger),
	}
}

// ResolvePage starts the session lookup and waits up to the page wait for
// it to settle.
func (s *Service) ResolvePage(ctx context.Context, token string, nav view.Navigator) (*Page, view.AuthState) {
	page := s.NewPage(token, nav)
	page.Session.Start(ctx)
	waitCtx, cancel := context.WithTimeout(ctx, s.PageWait())
	defer cancel()
	return page, page.Session.Wait(waitCtx)
}

// LoadMessages mounts the list controller and waits up to the page wait for
// the fetch. It reports whether the fetch is still running.
func (s *Service) LoadMessages(ctx context.Context, page *Page) (loading bool) {
	page.Messages.Mount(ctx)
	waitCtx, cancel := context.WithTimeout(ctx, s.PageWait())
	defer cancel()
	select {
	case <-page.Messages.Settled():
	case <-waitCtx.Done():
	}
	return page.Messages.Loading()
}

// Logout runs the page's logout. While one logout for a session is in flight,
// any other request for the same session gets LogoutIgnored.
func (s *Service) Logout(ctx context.Context, page *Page) view.LogoutOutcome {
	if key := page.Current.SessionKey(); key != "" {
		if _, busy := s.loggingOut.LoadOrStore(key, struct{}{}); busy {
			s.logger.Debug("logout already in flight")
			return view.LogoutIgnored
		}
		defer s.loggingOut.Delete(key)
	}
	return page.Messages.Logout(ctx)
}

// SearchMessages runs a text query over the collection. limit <= 0 selects
// the default page size.
func (s *Service) SearchMessages(ctx context.Context, query string, limit int) ([]messages.Message, error) {
	return s.messages.Search(ctx, query, limit)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (identity.Session, string, error) {
	return s.identity.SignIn(ctx, email, password)
}

func (s *Service) SignUp(ctx context.Context, name, email, password string) (identity.Session, string, error) {
	return s.identity.SignUp(ctx, name, email, password)
}

func (s *Service) CreateMessage(ctx context.Context, author, body string) (messages.Message, error) {
	return s.messages.Create(ctx, author, body)
}

func (s *Service) CookieSecure() bool {
	return s.cfg.CookieSecure
}
