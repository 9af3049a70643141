package view

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"customerqueries/web/internal/messages"
)

// SortMode orders the displayed list.
type SortMode string

const (
	SortAll    SortMode = "all"
	SortRecent SortMode = "recent"
	SortOldest SortMode = "oldest"
)

var ErrInvalidSortMode = errors.New("invalid sort mode")

// ParseSortMode accepts all, recent and oldest. Empty means all.
func ParseSortMode(raw string) (SortMode, error) {
	switch SortMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SortAll:
		return SortAll, nil
	case SortRecent:
		return SortRecent, nil
	case SortOldest:
		return SortOldest, nil
	}
	return "", ErrInvalidSortMode
}

// Derive filters base by a case-insensitive substring of author or body and
// orders the result by mode. base is never modified.
func Derive(base []messages.Message, search string, mode SortMode) []messages.Message {
	needle := strings.ToLower(search)
	out := make([]messages.Message, 0, len(base))
	for _, m := range base {
		if needle == "" ||
			strings.Contains(strings.ToLower(m.Author), needle) ||
			strings.Contains(strings.ToLower(m.Body), needle) {
			out = append(out, m)
		}
	}

	switch mode {
	case SortRecent:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	}
	return out
}

// MessageLister reads the full collection.
type MessageLister interface {
	List(ctx context.Context) ([]messages.Message, error)
}

// SessionDeleter ends the current session.
type SessionDeleter interface {
	DeleteCurrentSession(ctx context.Context) error
}

// LogoutOutcome reports what a Logout call did.
type LogoutOutcome int

const (
	LogoutCompleted LogoutOutcome = iota
	LogoutFailed
	LogoutIgnored
)

func (o LogoutOutcome) String() string {
	switch o {
	case LogoutCompleted:
		return "completed"
	case LogoutFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// MessageListController drives the protected view: one fetch, local search
// and sort state, and the logout action.
type MessageListController struct {
	session *SessionController
	lister  MessageLister
	deleter SessionDeleter
	nav     Navigator
	logger  *slog.Logger

	mu         sync.Mutex
	mounted    bool
	loading    bool
	base       []messages.Message
	search     string
	sort       SortMode
	loggingOut bool
	settled    chan struct{}
}

func NewMessageListController(session *SessionController, lister MessageLister, deleter SessionDeleter, nav Navigator, logger *slog.Logger) *MessageListController {
	return &MessageListController{
		session: session,
		lister:  lister,
		deleter: deleter,
		nav:     nav,
		logger:  logger.With("component", "messagelist"),
		sort:    SortAll,
		settled: make(chan struct{}),
	}
}

// Mount fetches the collection once if the session is authenticated at this
// moment. Otherwise the repository is never called. Later calls do nothing.
func (c *MessageListController) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	if c.session.State() != StateAuthenticated {
		close(c.settled)
		c.mu.Unlock()
		return
	}
	c.loading = true
	c.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	go func() {
		items, err := c.lister.List(fetchCtx)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.loading = false
		if err != nil {
			c.logger.Warn("list messages failed", "error", err)
		} else {
			c.base = items
		}
		close(c.settled)
	}()
}

// Settled is closed once the fetch has finished, or at mount when no fetch
// was issued.
func (c *MessageListController) Settled() <-chan struct{} {
	return c.settled
}

func (c *MessageListController) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *MessageListController) SetSearch(search string) {
	c.mu.Lock()
	c.search = search
	c.mu.Unlock()
}

func (c *MessageListController) SetSort(mode SortMode) {
	c.mu.Lock()
	c.sort = mode
	c.mu.Unlock()
}

func (c *MessageListController) Search() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.search
}

func (c *MessageListController) Sort() SortMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sort
}

// Displayed is the derived list. It is empty unless the session is
// authenticated right now, whatever the fetch produced.
func (c *MessageListController) Displayed() []messages.Message {
	if c.session.State() != StateAuthenticated {
		return []messages.Message{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Derive(c.base, c.search, c.sort)
}

func (c *MessageListController) LoggingOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggingOut
}

// Logout deletes the current session. On success the session becomes
// unauthenticated and the navigator is sent home. On failure the state is
// left alone. A call made while another is running is ignored.
func (c *MessageListController) Logout(ctx context.Context) LogoutOutcome {
	c.mu.Lock()
	if c.loggingOut {
		c.mu.Unlock()
		return LogoutIgnored
	}
	c.loggingOut = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loggingOut = false
		c.mu.Unlock()
	}()

	if err := c.deleter.DeleteCurrentSession(ctx); err != nil {
		c.logger.Warn("logout failed", "error", err)
		return LogoutFailed
	}
	c.session.Set(StateUnauthenticated)
	if c.nav != nil {
		c.nav.Navigate(PathHome, false)
	}
	return LogoutCompleted
}
