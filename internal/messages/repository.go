// Package messages is the client-side wrapper over the message document
// store.
package messages

import (
	"context"
	"errors"
	"strings"
	"time"

	"customerqueries/web/internal/store"
	"customerqueries/web/internal/util"
)

// Message is one submitted customer note.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// FetchError reports a failed collection read (network, auth or server).
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return "fetch messages: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var ErrInvalidMessage = errors.New("author and body are required")

// Reader lists the full collection and answers text queries over it.
type Reader interface {
	ListMessages(ctx context.Context) ([]store.Message, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]store.Message, error)
}

// Writer persists new messages.
type Writer interface {
	InsertMessage(ctx context.Context, item store.Message) error
}

// Indexer receives newly created messages.
type Indexer interface {
	IndexMessage(msg store.Message)
}

// Repository lists and creates messages. List performs no auth check; callers
// only invoke it for an authenticated session.
type Repository struct {
	reader  Reader
	writer  Writer
	indexer Indexer
	now     func() time.Time
}

// NewRepository wires the read path, the write path and an optional indexer.
func NewRepository(reader Reader, writer Writer, indexer Indexer) *Repository {
	return &Repository{reader: reader, writer: writer, indexer: indexer, now: time.Now}
}

// List returns the store's collection verbatim. Failures are *FetchError.
func (r *Repository) List(ctx context.Context) ([]Message, error) {
	items, err := r.reader.ListMessages(ctx)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	out := make([]Message, 0, len(items))
	for _, item := range items {
		out = append(out, fromStore(item))
	}
	return out, nil
}

// Search returns the messages matching query. Failures are *FetchError.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]Message, error) {
	items, err := r.reader.SearchMessages(ctx, query, limit)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	out := make([]Message, 0, len(items))
	for _, item := range items {
		out = append(out, fromStore(item))
	}
	return out, nil
}

// Create stores a new message. The id and timestamp are assigned here and
// never change afterwards.
func (r *Repository) Create(ctx context.Context, author, body string) (Message, error) {
	author = strings.TrimSpace(author)
	body = strings.TrimSpace(body)
	if author == "" || body == "" {
		return Message{}, ErrInvalidMessage
	}

	item := store.Message{
		ID:        util.NewID("msg"),
		Author:    author,
		Body:      body,
		CreatedAt: r.now().UTC(),
	}
	if err := r.writer.InsertMessage(ctx, item); err != nil {
		return Message{}, err
	}
	if r.indexer != nil {
		r.indexer.IndexMessage(item)
	}
	return fromStore(item), nil
}

func fromStore(item store.Message) Message {
	return Message{
		ID:        item.ID,
		Author:    item.Author,
		Body:      item.Body,
		CreatedAt: item.CreatedAt,
	}
}
