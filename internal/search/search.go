// Package search mirrors the message collection into Meilisearch and uses it
// to answer text queries. Full-collection reads always go to PostgreSQL.
package search

import (
	"context"

	"customerqueries/web/internal/store"
)

// Index is a message index that answers text queries.
type Index interface {
	Healthy() bool
	SearchMessages(ctx context.Context, query string, limit int) ([]store.Message, error)
	IndexMessage(msg store.Message) error
	IndexMessages(ctx context.Context, msgs []store.Message) error
	// OnRecover registers fn to run each time the index comes back after an
	// outage.
	OnRecover(fn func())
}

// Source is the authoritative message store.
type Source interface {
	ListMessages(ctx context.Context) ([]store.Message, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]store.Message, error)
}

// messageRecord is the document shape stored in the index. CreatedAt is unix
// milliseconds so it stays sortable inside Meilisearch.
type messageRecord struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"createdAt"`
}

func toRecord(msg store.Message) messageRecord {
	return messageRecord{
		ID:        msg.ID,
		Author:    msg.Author,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt.UnixMilli(),
	}
}
