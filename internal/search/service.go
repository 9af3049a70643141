package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"customerqueries/web/internal/store"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100

	recoverReindexTimeout = 2 * time.Minute
)

// Service reads the message collection from the authoritative store and uses
// the index only to answer text queries. The index is trusted for queries once
// a full reindex has completed and no write has been missed since.
type Service struct {
	index  Index
	source Source
	logger *slog.Logger
	synced atomic.Bool
}

// NewService creates a message read service. index may be nil if Meilisearch
// is not configured.
func NewService(index Index, source Source, logger *slog.Logger) *Service {
	s := &Service{index: index, source: source, logger: logger.With("component", "search")}
	if index != nil {
		index.OnRecover(s.reindexAfterRecovery)
	}
	return s
}

func (s *Service) reindexAfterRecovery() {
	ctx, cancel := context.WithTimeout(context.Background(), recoverReindexTimeout)
	defer cancel()
	if err := s.ReindexFromSource(ctx); err != nil {
		s.logger.Warn("reindex after recovery", "error", err)
	}
}

// ListMessages returns the whole collection from the authoritative store.
func (s *Service) ListMessages(ctx context.Context) ([]store.Message, error) {
	items, err := s.source.ListMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return items, nil
}

// SearchMessages answers a text query from the index when it is in sync and
// from the store otherwise. limit is clamped to [1, MaxSearchLimit].
func (s *Service) SearchMessages(ctx context.Context, query string, limit int) ([]store.Message, error) {
	query = strings.TrimSpace(query)
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}

	if s.indexReady() {
		items, err := s.index.SearchMessages(ctx, query, limit)
		if err == nil {
			return items, nil
		}
		s.logger.Warn("meilisearch search failed, falling back to postgres", "error", err)
	}

	items, err := s.source.SearchMessages(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return items, nil
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy() && s.synced.Load()
}

// IndexMessage indexes a message (fire-and-forget). A message that cannot be
// indexed takes the index out of sync until the next full reindex.
func (s *Service) IndexMessage(msg store.Message) {
	if s.index == nil {
		return
	}
	if !s.index.Healthy() {
		s.synced.Store(false)
		s.logger.Debug("index unhealthy, message left for reindex", "id", msg.ID)
		return
	}
	go func() {
		if err := s.index.IndexMessage(msg); err != nil {
			s.synced.Store(false)
			s.logger.Warn("index message", "id", msg.ID, "error", err)
		}
	}()
}

// ReindexFromSource pushes the whole source collection into the index and
// waits for it to be applied. Bootstrap calls it once and the index calls it
// again after every recovery.
func (s *Service) ReindexFromSource(ctx context.Context) error {
	if s.index == nil || !s.index.Healthy() {
		return nil
	}
	s.synced.Store(false)
	items, err := s.source.ListMessages(ctx)
	if err != nil {
		return fmt.Errorf("reindex load: %w", err)
	}
	if err := s.index.IndexMessages(ctx, items); err != nil {
		return fmt.Errorf("reindex messages: %w", err)
	}
	s.synced.Store(true)
	s.logger.Info("reindexed messages", "count", len(items))
	return nil
}
