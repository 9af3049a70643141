package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"customerqueries/web/internal/store"
)

const (
	idxMessages      = "customerqueries_messages"
	healthInterval   = 10 * time.Second
	taskPollInterval = 50 * time.Millisecond
)

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *slog.Logger
	healthy atomic.Bool
	done    chan struct{}

	mu        sync.Mutex
	onRecover []func()
}

// NewMeili creates a Meilisearch client and configures the message index.
// An unreachable server is not an error: the index reports unhealthy and a
// background loop keeps checking it.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger.With("component", "meilisearch"),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxMessages,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", idxMessages, "error", err)
	}

	index := m.client.Index(idxMessages)
	searchable := []string{"author", "body"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "index", idxMessages, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

// checkHealth checks the server once. On a down-to-up transition the index is
// reconfigured and every recovery hook runs before checkHealth returns.
func (m *Meili) checkHealth() {
	_, err := m.client.Health()
	wasHealthy := m.healthy.Swap(err == nil)
	if err != nil {
		if wasHealthy {
			m.logger.Warn("meilisearch went unhealthy", "error", err)
		}
		return
	}
	if wasHealthy {
		return
	}
	m.logger.Info("meilisearch recovered, reconfiguring index")
	m.configureIndex()

	m.mu.Lock()
	hooks := append([]func(){}, m.onRecover...)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// OnRecover registers fn to run after the index recovers from an outage.
func (m *Meili) OnRecover(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecover = append(m.onRecover, fn)
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports the last known health state.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// SearchMessages runs a text query against the index. A failed request marks
// the index unhealthy until the next successful health check.
func (m *Meili) SearchMessages(ctx context.Context, query string, limit int) ([]store.Message, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.Index(idxMessages).SearchWithContext(ctx, query, &meili.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search messages: %w", err)
	}

	items := make([]store.Message, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		items = append(items, hitToMessage(hit))
	}
	return items, nil
}

func hitToMessage(hit meili.Hit) store.Message {
	return store.Message{
		ID:        decodeString(hit, "id"),
		Author:    decodeString(hit, "author"),
		Body:      decodeString(hit, "body"),
		CreatedAt: time.UnixMilli(decodeInt(hit, "createdAt")).UTC(),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

// IndexMessage adds or updates a message in the index.
func (m *Meili) IndexMessage(msg store.Message) error {
	_, err := m.client.Index(idxMessages).AddDocuments([]messageRecord{toRecord(msg)}, nil)
	return err
}

// IndexMessages bulk-indexes messages and waits until Meilisearch has applied
// the batch.
func (m *Meili) IndexMessages(ctx context.Context, msgs []store.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	records := make([]messageRecord, 0, len(msgs))
	for _, msg := range msgs {
		records = append(records, toRecord(msg))
	}
	index := m.client.Index(idxMessages)
	info, err := index.AddDocumentsWithContext(ctx, records, nil)
	if err != nil {
		return fmt.Errorf("meilisearch add documents: %w", err)
	}
	task, err := index.WaitForTaskWithContext(ctx, info.TaskUID, taskPollInterval)
	if err != nil {
		return fmt.Errorf("meilisearch wait for task %d: %w", info.TaskUID, err)
	}
	if task.Status != meili.TaskStatusSucceeded {
		return fmt.Errorf("meilisearch task %d %s: %s", info.TaskUID, task.Status, task.Error.Message)
	}
	return nil
}
