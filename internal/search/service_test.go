package search

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customerqueries/web/internal/logging"
	"customerqueries/web/internal/store"
)

// fakeIndex keeps documents by id the way Meilisearch does.
type fakeIndex struct {
	mu        sync.Mutex
	healthy   bool
	docs      map[string]store.Message
	searchErr error
	indexErr  error
	indexed   chan store.Message
	searches  int
	recover   []func()
}

func newFakeIndex(healthy bool) *fakeIndex {
	return &fakeIndex{healthy: healthy, docs: map[string]store.Message{}}
}

func (f *fakeIndex) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeIndex) setHealthy(healthy bool) {
	f.mu.Lock()
	wasHealthy := f.healthy
	f.healthy = healthy
	hooks := append([]func(){}, f.recover...)
	f.mu.Unlock()
	if healthy && !wasHealthy {
		for _, fn := range hooks {
			fn()
		}
	}
}

func (f *fakeIndex) SearchMessages(context.Context, string, int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	items := make([]store.Message, 0, len(f.docs))
	for _, doc := range f.docs {
		items = append(items, doc)
	}
	return items, nil
}

func (f *fakeIndex) IndexMessage(msg store.Message) error {
	f.mu.Lock()
	err := f.indexErr
	if err == nil {
		f.docs[msg.ID] = msg
	}
	f.mu.Unlock()
	if f.indexed != nil {
		f.indexed <- msg
	}
	return err
}

func (f *fakeIndex) IndexMessages(_ context.Context, msgs []store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	for _, msg := range msgs {
		f.docs[msg.ID] = msg
	}
	return nil
}

func (f *fakeIndex) OnRecover(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recover = append(f.recover, fn)
}

func (f *fakeIndex) docCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

type fakeSource struct {
	mu       sync.Mutex
	items    []store.Message
	err      error
	calls    int
	searches int
}

func (f *fakeSource) ListMessages(context.Context) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]store.Message(nil), f.items...), f.err
}

func (f *fakeSource) SearchMessages(_ context.Context, _ string, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	items := append([]store.Message(nil), f.items...)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, f.err
}

func (f *fakeSource) insert(msg store.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, msg)
}

func msg(id string) store.Message {
	return store.Message{ID: id, Author: "a" + id, Body: "b" + id, CreatedAt: time.Unix(1, 0)}
}

func ids(items []store.Message) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestListMessagesReadsSourceEvenWithHealthyIndex(t *testing.T) {
	idx := newFakeIndex(true)
	idx.docs["stale"] = msg("stale")
	src := &fakeSource{items: []store.Message{msg("from-pg")}}
	svc := NewService(idx, src, logging.Discard())
	require.NoError(t, svc.ReindexFromSource(context.Background()))

	items, err := svc.ListMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"from-pg"}, ids(items))
	assert.Equal(t, 0, idx.searches)
}

func TestListMessagesWrapsSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	svc := NewService(nil, src, logging.Discard())

	_, err := svc.ListMessages(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, src.err)
}

func TestIndexOutageThenRecovery(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndex(true)
	src := &fakeSource{items: []store.Message{msg("1")}}
	svc := NewService(idx, src, logging.Discard())
	require.NoError(t, svc.ReindexFromSource(ctx))
	require.Equal(t, 1, idx.docCount())

	idx.setHealthy(false)
	created := msg("2")
	src.insert(created)
	svc.IndexMessage(created)

	// Back up, but before the recovery reindex has run.
	idx.mu.Lock()
	idx.healthy = true
	idx.mu.Unlock()

	items, err := svc.ListMessages(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, ids(items))

	found, err := svc.SearchMessages(ctx, "", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, ids(found))
	assert.Equal(t, 0, idx.searches, "out-of-sync index must not answer queries")

	idx.setHealthy(false)
	idx.setHealthy(true)
	assert.Equal(t, 2, idx.docCount(), "recovery reindexes the missed message")

	found, err = svc.SearchMessages(ctx, "", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, ids(found))
	assert.Equal(t, 1, idx.searches)
}

func TestSearchMessagesUsesSyncedIndex(t *testing.T) {
	idx := newFakeIndex(true)
	src := &fakeSource{items: []store.Message{msg("1")}}
	svc := NewService(idx, src, logging.Discard())
	require.NoError(t, svc.ReindexFromSource(context.Background()))

	items, err := svc.SearchMessages(context.Background(), "a1", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(items))
	assert.Equal(t, 1, idx.searches)
	assert.Equal(t, 0, src.searches)
}

func TestSearchMessagesFallsBackOnIndexError(t *testing.T) {
	idx := newFakeIndex(true)
	src := &fakeSource{items: []store.Message{msg("from-pg")}}
	svc := NewService(idx, src, logging.Discard())
	require.NoError(t, svc.ReindexFromSource(context.Background()))
	idx.searchErr = errors.New("boom")

	items, err := svc.SearchMessages(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"from-pg"}, ids(items))
	assert.Equal(t, 1, src.searches)
}

func TestSearchMessagesWithoutIndexClampsLimit(t *testing.T) {
	items := make([]store.Message, 0, MaxSearchLimit+5)
	for i := 0; i < MaxSearchLimit+5; i++ {
		items = append(items, msg(strconv.Itoa(i)))
	}
	src := &fakeSource{items: items}
	svc := NewService(nil, src, logging.Discard())

	got, err := svc.SearchMessages(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultSearchLimit)

	got, err = svc.SearchMessages(context.Background(), "", MaxSearchLimit*3)
	require.NoError(t, err)
	assert.Len(t, got, MaxSearchLimit)
}

func TestFailedIndexWriteTakesIndexOutOfSync(t *testing.T) {
	idx := newFakeIndex(true)
	idx.indexed = make(chan store.Message, 1)
	src := &fakeSource{items: []store.Message{msg("1")}}
	svc := NewService(idx, src, logging.Discard())
	require.NoError(t, svc.ReindexFromSource(context.Background()))

	idx.mu.Lock()
	idx.indexErr = errors.New("rejected")
	idx.mu.Unlock()
	svc.IndexMessage(msg("2"))
	select {
	case <-idx.indexed:
	case <-time.After(time.Second):
		t.Fatal("message was not sent to the index")
	}

	assert.Eventually(t, func() bool { return !svc.indexReady() }, time.Second, 10*time.Millisecond)
}

func TestIndexMessageIsAsync(t *testing.T) {
	idx := newFakeIndex(true)
	idx.indexed = make(chan store.Message, 1)
	svc := NewService(idx, &fakeSource{}, logging.Discard())

	svc.IndexMessage(msg("new"))

	select {
	case got := <-idx.indexed:
		assert.Equal(t, "new", got.ID)
	case <-time.After(time.Second):
		t.Fatal("message was not indexed")
	}
}

func TestReindexFromSource(t *testing.T) {
	idx := newFakeIndex(true)
	src := &fakeSource{items: []store.Message{msg("1"), msg("2")}}
	svc := NewService(idx, src, logging.Discard())

	require.NoError(t, svc.ReindexFromSource(context.Background()))
	assert.Equal(t, 2, idx.docCount())
	assert.True(t, svc.indexReady())
}

func TestReindexFailureLeavesIndexOutOfSync(t *testing.T) {
	idx := newFakeIndex(true)
	idx.indexErr = errors.New("task failed")
	svc := NewService(idx, &fakeSource{items: []store.Message{msg("1")}}, logging.Discard())

	require.Error(t, svc.ReindexFromSource(context.Background()))
	assert.False(t, svc.indexReady())
}

func TestReindexSkippedWhenIndexMissing(t *testing.T) {
	src := &fakeSource{items: []store.Message{msg("1")}}
	svc := NewService(nil, src, logging.Discard())

	require.NoError(t, svc.ReindexFromSource(context.Background()))
	assert.Equal(t, 0, src.calls)
}
