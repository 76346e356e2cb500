package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/conselhomais/portal"
	"github.com/conselhomais/portal/internal/domain"
)

// --- fakes shared by the service tests ---

type storeWrite struct {
	collection string
	id         string
	value      any
}

type storePatch struct {
	collection string
	id         string
	patch      map[string]any
}

type fakeStore struct {
	mu        sync.Mutex
	snapshots map[string]func(portal.Snapshot)
	cancelled []string
	sets      []storeWrite
	updates   []storePatch
	deletes   []string
	setErr    error
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: map[string]func(portal.Snapshot){}}
}

func (s *fakeStore) Subscribe(ctx context.Context, spec portal.CollectionSpec, onSnapshot func(portal.Snapshot), onError func(error)) (portal.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := spec.Key()
	s.snapshots[key] = onSnapshot
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cancelled = append(s.cancelled, key)
		delete(s.snapshots, key)
	}, nil
}

func (s *fakeStore) Set(ctx context.Context, collection, id string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.sets = append(s.sets, storeWrite{collection, id, value})
	return nil
}

func (s *fakeStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, storePatch{collection, id, patch})
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, collection+"/"+id)
	return nil
}

func (s *fakeStore) deliver(t *testing.T, key string, snap portal.Snapshot) {
	t.Helper()
	s.mu.Lock()
	fn, ok := s.snapshots[key]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription open for %s", key)
	}
	fn(snap)
}

func (s *fakeStore) subscribed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshots[key]
	return ok
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}}
}

func (c *fakeCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func doc(t *testing.T, id string, v any) portal.Document {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return portal.Document{ID: id, Value: raw}
}

// --- tests ---

func TestEngineLoadingBarrierReleasesAfterAllSnapshots(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, newFakeCache(), time.Hour)
	engine.Start(context.Background())
	defer engine.Stop()

	if !engine.Loading() {
		t.Fatalf("expected loading before any snapshot")
	}

	store.deliver(t, portal.CollectionMembers, portal.Snapshot{})
	store.deliver(t, portal.CollectionBlogPosts, portal.Snapshot{})
	store.deliver(t, portal.CollectionNewsItems, portal.Snapshot{})
	store.deliver(t, portal.CollectionTools, portal.Snapshot{})

	if !engine.Loading() {
		t.Fatalf("expected loading with one collection outstanding")
	}

	store.deliver(t, portal.SlotMetaTags, portal.Snapshot{})

	if engine.Loading() {
		t.Fatalf("expected barrier released after last snapshot")
	}
}

func TestEngineLoadingBarrierReleasesOnTimeout(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, newFakeCache(), 10*time.Millisecond)
	engine.Start(context.Background())
	defer engine.Stop()

	deadline := time.Now().Add(time.Second)
	for engine.Loading() {
		if time.Now().After(deadline) {
			t.Fatalf("barrier never released by timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngineCacheSeedSkipsBarrier(t *testing.T) {
	cache := newFakeCache()
	cache.Set(domain.CacheKey(portal.CollectionMembers), `[{"id":"1","name":"Ana","specialization":["Direito"]}]`)

	engine := NewEngine(newFakeStore(), cache, time.Hour)

	if engine.Loading() {
		t.Fatalf("expected cache seed to release the barrier")
	}
	members := engine.Members()
	if len(members) != 1 || members[0].Name != "Ana" {
		t.Fatalf("expected cached member served, got %v", members)
	}
}

func TestEngineSnapshotReplacesStateAndMirrors(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	engine := NewEngine(store, cache, time.Hour)
	engine.Start(context.Background())
	defer engine.Stop()

	store.deliver(t, portal.CollectionBlogPosts, portal.Snapshot{
		doc(t, "2", portal.BlogPost{ID: "2", Title: "b", Date: "2025-02-01"}),
		doc(t, "1", portal.BlogPost{ID: "1", Title: "a", Date: "2025-01-01"}),
	})

	if got := engine.BlogPosts(); len(got) != 2 || got[0].ID != "2" {
		t.Fatalf("unexpected posts after first snapshot: %v", got)
	}

	store.deliver(t, portal.CollectionBlogPosts, portal.Snapshot{
		doc(t, "2", portal.BlogPost{ID: "2", Title: "b", Date: "2025-02-01"}),
	})

	if got := engine.BlogPosts(); len(got) != 1 {
		t.Fatalf("expected snapshot to replace state wholesale, got %v", got)
	}

	raw, ok := cache.Get(domain.CacheKey(portal.CollectionBlogPosts))
	if !ok {
		t.Fatalf("expected posts mirrored to cache")
	}
	var mirrored []portal.BlogPost
	if err := json.Unmarshal([]byte(raw), &mirrored); err != nil {
		t.Fatalf("mirror not decodable: %v", err)
	}
	if len(mirrored) != 1 || mirrored[0].ID != "2" {
		t.Fatalf("mirror out of date: %v", mirrored)
	}
}

func TestEngineEmptyMetaSnapshotKeepsValue(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, newFakeCache(), time.Hour)
	engine.Start(context.Background())
	defer engine.Stop()

	store.deliver(t, portal.SlotMetaTags, portal.Snapshot{
		doc(t, portal.SlotMetaTags, portal.MetaConfig{Title: "Conselho Mais"}),
	})
	store.deliver(t, portal.SlotMetaTags, portal.Snapshot{})

	if got := engine.Meta(); got.Title != "Conselho Mais" {
		t.Fatalf("expected previous meta kept on empty snapshot, got %+v", got)
	}
}

func TestEngineAdminTierLifecycle(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, newFakeCache(), time.Hour)
	engine.Start(context.Background())
	defer engine.Stop()

	if store.subscribed(portal.CollectionMessages) {
		t.Fatalf("admin subscriptions must not open before StartAdmin")
	}

	engine.StartAdmin()
	engine.StartAdmin() // no-op while open

	if !store.subscribed(portal.CollectionMessages) || !store.subscribed(portal.CollectionMetrics) || !store.subscribed(portal.SlotInternalEmails) {
		t.Fatalf("expected admin subscriptions open")
	}

	store.deliver(t, portal.CollectionMessages, portal.Snapshot{
		doc(t, "m1", portal.Message{ID: "m1", Name: "Ana", Status: portal.StatusNew}),
	})

	if msg, ok := engine.MessageByID("m1"); !ok || msg.Name != "Ana" {
		t.Fatalf("expected message in state, got %v %v", msg, ok)
	}

	engine.StopAdmin()
	if store.subscribed(portal.CollectionMessages) {
		t.Fatalf("expected admin subscriptions cancelled")
	}

	// reopening after a sign-out works
	engine.StartAdmin()
	if !store.subscribed(portal.CollectionMessages) {
		t.Fatalf("expected admin subscriptions reopened")
	}
}

func TestEngineRecipientSink(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, newFakeCache(), time.Hour)
	engine.Start(context.Background())
	defer engine.Stop()

	var got []string
	engine.SetRecipientSink(func(list []string) { got = list })

	engine.StartAdmin()
	store.deliver(t, portal.SlotInternalEmails, portal.Snapshot{
		doc(t, portal.SlotInternalEmails, portal.RecipientConfig{Emails: []string{"ana@x.com", "ops@x.com"}}),
	})

	if len(got) != 2 || got[0] != "ana@x.com" {
		t.Fatalf("sink did not receive recipients: %v", got)
	}
	if r := engine.Recipients(); len(r) != 2 {
		t.Fatalf("engine state missing recipients: %v", r)
	}
}

func TestEngineStopCancelsEverything(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, newFakeCache(), time.Hour)
	engine.Start(context.Background())
	engine.StartAdmin()

	engine.Stop()
	engine.Stop() // idempotent

	store.mu.Lock()
	cancelled := len(store.cancelled)
	store.mu.Unlock()
	if cancelled != 8 {
		t.Fatalf("expected 8 cancelled subscriptions, got %d", cancelled)
	}
}
