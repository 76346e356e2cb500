package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/conselhomais/portal"
	"github.com/conselhomais/portal/internal/domain"
)

var syncTracer = otel.Tracer("sync")

// Engine keeps live, eventually consistent mirrors of the remote
// collections. Every snapshot fully replaces the in-memory state of its
// collection; public collections are additionally mirrored into the local
// cache. The admin tier (metrics, messages, notification recipients) is
// opened and closed by the session gate.
type Engine struct {
	store       portal.RemoteStore
	cache       portal.LocalCache
	loadTimeout time.Duration

	mu         sync.RWMutex
	members    []portal.Member
	posts      []portal.BlogPost
	news       []portal.NewsItem
	tools      []portal.Tool
	meta       portal.MetaConfig
	metrics    []portal.Metric
	messages   []portal.Message
	recipients []string

	loading   bool
	pending   map[string]bool
	loadTimer *time.Timer

	ctx          context.Context
	cancels      []portal.CancelFunc
	adminCancels []portal.CancelFunc
	started      bool
	stopped      bool

	recipientSink func([]string)
}

func NewEngine(store portal.RemoteStore, cache portal.LocalCache, loadTimeout time.Duration) *Engine {
	e := &Engine{
		store:       store,
		cache:       cache,
		loadTimeout: loadTimeout,
		loading:     true,
		pending: map[string]bool{
			portal.CollectionMembers:   true,
			portal.CollectionBlogPosts: true,
			portal.CollectionNewsItems: true,
			portal.CollectionTools:     true,
			portal.SlotMetaTags:        true,
		},
		recipients: []string{},
	}
	e.seedFromCache()
	return e
}

// seedFromCache loads the last mirrored state so consumers read something
// sensible before the first snapshot lands. A non-empty mirror releases the
// loading barrier immediately (stale while revalidating).
func (e *Engine) seedFromCache() {
	seeded := false
	if v, ok := loadCached[[]portal.Member](e.cache, portal.CollectionMembers); ok && len(v) > 0 {
		e.members = v
		seeded = true
	}
	if v, ok := loadCached[[]portal.BlogPost](e.cache, portal.CollectionBlogPosts); ok && len(v) > 0 {
		e.posts = v
		seeded = true
	}
	if v, ok := loadCached[[]portal.NewsItem](e.cache, portal.CollectionNewsItems); ok && len(v) > 0 {
		e.news = v
		seeded = true
	}
	if v, ok := loadCached[[]portal.Tool](e.cache, portal.CollectionTools); ok && len(v) > 0 {
		e.tools = v
		seeded = true
	}
	if v, ok := loadCached[portal.MetaConfig](e.cache, portal.SlotMetaTags); ok {
		e.meta = v
	}
	if seeded {
		e.loading = false
		slog.Info("Serving cached data while revalidating", slog.String("module", "sync"))
	}
}

func loadCached[T any](cache portal.LocalCache, name string) (T, bool) {
	var v T
	raw, ok := cache.Get(domain.CacheKey(name))
	if !ok {
		return v, false
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, false
	}
	return v, true
}

// Start opens the public subscriptions and arms the loading timeout. A
// subscription that cannot be opened is logged and skipped; the timeout
// guarantees the barrier releases anyway.
func (e *Engine) Start(ctx context.Context) {
	_, span := syncTracer.Start(ctx, "Sync.Engine.Start")
	defer span.End()

	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.ctx = ctx
	e.loadTimer = time.AfterFunc(e.loadTimeout, e.onLoadTimeout)
	e.mu.Unlock()

	public := []struct {
		spec  portal.CollectionSpec
		apply func(portal.Snapshot)
	}{
		{portal.CollectionSpec{Name: portal.CollectionMembers}, e.applyMembers},
		{portal.CollectionSpec{Name: portal.CollectionBlogPosts, OrderBy: "date", Descending: true}, e.applyBlogPosts},
		{portal.CollectionSpec{Name: portal.CollectionNewsItems, OrderBy: "date", Descending: true}, e.applyNewsItems},
		{portal.CollectionSpec{Name: portal.CollectionTools}, e.applyTools},
		{portal.CollectionSpec{Name: portal.CollectionConfig, Slot: portal.SlotMetaTags}, e.applyMetaConfig},
	}

	for _, p := range public {
		cancel, err := e.store.Subscribe(ctx, p.spec, p.apply, e.onSubscriptionError(p.spec))
		if err != nil {
			slog.Error(
				"Failed to open subscription",
				slog.String("collection", p.spec.Key()),
				slog.String("error", err.Error()),
				slog.String("module", "sync"),
			)
			continue
		}
		e.mu.Lock()
		e.cancels = append(e.cancels, cancel)
		e.mu.Unlock()
	}
}

// StartAdmin opens the session-gated subscriptions. Idempotent while open.
func (e *Engine) StartAdmin() {
	e.mu.Lock()
	if e.stopped || !e.started || len(e.adminCancels) > 0 {
		e.mu.Unlock()
		return
	}
	ctx := e.ctx
	e.mu.Unlock()

	admin := []struct {
		spec  portal.CollectionSpec
		apply func(portal.Snapshot)
	}{
		{portal.CollectionSpec{Name: portal.CollectionMetrics}, e.applyMetrics},
		{portal.CollectionSpec{Name: portal.CollectionMessages, OrderBy: "createdAt", Descending: true}, e.applyMessages},
		{portal.CollectionSpec{Name: portal.CollectionConfig, Slot: portal.SlotInternalEmails}, e.applyRecipients},
	}

	for _, a := range admin {
		cancel, err := e.store.Subscribe(ctx, a.spec, a.apply, e.onSubscriptionError(a.spec))
		if err != nil {
			slog.Error(
				"Failed to open admin subscription",
				slog.String("collection", a.spec.Key()),
				slog.String("error", err.Error()),
				slog.String("module", "sync"),
			)
			continue
		}
		e.mu.Lock()
		e.adminCancels = append(e.adminCancels, cancel)
		e.mu.Unlock()
	}
}

// StopAdmin cancels the admin subscriptions. Stale admin data may remain in
// memory; the presentation layer never routes public reads through it.
func (e *Engine) StopAdmin() {
	e.mu.Lock()
	cancels := e.adminCancels
	e.adminCancels = nil
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Stop cancels every subscription. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	cancels := append(e.cancels, e.adminCancels...)
	e.cancels = nil
	e.adminCancels = nil
	if e.loadTimer != nil {
		e.loadTimer.Stop()
	}
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Loading reports whether the initial barrier is still up. Starts false when
// the cache seeded at least one public collection, and transitions to false
// permanently once every critical collection delivered a snapshot or the
// timeout fired.
func (e *Engine) Loading() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loading
}

// SetRecipientSink registers the consumer of recipient snapshots (the
// coalescing editor), called in addition to the engine's own state update.
func (e *Engine) SetRecipientSink(fn func([]string)) {
	e.mu.Lock()
	e.recipientSink = fn
	e.mu.Unlock()
}

func (e *Engine) onLoadTimeout() {
	e.mu.Lock()
	released := e.loading
	e.loading = false
	e.mu.Unlock()
	if released {
		slog.Warn("Loading barrier released by timeout", slog.String("module", "sync"))
	}
}

func (e *Engine) markDelivered(name string) {
	e.mu.Lock()
	delete(e.pending, name)
	done := len(e.pending) == 0
	released := false
	if done && e.loading {
		e.loading = false
		released = true
	}
	if done && e.loadTimer != nil {
		e.loadTimer.Stop()
	}
	e.mu.Unlock()
	if released {
		slog.Info("Initial snapshots received, releasing loading barrier", slog.String("module", "sync"))
	}
}

func (e *Engine) onSubscriptionError(spec portal.CollectionSpec) func(error) {
	return func(err error) {
		slog.Error(
			"Subscription error",
			slog.String("collection", spec.Key()),
			slog.String("error", err.Error()),
			slog.String("module", "sync"),
		)
	}
}

// mirror writes the decoded state of a public collection to the local cache
// under its namespaced key.
func (e *Engine) mirror(name string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	e.cache.Set(domain.CacheKey(name), string(raw))
}

func (e *Engine) applyMembers(snap portal.Snapshot) {
	data := make([]portal.Member, 0, len(snap))
	for _, doc := range snap {
		data = append(data, portal.DecodeMember(doc))
	}
	e.mu.Lock()
	e.members = data
	e.mu.Unlock()
	e.mirror(portal.CollectionMembers, data)
	e.markDelivered(portal.CollectionMembers)
}

func (e *Engine) applyBlogPosts(snap portal.Snapshot) {
	data := make([]portal.BlogPost, 0, len(snap))
	for _, doc := range snap {
		data = append(data, portal.DecodeBlogPost(doc))
	}
	e.mu.Lock()
	e.posts = data
	e.mu.Unlock()
	e.mirror(portal.CollectionBlogPosts, data)
	e.markDelivered(portal.CollectionBlogPosts)
}

func (e *Engine) applyNewsItems(snap portal.Snapshot) {
	data := make([]portal.NewsItem, 0, len(snap))
	for _, doc := range snap {
		data = append(data, portal.DecodeNewsItem(doc))
	}
	e.mu.Lock()
	e.news = data
	e.mu.Unlock()
	e.mirror(portal.CollectionNewsItems, data)
	e.markDelivered(portal.CollectionNewsItems)
}

func (e *Engine) applyTools(snap portal.Snapshot) {
	data := make([]portal.Tool, 0, len(snap))
	for _, doc := range snap {
		data = append(data, portal.DecodeTool(doc))
	}
	e.mu.Lock()
	e.tools = data
	e.mu.Unlock()
	e.mirror(portal.CollectionTools, data)
	e.markDelivered(portal.CollectionTools)
}

// An empty singleton snapshot (document not created yet) leaves the current
// value in place but still counts for the loading barrier.
func (e *Engine) applyMetaConfig(snap portal.Snapshot) {
	if len(snap) > 0 {
		data := portal.DecodeMetaConfig(snap[0])
		e.mu.Lock()
		e.meta = data
		e.mu.Unlock()
		e.mirror(portal.SlotMetaTags, data)
	}
	e.markDelivered(portal.SlotMetaTags)
}

func (e *Engine) applyMetrics(snap portal.Snapshot) {
	data := make([]portal.Metric, 0, len(snap))
	for _, doc := range snap {
		data = append(data, portal.DecodeMetric(doc))
	}
	e.mu.Lock()
	e.metrics = data
	e.mu.Unlock()
}

func (e *Engine) applyMessages(snap portal.Snapshot) {
	data := make([]portal.Message, 0, len(snap))
	for _, doc := range snap {
		data = append(data, portal.DecodeMessage(doc))
	}
	e.mu.Lock()
	e.messages = data
	e.mu.Unlock()
}

func (e *Engine) applyRecipients(snap portal.Snapshot) {
	data := []string{}
	if len(snap) > 0 {
		data = portal.DecodeRecipients(snap[0])
	}
	e.mu.Lock()
	e.recipients = data
	sink := e.recipientSink
	e.mu.Unlock()
	if sink != nil {
		sink(data)
	}
}

func (e *Engine) Members() []portal.Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]portal.Member(nil), e.members...)
}

func (e *Engine) BlogPosts() []portal.BlogPost {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]portal.BlogPost(nil), e.posts...)
}

func (e *Engine) NewsItems() []portal.NewsItem {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]portal.NewsItem(nil), e.news...)
}

func (e *Engine) Tools() []portal.Tool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]portal.Tool(nil), e.tools...)
}

func (e *Engine) Meta() portal.MetaConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.meta
}

func (e *Engine) Metrics() []portal.Metric {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]portal.Metric(nil), e.metrics...)
}

func (e *Engine) Messages() []portal.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]portal.Message(nil), e.messages...)
}

func (e *Engine) MessageByID(id string) (portal.Message, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, m := range e.messages {
		if m.ID == id {
			return m, true
		}
	}
	return portal.Message{}, false
}

func (e *Engine) Recipients() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.recipients...)
}

// BlogPostByID serves the date-preservation rule on updates.
func (e *Engine) BlogPostByID(id string) (portal.BlogPost, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.posts {
		if p.ID == id {
			return p, true
		}
	}
	return portal.BlogPost{}, false
}

func (e *Engine) NewsItemByID(id string) (portal.NewsItem, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, n := range e.news {
		if n.ID == id {
			return n, true
		}
	}
	return portal.NewsItem{}, false
}
