package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/conselhomais/portal"
	"github.com/conselhomais/portal/internal/infrastructure/database/models"
)

const changeChannelPrefix = "portal:changes:"

// ChangeChannel is the pub/sub channel carrying change events for one
// collection.
func ChangeChannel(collection string) string {
	return changeChannelPrefix + collection
}

var orderFieldPattern = regexp.MustCompile(`^[a-zA-Z]+$`)

// DocumentStore keeps every collection in a single jsonb-valued table and
// announces mutations on a per-collection Redis channel. Subscriptions
// re-query the full collection on every announcement, so each delivery is a
// complete snapshot rather than a diff.
type DocumentStore struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewDocumentStore(db *gorm.DB, rdb *redis.Client) *DocumentStore {
	return &DocumentStore{db: db, rdb: rdb}
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encode document value")
	}

	doc := models.Document{
		Collection: collection,
		DocID:      id,
		Value:      string(raw),
		MDate:      time.Now(),
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":  string(raw),
			"m_date": time.Now(),
		}),
	}).Create(&doc).Error
	if err != nil {
		return errors.Wrap(err, "set document")
	}

	s.publish(ctx, portal.Event{Collection: collection, DocID: id, Action: portal.EventSet})
	return nil
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return errors.Wrap(err, "encode document patch")
	}

	// jsonb concatenation merges top-level fields. Zero affected rows means
	// the document does not exist, which is not an error here.
	err = s.db.WithContext(ctx).Model(&models.Document{}).
		Where("collection = ? AND doc_id = ?", collection, id).
		Updates(map[string]any{
			"value":  gorm.Expr("value || ?::jsonb", string(raw)),
			"m_date": time.Now(),
		}).Error
	if err != nil {
		return errors.Wrap(err, "update document")
	}

	s.publish(ctx, portal.Event{Collection: collection, DocID: id, Action: portal.EventUpdate})
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&models.Document{}).Error
	if err != nil {
		return errors.Wrap(err, "delete document")
	}

	s.publish(ctx, portal.Event{Collection: collection, DocID: id, Action: portal.EventDelete})
	return nil
}

// Subscribe opens a snapshot subscription. The initial snapshot is delivered
// from the subscription's own goroutine, then one snapshot per announced
// change, in announcement order. The returned cancel discards any delivery
// still in flight.
func (s *DocumentStore) Subscribe(ctx context.Context, spec portal.CollectionSpec, onSnapshot func(portal.Snapshot), onError func(error)) (portal.CancelFunc, error) {
	subCtx, cancel := context.WithCancel(ctx)

	pubsub := s.rdb.Subscribe(subCtx, ChangeChannel(spec.Name))
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return nil, errors.Wrap(err, "subscribe "+spec.Key())
	}

	deliver := func() {
		docs, err := s.query(subCtx, spec)
		if subCtx.Err() != nil {
			return
		}
		if err != nil {
			onError(err)
			return
		}
		onSnapshot(docs)
	}

	go func() {
		deliver()
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	return func() {
		cancel()
		pubsub.Close()
	}, nil
}

func (s *DocumentStore) query(ctx context.Context, spec portal.CollectionSpec) (portal.Snapshot, error) {
	q := s.db.WithContext(ctx).Where("collection = ?", spec.Name)
	if spec.Slot != "" {
		q = q.Where("doc_id = ?", spec.Slot)
	}
	if spec.OrderBy != "" && orderFieldPattern.MatchString(spec.OrderBy) {
		dir := "ASC"
		if spec.Descending {
			dir = "DESC"
		}
		q = q.Order(fmt.Sprintf("value->>'%s' %s", spec.OrderBy, dir))
	}

	var rows []models.Document
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query "+spec.Key())
	}

	snapshot := make(portal.Snapshot, 0, len(rows))
	for _, row := range rows {
		snapshot = append(snapshot, portal.Document{
			ID:    row.DocID,
			Value: json.RawMessage(row.Value),
		})
	}
	return snapshot, nil
}

// A failed announcement is logged, not returned: the row is committed and
// subscribers will catch up on the next change.
func (s *DocumentStore) publish(ctx context.Context, event portal.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, ChangeChannel(event.Collection), payload).Err(); err != nil {
		slog.Warn(
			"Failed to publish change event",
			slog.String("collection", event.Collection),
			slog.String("error", err.Error()),
			slog.String("module", "repository"),
		)
	}
}
