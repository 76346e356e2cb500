package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/conselhomais/portal"
	"github.com/conselhomais/portal/internal/infrastructure/repository"
)

// SignalService fans change events out to realtime consumers. Events are the
// same announcements the document store publishes for its own subscriptions.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{rdb: redisClient}
}

func (s *SignalService) Publish(ctx context.Context, event portal.Event) error {
	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, repository.ChangeChannel(event.Collection), jsonstr).Err()
}

// Watch streams change events for the named collections until ctx ends.
// The channel closes on teardown.
func (s *SignalService) Watch(ctx context.Context, collections []string) (<-chan portal.Event, error) {
	channels := make([]string, 0, len(collections))
	for _, c := range collections {
		channels = append(channels, repository.ChangeChannel(c))
	}

	pubsub := s.rdb.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan portal.Event)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event portal.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					slog.Debug(
						"Discarding malformed change event",
						slog.String("error", err.Error()),
						slog.String("module", "signal"),
					)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
