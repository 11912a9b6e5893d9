package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/golab/erplite/internal/watch"
)

// DefaultFeedChannel is the pub/sub channel carrying item changes.
const DefaultFeedChannel = "erplite:items:changes"

// ChangeFeed is the redis pub/sub transport between the item store and the
// low-stock watcher. Ordering is per publisher connection; there is no global
// ordering guarantee across items, and a dropped subscriber restarts by
// re-subscribing (the watcher re-seeds from a bulk query on restart).
type ChangeFeed struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewChangeFeed constructs a feed over the given redis client.
func NewChangeFeed(client *redis.Client, channel string, logger *slog.Logger) *ChangeFeed {
	if channel == "" {
		channel = DefaultFeedChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeFeed{client: client, channel: channel, logger: logger}
}

// Publish pushes one change onto the channel.
func (f *ChangeFeed) Publish(ctx context.Context, change watch.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

// Subscribe starts consuming the channel. The returned channel closes when
// the context is cancelled; undecodable payloads are logged and skipped.
func (f *ChangeFeed) Subscribe(ctx context.Context) <-chan watch.Change {
	sub := f.client.Subscribe(ctx, f.channel)
	out := make(chan watch.Change)

	go func() {
		defer close(out)
		defer func() {
			if err := sub.Close(); err != nil {
				f.logger.Warn("close feed subscription", slog.Any("error", err))
			}
		}()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change watch.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.logger.Warn("decode change payload", slog.Any("error", err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
