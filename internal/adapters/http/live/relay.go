package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
)

// DefaultChannel is the redis pub/sub channel carrying live frames.
const DefaultChannel = "rsvp:live"

// ErrRelay wraps redis failures of the relay.
var ErrRelay = errors.New("live relay")

// Relay shares live frames between instances through redis pub/sub. Publish
// sends to redis only; Run feeds every received frame to the local hub, so a
// process sees its own inserts the same way it sees its peers'.
type Relay struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	logger  logger.Logger
}

// NewRelay creates a relay on channel. An empty channel uses DefaultChannel.
func NewRelay(client redis.UniversalClient, hub *Hub, channel string, log logger.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.Get()
	}
	return &Relay{client: client, channel: channel, hub: hub, logger: log.Named("live-relay")}
}

// Publish implements Publisher.
func (r *Relay) Publish(ctx context.Context, g model.Guest) { //nolint:gocritic // hugeParam: guest is copied once
	frame, err := Encode(g)
	if err != nil {
		r.logger.Error(ctx, "encode live event", logger.Error(err))
		return
	}
	if err := r.client.Publish(ctx, r.channel, frame).Err(); err != nil {
		r.logger.Warn(ctx, "relay publish failed, delivering locally", logger.Error(err))
		r.hub.Broadcast(frame)
	}
}

// Run subscribes and forwards frames until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: subscribe %s: %w", ErrRelay, r.channel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.hub.Broadcast([]byte(msg.Payload))
		}
	}
}

var _ Publisher = (*Relay)(nil)
