package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultRedisChannel = "qms:state"

// RedisRelay mirrors hub events onto a Redis pub/sub channel so viewers
// attached to other processes see the same state. Publish only queues;
// Run does the network I/O.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	timeout time.Duration
	queue   chan Event
	logger  zerolog.Logger
}

type RelayOptions struct {
	Channel string
	Timeout time.Duration
	Logger  zerolog.Logger
}

func NewRedisRelay(client *redis.Client, options RelayOptions) *RedisRelay {
	channel := options.Channel
	if channel == "" {
		channel = DefaultRedisChannel
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		timeout: timeout,
		queue:   make(chan Event, 1),
		logger:  options.Logger,
	}
}

func (r *RedisRelay) Origin() string {
	return r.origin
}

// Publish keeps only the newest pending event; every event carries the
// full state so older pending ones are redundant.
func (r *RedisRelay) Publish(event Event) {
	if event.Origin != "" && event.Origin != r.origin {
		return
	}
	event.Origin = r.origin
	for {
		select {
		case r.queue <- event:
			return
		default:
		}
		select {
		case <-r.queue:
		default:
		}
	}
}

func (r *RedisRelay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-r.queue:
			payload, err := json.Marshal(event)
			if err != nil {
				r.logger.Error().Err(err).Msg("encode relay event")
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
			err = r.client.Publish(pubCtx, r.channel, payload).Err()
			cancel()
			if err != nil {
				r.logger.Error().Err(err).Str("channel", r.channel).Msg("redis publish failed")
			}
		}
	}
}

// Forward hands events from other processes to target until ctx is
// done. Events this relay sent itself are skipped. Their state belongs
// to another engine, so target should resync rather than republish it
// to local viewers.
func (r *RedisRelay) Forward(ctx context.Context, target Publisher) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			event, ok := r.decodeRemote([]byte(msg.Payload))
			if !ok {
				continue
			}
			target.Publish(event)
		}
	}
}

func (r *RedisRelay) decodeRemote(payload []byte) (Event, bool) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		r.logger.Warn().Err(err).Msg("discard malformed relay event")
		return Event{}, false
	}
	if event.Origin == r.origin {
		return Event{}, false
	}
	return event, true
}
