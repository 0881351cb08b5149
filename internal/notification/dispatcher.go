package notification

import (
	"context"

	"github.com/rs/zerolog"

	"hobbyhub/internal/realtime"
)

const queueSize = 1024

// Publisher is what the dispatcher needs from the gateway.
type Publisher interface {
	Publish(ctx context.Context, key realtime.ChannelKey, payload []byte) error
}

type event struct {
	key     realtime.ChannelKey
	payload []byte
}

// Dispatcher is the post-commit event queue: write paths hand it a channel
// key and payload after their transaction commits, and a single background
// goroutine pushes the events to the broker. Enqueueing never blocks the
// request handler; when the queue is saturated events are dropped, matching
// the best-effort contract of real-time delivery.
type Dispatcher struct {
	log   zerolog.Logger
	gw    Publisher
	queue chan event
}

func NewDispatcher(gw Publisher, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		log:   log.With().Str("component", "dispatcher").Logger(),
		gw:    gw,
		queue: make(chan event, queueSize),
	}
}

// Dispatch enqueues payload for delivery to key. Non-blocking.
func (d *Dispatcher) Dispatch(key realtime.ChannelKey, payload []byte) {
	select {
	case d.queue <- event{key: key, payload: payload}:
	default:
		d.log.Warn().Str("topic", key.Topic()).Msg("dispatch queue full, dropping event")
	}
}

// Notify encodes env and enqueues it for every recipient's user channel.
func (d *Dispatcher) Notify(env Envelope, userIDs ...int64) {
	payload, err := env.Encode()
	if err != nil {
		d.log.Error().Err(err).Str("type", string(env.Type)).Msg("encode notification")
		return
	}
	for _, uid := range userIDs {
		d.Dispatch(realtime.UserChannel(uid), payload)
	}
}

// Run consumes the queue until ctx is cancelled. Publish failures are logged
// and dropped; durable state is authoritative and recoverable via history.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			if err := d.gw.Publish(ctx, e.key, e.payload); err != nil {
				d.log.Warn().Err(err).Str("topic", e.key.Topic()).Msg("publish failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
