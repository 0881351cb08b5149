package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// relayStopTimeout bounds how long Unsubscribe waits for a cancelled relay
// to finish unsubscribing from the broker.
const relayStopTimeout = 5 * time.Second

// relay bridges one broker subscription to the local connections of one
// channel key. It lives exactly as long as the key has local subscribers,
// unless its receive loop dies first (broker outage), in which case it reaps
// its own handle so the next subscriber starts a fresh one.
type relay struct {
	key    ChannelKey
	sub    Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// Gateway is the façade the transport and write paths talk to: attach a
// connection, detach it, publish an event. It owns the relay table and is
// the only mutator of the registry, so the "first subscriber starts the
// relay / last subscriber stops it" decisions are serialized under one lock.
type Gateway struct {
	log      zerolog.Logger
	broker   Broker
	registry *Registry

	mu     sync.Mutex
	relays map[ChannelKey]*relay
}

func NewGateway(broker Broker, log zerolog.Logger) *Gateway {
	return &Gateway{
		log:      log.With().Str("component", "gateway").Logger(),
		broker:   broker,
		registry: NewRegistry(),
		relays:   make(map[ChannelKey]*relay),
	}
}

// Subscribe registers conn to receive every payload for key. If conn is the
// first local subscriber, the broker subscription is established before
// Subscribe returns: a publish for key issued after this call cannot be
// missed because of a not-yet-started relay.
func (g *Gateway) Subscribe(ctx context.Context, key ChannelKey, conn Conn) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.registry.Add(key, conn)

	if _, ok := g.relays[key]; ok {
		return nil
	}

	sub, err := g.broker.Subscribe(ctx, key.Topic())
	if err != nil {
		g.registry.Remove(key, conn)
		return err
	}

	rctx, cancel := context.WithCancel(context.Background())
	r := &relay{key: key, sub: sub, cancel: cancel, done: make(chan struct{})}
	g.relays[key] = r
	go g.run(rctx, r)

	g.log.Debug().Str("topic", key.Topic()).Msg("relay started")
	return nil
}

// Unsubscribe detaches conn from key. If conn was the last local subscriber,
// the relay is cancelled and Unsubscribe waits (bounded) for it to stop, so
// callers can rely on the broker subscription being gone shortly after the
// last client leaves.
func (g *Gateway) Unsubscribe(key ChannelKey, conn Conn) {
	g.mu.Lock()
	empty := g.registry.Remove(key, conn)
	var stopped chan struct{}
	if r, ok := g.relays[key]; ok && empty {
		delete(g.relays, key)
		r.cancel()
		stopped = r.done
	}
	g.mu.Unlock()

	if stopped == nil {
		return
	}
	select {
	case <-stopped:
	case <-time.After(relayStopTimeout):
		g.log.Warn().Str("topic", key.Topic()).Msg("relay did not stop in time")
	}
}

// Publish sends payload to the broker topic for key. It neither requires nor
// consults local subscribers; other processes may be the only listeners.
func (g *Gateway) Publish(ctx context.Context, key ChannelKey, payload []byte) error {
	return g.broker.Publish(ctx, key.Topic(), payload)
}

// Subscribers reports the number of live local connections for key.
func (g *Gateway) Subscribers(key ChannelKey) int {
	return g.registry.Count(key)
}

// run is the relay receive loop. Each inbound payload is delivered to a
// snapshot of the key's local connections; one broken connection never
// blocks or aborts delivery to the rest.
func (g *Gateway) run(ctx context.Context, r *relay) {
	defer close(r.done)
	defer r.sub.Close()

	log := g.log.With().Str("topic", r.key.Topic()).Logger()
	for {
		payload, err := r.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Broker-side failure. Drop the handle so the next subscriber
			// re-establishes a live subscription instead of trusting a dead
			// relay forever.
			log.Error().Err(err).Msg("relay receive failed")
			g.reap(r)
			return
		}

		for _, c := range g.registry.Snapshot(r.key) {
			if err := c.Send(payload); err != nil {
				log.Warn().Err(err).Str("conn_id", c.ID()).Msg("send to subscriber failed")
			}
		}
	}
}

// reap removes r's handle if it is still the current relay for its key.
// A replacement relay started after an earlier reap must not be displaced.
func (g *Gateway) reap(r *relay) {
	g.mu.Lock()
	if g.relays[r.key] == r {
		delete(g.relays, r.key)
	}
	g.mu.Unlock()
}

// relayActive reports whether a relay handle currently exists for key.
func (g *Gateway) relayActive(key ChannelKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.relays[key]
	return ok
}
