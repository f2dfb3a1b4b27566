// GossipBus — the production Bus implementation, built on libp2p node
// wiring (NewNode, GossipSub topic subscription, and mDNS peer
// discovery) generalized into a topic-per-DNA publish/subscribe
// transport satisfying the Bus interface.
package core

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"go.uber.org/zap"
)

const mdnsServiceTag = "holonet-mdns"

// GossipBus carries Envelopes over libp2p GossipSub topics, one topic
// per DNA space address, with peers discovered on the local network via
// mDNS.
type GossipBus struct {
	host host.Host
	ps   *pubsub.PubSub
	log  *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	subs   map[string]*pubsub.Subscription
	cancel map[string]context.CancelFunc
}

// NewGossipBus starts a libp2p host listening on listenAddr, joins
// GossipSub, and begins mDNS peer discovery.
func NewGossipBus(ctx context.Context, listenAddr string, log *zap.Logger) (*GossipBus, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		return nil, NewError(KindIO, "new_gossip_bus", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, NewError(KindIO, "new_gossip_bus", err)
	}
	bus := &GossipBus{
		host:   h,
		ps:     ps,
		log:    log,
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[string]*pubsub.Subscription),
		cancel: make(map[string]context.CancelFunc),
	}
	svc := mdns.NewMdnsService(h, mdnsServiceTag, &discoveryNotifee{host: h, log: log})
	if err := svc.Start(); err != nil {
		return nil, NewError(KindIO, "new_gossip_bus", err)
	}
	return bus, nil
}

// discoveryNotifee connects to peers mDNS finds on the local network.
type discoveryNotifee struct {
	host host.Host
	log  *zap.Logger
}

func (n *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if err := n.host.Connect(context.Background(), pi); err != nil {
		n.log.Debug("mdns peer connect failed", zap.String("peer", pi.ID.String()), zap.Error(err))
	}
}

func (b *GossipBus) topicFor(name string) (*pubsub.Topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		return t, nil
	}
	t, err := b.ps.Join(name)
	if err != nil {
		return nil, err
	}
	b.topics[name] = t
	return t, nil
}

// Publish implements Bus.
func (b *GossipBus) Publish(ctx context.Context, topic string, env Envelope) error {
	t, err := b.topicFor(topic)
	if err != nil {
		return NewError(KindIO, "gossip_publish", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return NewError(KindSerialization, "gossip_publish", err)
	}
	if err := t.Publish(ctx, raw); err != nil {
		return NewError(KindIO, "gossip_publish", err)
	}
	return nil
}

// Subscribe implements Bus.
func (b *GossipBus) Subscribe(topic string, fn func(Envelope)) (func(), error) {
	t, err := b.topicFor(topic)
	if err != nil {
		return nil, NewError(KindIO, "gossip_subscribe", err)
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, NewError(KindIO, "gossip_subscribe", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	selfID := b.host.ID()
	go func() {
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				return
			}
			if msg.ReceivedFrom == selfID {
				continue
			}
			var env Envelope
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				b.log.Warn("dropping malformed envelope", zap.Error(err))
				continue
			}
			fn(env)
		}
	}()

	b.mu.Lock()
	b.subs[topic] = sub
	b.cancel[topic] = cancel
	b.mu.Unlock()

	return func() {
		cancel()
		sub.Cancel()
	}, nil
}

// Close shuts down the libp2p host.
func (b *GossipBus) Close() error {
	b.mu.Lock()
	for _, cancel := range b.cancel {
		cancel()
	}
	b.mu.Unlock()
	return b.host.Close()
}
