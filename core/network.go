// Network Handler — the message bus abstraction, generalized from
// libp2p/GossipSub node wiring (NewNode/mDNS discovery) into a
// transport-agnostic request/response dispatcher satisfied by either a
// real GossipBus or an in-memory MemoryBus (the sim1h/sim2h-equivalent
// test network plugged in as an interchangeable collaborator).
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MessageKind enumerates the closed wire-message set.
type MessageKind string

const (
	MsgStoreEntryAspect             MessageKind = "StoreEntryAspect"
	MsgFetchEntry                   MessageKind = "FetchEntry"
	MsgFetchEntryResult             MessageKind = "FetchEntryResult"
	MsgQueryEntry                   MessageKind = "QueryEntry"
	MsgQueryEntryResult             MessageKind = "QueryEntryResult"
	MsgSendDirectMessage            MessageKind = "SendDirectMessage"
	MsgSendDirectMessageResult      MessageKind = "SendDirectMessageResult"
	MsgGetAuthoringEntryList        MessageKind = "GetAuthoringEntryList"
	MsgGetAuthoringEntryListResult  MessageKind = "GetAuthoringEntryListResult"
	MsgGetGossipingEntryList        MessageKind = "GetGossipingEntryList"
	MsgGetGossipingEntryListResult  MessageKind = "GetGossipingEntryListResult"
	MsgFetchValidationPackage       MessageKind = "FetchValidationPackage"
	MsgFetchValidationPackageResult MessageKind = "FetchValidationPackageResult"
	MsgFailureResult                MessageKind = "FailureResult"
)

// Envelope is the wire-level unit carried over the bus: every request-
// bearing variant is tagged with a space (DNA) address, a process-unique
// request ID, and the provenances relevant to the message.
type Envelope struct {
	Kind         MessageKind    `json:"kind"`
	SpaceAddress Address        `json:"space_address,omitempty"`
	RequestID    string         `json:"request_id"`
	Provenances  []Provenance   `json:"provenances,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Bus is the transport abstraction: publish/subscribe over named topics.
// MemoryBus and GossipBus both implement it; NetworkHandler's dispatch
// logic is identical over either.
type Bus interface {
	Publish(ctx context.Context, topic string, env Envelope) error
	Subscribe(topic string, fn func(Envelope)) (unsubscribe func(), err error)
	Close() error
}

// RequestHandler answers inbound requests addressed to this node — the
// local instance implements it to serve HandleFetchEntry, HandleQueryEntry,
// etc.
type RequestHandler interface {
	HandleStoreEntryAspect(ctx context.Context, aspect EntryAspect) error
	HandleFetchEntry(ctx context.Context, addr Address) ([]EntryAspect, error)
	HandleQueryEntry(ctx context.Context, query LinkQuery) ([]LinkResult, error)
	HandleSendDirectMessage(ctx context.Context, from, to Address, payload []byte) ([]byte, error)
	HandleGetAuthoringEntryList(ctx context.Context) ([]Address, error)
	HandleGetGossipingEntryList(ctx context.Context) ([]Address, error)
	HandleFetchValidationPackage(ctx context.Context, entryAddr Address, level ValidationPackageLevel) (*ValidationPackage, error)
}

// NetworkHandler wires a Bus, this node's RequestHandler, and the
// pending-request bookkeeping monotonic request IDs need to match
// responses back to their originating futures.
type NetworkHandler struct {
	bus     Bus
	nodeID  string
	topic   Address
	handler RequestHandler
	log     *zap.Logger

	counter uint64

	mu          sync.Mutex
	pending     map[string]chan Envelope
	unsubscribe func()

	DefaultTimeout time.Duration
}

// NewNetworkHandler constructs a handler serving the DNA named by topic,
// dispatching inbound requests to handler.
func NewNetworkHandler(bus Bus, nodeID string, topic Address, handler RequestHandler, log *zap.Logger) *NetworkHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &NetworkHandler{
		bus:            bus,
		nodeID:         nodeID,
		topic:          topic,
		handler:        handler,
		log:            log,
		pending:        make(map[string]chan Envelope),
		DefaultTimeout: 60 * time.Second,
	}
}

// Start subscribes to this handler's topic.
func (n *NetworkHandler) Start() error {
	unsub, err := n.bus.Subscribe(n.topic.String(), n.dispatch)
	if err != nil {
		return NewError(KindLifecycle, "network_start", err)
	}
	n.unsubscribe = unsub
	return nil
}

// Stop unsubscribes from the bus.
func (n *NetworkHandler) Stop() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
}

func (n *NetworkHandler) nextRequestID() string {
	c := atomic.AddUint64(&n.counter, 1)
	return fmt.Sprintf("%s-%d", n.nodeID, c)
}

func (n *NetworkHandler) dispatch(env Envelope) {
	switch env.Kind {
	case MsgFetchEntryResult, MsgQueryEntryResult, MsgSendDirectMessageResult,
		MsgGetAuthoringEntryListResult, MsgGetGossipingEntryListResult,
		MsgFetchValidationPackageResult, MsgFailureResult:
		n.resolvePending(env)
		return
	}

	ctx := context.Background()
	resp, err := n.handleRequest(ctx, env)
	if err != nil {
		resp = n.failureEnvelope(env, err)
	}
	if pubErr := n.bus.Publish(ctx, n.topic.String(), resp); pubErr != nil {
		n.log.Warn("failed to publish response", zap.Error(pubErr))
	}
}

func (n *NetworkHandler) resolvePending(env Envelope) {
	n.mu.Lock()
	ch, ok := n.pending[env.RequestID]
	if ok {
		delete(n.pending, env.RequestID)
	}
	n.mu.Unlock()
	if ok {
		ch <- env
	}
}

func (n *NetworkHandler) failureEnvelope(req Envelope, err error) Envelope {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return Envelope{Kind: MsgFailureResult, SpaceAddress: n.topic, RequestID: req.RequestID, Payload: payload}
}

// handleRequest routes one inbound request envelope to the local
// RequestHandler and builds its response envelope.
func (n *NetworkHandler) handleRequest(ctx context.Context, env Envelope) (Envelope, error) {
	switch env.Kind {
	case MsgStoreEntryAspect:
		var aspect EntryAspect
		if err := json.Unmarshal(env.Payload, &aspect); err != nil {
			return Envelope{}, NewError(KindSerialization, "handle_store_entry_aspect", err)
		}
		if err := n.handler.HandleStoreEntryAspect(ctx, aspect); err != nil {
			return Envelope{}, err
		}
		return n.ok(env, MsgFetchEntryResult, struct{}{}), nil

	case MsgFetchEntry:
		var req struct {
			Addr Address `json:"addr"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Envelope{}, NewError(KindSerialization, "handle_fetch_entry", err)
		}
		aspects, err := n.handler.HandleFetchEntry(ctx, req.Addr)
		if err != nil {
			return Envelope{}, err
		}
		return n.ok(env, MsgFetchEntryResult, struct {
			Aspects []EntryAspect `json:"aspects"`
		}{aspects}), nil

	case MsgQueryEntry:
		var q LinkQueryWire
		if err := json.Unmarshal(env.Payload, &q); err != nil {
			return Envelope{}, NewError(KindSerialization, "handle_query_entry", err)
		}
		results, err := n.handler.HandleQueryEntry(ctx, q.toLinkQuery())
		if err != nil {
			return Envelope{}, err
		}
		return n.ok(env, MsgQueryEntryResult, struct {
			Results []LinkResult `json:"results"`
		}{results}), nil

	case MsgSendDirectMessage:
		var req struct {
			From    Address `json:"from"`
			To      Address `json:"to"`
			Payload []byte  `json:"payload"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Envelope{}, NewError(KindSerialization, "handle_send_direct_message", err)
		}
		out, err := n.handler.HandleSendDirectMessage(ctx, req.From, req.To, req.Payload)
		if err != nil {
			return Envelope{}, err
		}
		return n.ok(env, MsgSendDirectMessageResult, struct {
			Payload []byte `json:"payload"`
		}{out}), nil

	case MsgGetAuthoringEntryList:
		addrs, err := n.handler.HandleGetAuthoringEntryList(ctx)
		if err != nil {
			return Envelope{}, err
		}
		return n.ok(env, MsgGetAuthoringEntryListResult, struct {
			Addrs []Address `json:"addrs"`
		}{addrs}), nil

	case MsgGetGossipingEntryList:
		addrs, err := n.handler.HandleGetGossipingEntryList(ctx)
		if err != nil {
			return Envelope{}, err
		}
		return n.ok(env, MsgGetGossipingEntryListResult, struct {
			Addrs []Address `json:"addrs"`
		}{addrs}), nil

	case MsgFetchValidationPackage:
		var req struct {
			EntryAddr Address                 `json:"entry_address"`
			Level     ValidationPackageLevel  `json:"level"`
		}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Envelope{}, NewError(KindSerialization, "handle_fetch_validation_package", err)
		}
		pkg, err := n.handler.HandleFetchValidationPackage(ctx, req.EntryAddr, req.Level)
		if err != nil {
			return Envelope{}, err
		}
		return n.ok(env, MsgFetchValidationPackageResult, pkg), nil

	default:
		return Envelope{}, NewError(KindDNA, "handle_request", fmt.Errorf("unknown message kind %s", env.Kind))
	}
}

func (n *NetworkHandler) ok(req Envelope, kind MessageKind, body interface{}) Envelope {
	payload, _ := json.Marshal(body)
	return Envelope{Kind: kind, SpaceAddress: n.topic, RequestID: req.RequestID, Payload: payload}
}

// request publishes a request envelope and awaits its matching response
// by request ID, resolving to KindTimeout if none arrives in time.
func (n *NetworkHandler) request(ctx context.Context, kind MessageKind, body interface{}, timeout time.Duration) (Envelope, error) {
	if timeout <= 0 {
		timeout = n.DefaultTimeout
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, NewError(KindSerialization, "network_request", err)
	}
	reqID := n.nextRequestID()
	env := Envelope{Kind: kind, SpaceAddress: n.topic, RequestID: reqID, Payload: payload}

	ch := make(chan Envelope, 1)
	n.mu.Lock()
	n.pending[reqID] = ch
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		delete(n.pending, reqID)
		n.mu.Unlock()
	}()

	if err := n.bus.Publish(ctx, n.topic.String(), env); err != nil {
		return Envelope{}, NewError(KindIO, "network_request", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Kind == MsgFailureResult {
			var fail struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(resp.Payload, &fail)
			return Envelope{}, NewError(KindIO, "network_request", fmt.Errorf("%s", fail.Error))
		}
		return resp, nil
	case <-timer.C:
		return Envelope{}, NewError(KindTimeout, "network_request", fmt.Errorf("%s timed out after %s", kind, timeout))
	case <-ctx.Done():
		return Envelope{}, NewError(KindTimeout, "network_request", ctx.Err())
	}
}

// FetchValidationPackage implements PackageFetcher.
func (n *NetworkHandler) FetchValidationPackage(ctx context.Context, provenance Address, entryAddr Address, level ValidationPackageLevel, timeout time.Duration) (*ValidationPackage, error) {
	resp, err := n.request(ctx, MsgFetchValidationPackage, struct {
		EntryAddr Address                `json:"entry_address"`
		Level     ValidationPackageLevel `json:"level"`
	}{entryAddr, level}, timeout)
	if err != nil {
		return nil, err
	}
	var pkg ValidationPackage
	if err := json.Unmarshal(resp.Payload, &pkg); err != nil {
		return nil, NewError(KindSerialization, "fetch_validation_package", err)
	}
	return &pkg, nil
}

// SendDirectMessage delivers payload to to's inbox via the bus and
// returns the recipient's reply.
func (n *NetworkHandler) SendDirectMessage(ctx context.Context, from, to Address, payload []byte, timeout time.Duration) ([]byte, error) {
	resp, err := n.request(ctx, MsgSendDirectMessage, struct {
		From    Address `json:"from"`
		To      Address `json:"to"`
		Payload []byte  `json:"payload"`
	}{from, to, payload}, timeout)
	if err != nil {
		return nil, err
	}
	var out struct {
		Payload []byte `json:"payload"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return nil, NewError(KindSerialization, "send_direct_message", err)
	}
	return out.Payload, nil
}

// LinkQueryWire is LinkQuery's wire-safe form: regexes serialize as
// their pattern strings.
type LinkQueryWire struct {
	Base          Address    `json:"base"`
	LinkTypeRegex string     `json:"link_type_regex,omitempty"`
	TagRegex      string     `json:"tag_regex,omitempty"`
	Crud          CrudFilter `json:"crud"`
	PageNumber    int        `json:"page_number"`
	PageSize      int        `json:"page_size"`
}

func (w LinkQueryWire) toLinkQuery() LinkQuery {
	q := LinkQuery{Base: w.Base, Crud: w.Crud, PageNumber: w.PageNumber, PageSize: w.PageSize}
	if w.LinkTypeRegex != "" {
		if re, err := compileRegex(w.LinkTypeRegex); err == nil {
			q.LinkTypeRegex = re
		}
	}
	if w.TagRegex != "" {
		if re, err := compileRegex(w.TagRegex); err == nil {
			q.TagRegex = re
		}
	}
	return q
}

// MemoryBus is an in-process publish/subscribe bus: the interchangeable
// test-network collaborator allows in place of sim1h/sim2h.
// Delivery is asynchronous (one goroutine per publish) so that a
// subscriber's handler publishing a response cannot deadlock its own
// dispatch.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]func(Envelope)
}

// NewMemoryBus constructs an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]func(Envelope))}
}

// Publish implements Bus.
func (b *MemoryBus) Publish(_ context.Context, topic string, env Envelope) error {
	b.mu.RLock()
	fns := append([]func(Envelope){}, b.subs[topic]...)
	b.mu.RUnlock()
	for _, fn := range fns {
		fn := fn
		go fn(env)
	}
	return nil
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(topic string, fn func(Envelope)) (func(), error) {
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], fn)
	idx := len(b.subs[topic]) - 1
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		fns := b.subs[topic]
		if idx < len(fns) {
			fns[idx] = func(Envelope) {} // no-op in place; preserves other subscribers' indices
		}
	}, nil
}

// Close implements Bus.
func (b *MemoryBus) Close() error { return nil }
