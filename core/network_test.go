package core

import (
	"context"
	"testing"
	"time"
)

type fakeRequestHandler struct {
	storedAspects []EntryAspect
	fetchResult   []EntryAspect
	queryResult   []LinkResult
	directReply   []byte
}

func (f *fakeRequestHandler) HandleStoreEntryAspect(ctx context.Context, aspect EntryAspect) error {
	f.storedAspects = append(f.storedAspects, aspect)
	return nil
}

func (f *fakeRequestHandler) HandleFetchEntry(ctx context.Context, addr Address) ([]EntryAspect, error) {
	return f.fetchResult, nil
}

func (f *fakeRequestHandler) HandleQueryEntry(ctx context.Context, query LinkQuery) ([]LinkResult, error) {
	return f.queryResult, nil
}

func (f *fakeRequestHandler) HandleSendDirectMessage(ctx context.Context, from, to Address, payload []byte) ([]byte, error) {
	return f.directReply, nil
}

func (f *fakeRequestHandler) HandleGetAuthoringEntryList(ctx context.Context) ([]Address, error) {
	return []Address{"entry1"}, nil
}

func (f *fakeRequestHandler) HandleGetGossipingEntryList(ctx context.Context) ([]Address, error) {
	return []Address{"entry2"}, nil
}

func (f *fakeRequestHandler) HandleFetchValidationPackage(ctx context.Context, entryAddr Address, level ValidationPackageLevel) (*ValidationPackage, error) {
	return &ValidationPackage{Level: level, Header: ChainHeader{EntryAddress: entryAddr}}, nil
}

func newTestNetworkHandler(t *testing.T, handler RequestHandler) (*NetworkHandler, *MemoryBus) {
	t.Helper()
	bus := NewMemoryBus()
	n := NewNetworkHandler(bus, "node1", Address("dna1"), handler, nil)
	n.DefaultTimeout = 2 * time.Second
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(n.Stop)
	return n, bus
}

func TestNetworkHandlerSendDirectMessageRoundTrip(t *testing.T) {
	fh := &fakeRequestHandler{directReply: []byte("pong")}
	n, _ := newTestNetworkHandler(t, fh)

	out, err := n.SendDirectMessage(context.Background(), "agent1", "agent2", []byte("ping"), 0)
	if err != nil {
		t.Fatalf("send direct message: %v", err)
	}
	if string(out) != "pong" {
		t.Fatalf("expected pong, got %s", out)
	}
}

func TestNetworkHandlerFetchValidationPackageRoundTrip(t *testing.T) {
	fh := &fakeRequestHandler{}
	n, _ := newTestNetworkHandler(t, fh)

	pkg, err := n.FetchValidationPackage(context.Background(), "agent1", "entry1", ValidationPackageChainFull, 0)
	if err != nil {
		t.Fatalf("fetch validation package: %v", err)
	}
	if pkg.Header.EntryAddress != "entry1" {
		t.Fatalf("expected entry address entry1, got %s", pkg.Header.EntryAddress)
	}
}

func TestNetworkHandlerRequestTimesOutWithNoResponder(t *testing.T) {
	bus := NewMemoryBus()
	n := NewNetworkHandler(bus, "node1", Address("dna1"), &fakeRequestHandler{}, nil)
	n.DefaultTimeout = 50 * time.Millisecond
	// deliberately not calling n.Start(): nothing will answer this request.

	_, err := n.SendDirectMessage(context.Background(), "agent1", "agent2", []byte("ping"), 0)
	if err == nil || !IsKind(err, KindTimeout) {
		t.Fatalf("expected KindTimeout, got %v", err)
	}
}

func TestMemoryBusDeliversToMultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	got := make(chan Envelope, 2)
	unsub1, err := bus.Subscribe("topic1", func(e Envelope) { got <- e })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub1()
	unsub2, err := bus.Subscribe("topic1", func(e Envelope) { got <- e })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub2()

	if err := bus.Publish(context.Background(), "topic1", Envelope{Kind: MsgFailureResult}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	timeout := time.After(time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-timeout:
			t.Fatal("timed out waiting for both subscribers to receive the message")
		}
	}
}
