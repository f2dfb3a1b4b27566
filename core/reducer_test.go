package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func countingReducer(old *StateTree, action Action) *StateTree {
	next := old.Clone()
	if action.Kind == ActionCommit {
		if n, ok := action.Payload.(Address); ok {
			next.Agent.TopChainHeader = &n
		}
	}
	return next
}

func TestReducerCoreDispatchAppliesActionsInOrder(t *testing.T) {
	rc := NewReducerCore(nil, countingReducer, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rc.Run(ctx)

	ch, remove := rc.AddObserver()
	defer remove()

	first := Address("first")
	rc.Dispatch(Action{Kind: ActionCommit, Payload: first})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the reducer to process the dispatched action")
	}

	snap := rc.Snapshot()
	if snap.Agent.TopChainHeader == nil || *snap.Agent.TopChainHeader != first {
		t.Fatalf("expected top chain header %s, got %+v", first, snap.Agent.TopChainHeader)
	}
}

func TestReducerCorePersistsOnlySelectedActionKinds(t *testing.T) {
	var persisted []*StateTree
	persist := func(s *StateTree) error {
		persisted = append(persisted, s)
		return nil
	}
	rc := NewReducerCore(nil, countingReducer, []ActionKind{ActionCommit}, persist, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rc.Run(ctx)

	ch, remove := rc.AddObserver()
	defer remove()

	rc.Dispatch(Action{Kind: ActionNetworkEvent, Payload: 1})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the non-persisted action")
	}
	if len(persisted) != 0 {
		t.Fatalf("expected no persistence for ActionNetworkEvent, got %d calls", len(persisted))
	}

	rc.Dispatch(Action{Kind: ActionCommit, Payload: Address("x")})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the persisted action")
	}
	if len(persisted) != 1 {
		t.Fatalf("expected exactly one persistence call for ActionCommit, got %d", len(persisted))
	}
}

func TestReducerCoreShutdownStopsRun(t *testing.T) {
	rc := NewReducerCore(nil, countingReducer, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		rc.Run(context.Background())
		close(done)
	}()

	rc.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after Shutdown")
	}
}

func TestBlockOnReturnsOnceConditionBecomesReady(t *testing.T) {
	rc := NewReducerCore(nil, countingReducer, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rc.Run(ctx)

	ready := make(chan struct{})
	var once sync.Once
	go func() {
		<-ready
		rc.Dispatch(Action{Kind: ActionCommit, Payload: Address("done")})
	}()

	result, err := BlockOn(context.Background(), rc, func() (Address, bool) {
		snap := rc.Snapshot()
		if snap.Agent.TopChainHeader != nil {
			return *snap.Agent.TopChainHeader, true
		}
		once.Do(func() { close(ready) })
		return "", false
	})
	if err != nil {
		t.Fatalf("block on: %v", err)
	}
	if result != "done" {
		t.Fatalf("expected 'done', got %s", result)
	}
}

func TestBlockOnTimesOutOnContextCancellation(t *testing.T) {
	rc := NewReducerCore(nil, countingReducer, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rc.Run(ctx)

	callCtx, callCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer callCancel()

	_, err := BlockOn(callCtx, rc, func() (Address, bool) { return "", false })
	if err == nil || !IsKind(err, KindTimeout) {
		t.Fatalf("expected KindTimeout, got %v", err)
	}
}
