package core

import (
	"testing"
	"time"
)

func pendingFor(addrByte byte) *PendingValidation {
	return &PendingValidation{
		EntryWithHeader: EntryWithHeader{Entry: NewAppEntry("post", []byte{addrByte})},
		WorkflowKind:    WorkflowHoldEntry,
	}
}

func TestValidationQueueEnqueueDefaultsDelay(t *testing.T) {
	q := NewValidationQueue()
	p := pendingFor(1)
	q.Enqueue(p)
	if p.Delay != initialValidationDelay {
		t.Fatalf("expected default delay %v, got %v", initialValidationDelay, p.Delay)
	}
	if q.Len() != 1 {
		t.Fatalf("expected queue length 1, got %d", q.Len())
	}
}

func TestNextQueuedHoldingWorkflowDequeuesReadyItem(t *testing.T) {
	q := NewValidationQueue()
	p := pendingFor(1)
	p.TimeOfDispatch = time.Now().Add(-time.Hour)
	p.Delay = time.Second
	q.Enqueue(p)

	got, ok := q.NextQueuedHoldingWorkflow()
	if !ok {
		t.Fatal("expected an item ready to dequeue")
	}
	if got != p {
		t.Fatal("expected the dequeued item to be the one enqueued")
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after dequeue, got length %d", q.Len())
	}
}

func TestNextQueuedHoldingWorkflowSkipsItemsStillInBackoff(t *testing.T) {
	q := NewValidationQueue()
	p := pendingFor(1)
	p.TimeOfDispatch = time.Now()
	p.Delay = time.Hour
	q.Enqueue(p)

	_, ok := q.NextQueuedHoldingWorkflow()
	if ok {
		t.Fatal("expected no item ready while still within its backoff delay")
	}
}

func TestNextQueuedHoldingWorkflowSkipsItemsWithPendingDependencies(t *testing.T) {
	q := NewValidationQueue()
	blocker := pendingFor(1)
	blockerAddr, _ := blocker.EntryWithHeader.Entry.Address()
	blocker.TimeOfDispatch = time.Now().Add(-time.Hour)
	blocker.Delay = time.Second
	q.Enqueue(blocker)

	dependent := pendingFor(2)
	dependent.Dependencies = []Address{blockerAddr}
	dependent.TimeOfDispatch = time.Now().Add(-time.Hour)
	dependent.Delay = time.Second
	q.Enqueue(dependent)

	got, ok := q.NextQueuedHoldingWorkflow()
	if !ok {
		t.Fatal("expected one item ready to dequeue")
	}
	if got != blocker {
		t.Fatal("expected the non-dependent blocker to be dequeued first, dependent item should be skipped")
	}
}

func TestValidationQueueRequeueDoublesDelay(t *testing.T) {
	q := NewValidationQueue()
	p := pendingFor(1)
	p.Delay = time.Second
	q.Requeue(p, []Address{"dep1"})
	if p.Delay != 2*time.Second {
		t.Fatalf("expected delay doubled to 2s, got %v", p.Delay)
	}
	if len(p.Dependencies) != 1 || p.Dependencies[0] != "dep1" {
		t.Fatalf("expected dependencies replaced, got %v", p.Dependencies)
	}
	if q.Len() != 1 {
		t.Fatalf("expected requeued item back in queue, got length %d", q.Len())
	}
}

func TestValidationQueueRequeueCapsDelayAtMax(t *testing.T) {
	q := NewValidationQueue()
	p := pendingFor(1)
	p.Delay = maxValidationDelay
	q.Requeue(p, nil)
	if p.Delay != maxValidationDelay {
		t.Fatalf("expected delay capped at %v, got %v", maxValidationDelay, p.Delay)
	}
}

func TestValidationQueueRemove(t *testing.T) {
	q := NewValidationQueue()
	p1 := pendingFor(1)
	p2 := pendingFor(2)
	q.Enqueue(p1)
	q.Enqueue(p2)
	q.Remove(p1)
	if q.Len() != 1 {
		t.Fatalf("expected length 1 after remove, got %d", q.Len())
	}
	remaining := q.Items()
	if len(remaining) != 1 || remaining[0] != p2 {
		t.Fatal("expected remaining item to be p2")
	}
}

func TestValidationQueueItemsAndRestore(t *testing.T) {
	q := NewValidationQueue()
	p1 := pendingFor(1)
	p2 := pendingFor(2)
	q.Enqueue(p1)
	q.Enqueue(p2)

	snapshot := q.Items()
	if len(snapshot) != 2 {
		t.Fatalf("expected snapshot of 2 items, got %d", len(snapshot))
	}

	fresh := NewValidationQueue()
	fresh.Restore(snapshot)
	if fresh.Len() != 2 {
		t.Fatalf("expected restored queue length 2, got %d", fresh.Len())
	}
}
