// Pending-validation scheduler — dependency-resolving queue with
// exponential backoff, generalized from mempool-style pending-
// transaction bookkeeping into the queued_holding_workflows deque the
// validation pipeline drains.
package core

import (
	"sync"
	"time"
)

// Workflow names one of the five aspect-handling workflows.
type Workflow string

const (
	WorkflowHoldEntry   Workflow = "HoldEntry"
	WorkflowHoldLink    Workflow = "HoldLink"
	WorkflowRemoveLink  Workflow = "RemoveLink"
	WorkflowUpdateEntry Workflow = "UpdateEntry"
	WorkflowRemoveEntry Workflow = "RemoveEntry"
)

// EntryWithHeader pairs an entry with the header authoring it — the
// shape a pending validation carries through its workflow.
type EntryWithHeader struct {
	Entry  Entry       `json:"entry"`
	Header ChainHeader `json:"header"`
}

const (
	initialValidationDelay = time.Second
	maxValidationDelay     = 5 * time.Minute
)

// PendingValidation is one queued aspect awaiting its workflow's
// completion.
type PendingValidation struct {
	EntryWithHeader EntryWithHeader
	WorkflowKind    Workflow
	Dependencies    []Address
	TimeOfDispatch  time.Time
	Delay           time.Duration
}

// ValidationQueue is the DHT store's queued_holding_workflows deque.
type ValidationQueue struct {
	mu    sync.Mutex
	items []*PendingValidation
}

// NewValidationQueue constructs an empty queue.
func NewValidationQueue() *ValidationQueue {
	return &ValidationQueue{}
}

// Enqueue adds p to the tail of the queue, defaulting TimeOfDispatch and
// Delay if unset.
func (q *ValidationQueue) Enqueue(p *PendingValidation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p.TimeOfDispatch.IsZero() {
		p.TimeOfDispatch = time.Now()
	}
	if p.Delay == 0 {
		p.Delay = initialValidationDelay
	}
	q.items = append(q.items, p)
}

// Len reports the number of queued items.
func (q *ValidationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a shallow copy of the queued items, for persistence
// snapshots. The returned slice shares PendingValidation pointers with
// the live queue; callers must not mutate them.
func (q *ValidationQueue) Items() []*PendingValidation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*PendingValidation, len(q.items))
	copy(out, q.items)
	return out
}

// Restore replaces the queue's contents wholesale, for persister
// load-on-start.
func (q *ValidationQueue) Restore(items []*PendingValidation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*PendingValidation(nil), items...)
}

func dependsOnPending(deps []Address, pending map[Address]struct{}) bool {
	for _, d := range deps {
		if _, ok := pending[d]; ok {
			return true
		}
	}
	return false
}

// NextQueuedHoldingWorkflow computes the set of entry addresses
// currently pending, skips any item whose dependencies intersect that
// set (avoiding circular starvation), skips any item still inside its
// backoff delay, and dequeues the first remaining item.
func (q *ValidationQueue) NextQueuedHoldingWorkflow() (*PendingValidation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make(map[Address]struct{}, len(q.items))
	for _, it := range q.items {
		if addr, err := it.EntryWithHeader.Entry.Address(); err == nil {
			pending[addr] = struct{}{}
		}
	}

	now := time.Now()
	for i, it := range q.items {
		if dependsOnPending(it.Dependencies, pending) {
			continue
		}
		if now.Sub(it.TimeOfDispatch) < it.Delay {
			continue
		}
		q.items = append(q.items[:i:i], q.items[i+1:]...)
		return it, true
	}
	return nil, false
}

// Requeue re-enqueues p after an UnresolvedDependencies or Timeout
// outcome: dependencies are replaced, time_of_dispatch resets to now,
// and delay doubles up to maxValidationDelay.
func (q *ValidationQueue) Requeue(p *PendingValidation, newDependencies []Address) {
	p.Dependencies = newDependencies
	p.TimeOfDispatch = time.Now()
	p.Delay *= 2
	if p.Delay > maxValidationDelay {
		p.Delay = maxValidationDelay
	}
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
}

// Remove drops p from the queue without re-enqueueing it (Valid or
// Invalid outcomes).
func (q *ValidationQueue) Remove(p *PendingValidation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it == p {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return
		}
	}
}
