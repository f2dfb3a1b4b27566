// Action/Reducer Core — the single-writer state machine every mutation
// to the process-wide state tree flows through, generalized from a
// ledger apply-and-notify loop into an action-channel-plus-observer-list
// model.
package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ActionKind tags the reducer function an Action should run.
type ActionKind string

const (
	ActionInitializeApplication ActionKind = "InitializeApplication"
	ActionCommit                ActionKind = "Commit"
	ActionHoldAspect            ActionKind = "HoldAspect"
	ActionQueueValidation       ActionKind = "QueueValidation"
	ActionNetworkEvent          ActionKind = "NetworkEvent"
	ActionShutdown              ActionKind = "Shutdown"
)

// Action is one unit of work submitted to the reducer.
type Action struct {
	Kind    ActionKind
	Payload interface{}
}

// ReducerFunc is a pure (old_state, action) -> new_state transition.
type ReducerFunc func(old *StateTree, action Action) *StateTree

// actionQueue is an unbounded FIFO backed by a mutex and a slice, woken
// by a buffered signal channel: Go has no native unbounded channel, and
// a single-slot signal is enough because the reducer loop always drains
// everything queued before waiting again.
type actionQueue struct {
	mu     sync.Mutex
	items  []Action
	signal chan struct{}
	closed bool
}

func newActionQueue() *actionQueue {
	return &actionQueue{signal: make(chan struct{}, 1)}
}

func (q *actionQueue) push(a Action) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, a)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *actionQueue) drain() ([]Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, q.closed
	}
	out := q.items
	q.items = nil
	return out, q.closed
}

func (q *actionQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// ReducerCore runs the reducer loop described by this component: receive
// action, signal intent to write, wait out in-flight readers, apply,
// publish, notify observers, and persist on selected action kinds.
type ReducerCore struct {
	state   atomic.Value // *StateTree
	reduce  ReducerFunc
	queue   *actionQueue
	persist func(*StateTree) error

	persistOn map[ActionKind]bool

	wantsWrite   int32
	activeReads  int32
	alive        int32
	deathCh      chan struct{}
	deathOnce    sync.Once

	observersMu sync.Mutex
	observers   map[int]chan struct{}
	nextObsID   int

	log *zap.Logger
}

// NewReducerCore constructs a ReducerCore seeded with initial, applying
// actions with reduce, and persisting through persist whenever an
// action's kind is in persistOn.
func NewReducerCore(initial *StateTree, reduce ReducerFunc, persistOn []ActionKind, persist func(*StateTree) error, log *zap.Logger) *ReducerCore {
	if log == nil {
		log = zap.NewNop()
	}
	if initial == nil {
		initial = NewStateTree()
	}
	set := make(map[ActionKind]bool, len(persistOn))
	for _, k := range persistOn {
		set[k] = true
	}
	rc := &ReducerCore{
		reduce:    reduce,
		queue:     newActionQueue(),
		persist:   persist,
		persistOn: set,
		alive:     1,
		deathCh:   make(chan struct{}),
		observers: make(map[int]chan struct{}),
		log:       log,
	}
	rc.state.Store(initial)
	return rc
}

// Dispatch enqueues an action for the reducer loop. Safe to call from
// any goroutine, including from within a host call.
func (r *ReducerCore) Dispatch(a Action) {
	r.queue.push(a)
}

// Snapshot returns the current state tree. Readers never block writers
// for more than the brief window guarded by wantsWrite.
func (r *ReducerCore) Snapshot() *StateTree {
	atomic.AddInt32(&r.activeReads, 1)
	defer atomic.AddInt32(&r.activeReads, -1)
	return r.state.Load().(*StateTree)
}

// Run drives the reducer loop until ctx is cancelled or Shutdown is
// called. It is meant to run on its own goroutine for the lifetime of
// the instance.
func (r *ReducerCore) Run(ctx context.Context) {
	for {
		actions, closed := r.queue.drain()
		for _, a := range actions {
			r.apply(a)
		}
		if closed {
			r.die()
			return
		}
		select {
		case <-r.queue.signal:
		case <-ctx.Done():
			r.die()
			return
		}
	}
}

func (r *ReducerCore) apply(a Action) {
	atomic.StoreInt32(&r.wantsWrite, 1)
	for atomic.LoadInt32(&r.activeReads) > 0 {
		runtime.Gosched()
	}
	old := r.state.Load().(*StateTree)
	next := r.reduce(old, a)
	r.state.Store(next)
	atomic.StoreInt32(&r.wantsWrite, 0)

	r.notifyObservers()

	if r.persistOn[a.Kind] && r.persist != nil {
		if err := r.persist(next); err != nil {
			r.log.Warn("state persistence failed", zap.String("action", string(a.Kind)), zap.Error(err))
		}
	}
}

// Shutdown closes the action channel; in-flight BlockOn callers observe
// the closed channel and fail rather than hang.
func (r *ReducerCore) Shutdown() {
	r.queue.close()
}

func (r *ReducerCore) die() {
	atomic.StoreInt32(&r.alive, 0)
	r.deathOnce.Do(func() { close(r.deathCh) })
}

// AddObserver registers a waiter woken on every state transition. The
// caller must call remove when done watching.
func (r *ReducerCore) AddObserver() (ch <-chan struct{}, remove func()) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	id := r.nextObsID
	r.nextObsID++
	c := make(chan struct{}, 1)
	r.observers[id] = c
	return c, func() {
		r.observersMu.Lock()
		defer r.observersMu.Unlock()
		delete(r.observers, id)
	}
}

func (r *ReducerCore) notifyObservers() {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	for _, c := range r.observers {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// BlockOn polls f on every observer tick until it reports ready, the
// context is cancelled, or the instance dies — at which point it panics
// deliberately, since the calling thread would otherwise hang forever
// with no way to recover.
func BlockOn[T any](ctx context.Context, r *ReducerCore, f func() (T, bool)) (T, error) {
	ch, remove := r.AddObserver()
	defer remove()

	if v, ready := f(); ready {
		return v, nil
	}
	for {
		select {
		case <-ch:
			if v, ready := f(); ready {
				return v, nil
			}
		case <-ctx.Done():
			var zero T
			return zero, NewError(KindTimeout, "block_on", ctx.Err())
		case <-r.deathCh:
			panic(fmt.Sprintf("block_on: instance died while waiting"))
		}
	}
}
