// Process-wide state tree: a snapshot-able composite of the agent,
// DHT, nucleus, network, and conductor-API sub-states, generalized from
// an access-control/ledger state pairing into the single reducer-owned
// tree the instance exposes to readers.
package core

// AgentStateSnapshot is the chain's persisted shape: just its mutable
// top pointer — headers and entries live in the CAS and need no
// separate persistence.
type AgentStateSnapshot struct {
	TopChainHeader *Address `json:"top_chain_header"`
}

// DhtStoreSnapshot is the DHT store's persisted shape.
type DhtStoreSnapshot struct {
	HoldingMap             map[Address]map[Address][]Address `json:"holding_map"`
	QueuedHoldingWorkflows []*PendingValidation               `json:"queued_holding_workflows"`
}

// NucleusState tracks in-flight zome calls for re-entrancy and
// introspection; it is not persisted (a call in flight at shutdown
// cannot be resumed).
type NucleusState struct {
	InFlightCalls int `json:"in_flight_calls"`
}

// NetworkState tracks outstanding request bookkeeping at the snapshot
// level; the live pending-response channels themselves live in
// NetworkHandler and are not serializable.
type NetworkState struct {
	OutstandingRequests int `json:"outstanding_requests"`
}

// ConductorAPIState records resolved bridge targets.
type ConductorAPIState struct {
	Bridges map[string]Address `json:"bridges,omitempty"`
}

// StateTree is the full process-wide tree. Instances are immutable once
// built; the reducer replaces the tree wholesale rather than mutating
// any field in place, so a snapshot reader's pointer is always
// internally consistent.
type StateTree struct {
	Agent     AgentStateSnapshot
	Dht       DhtStoreSnapshot
	Nucleus   NucleusState
	Network   NetworkState
	Conductor ConductorAPIState
}

// NewStateTree builds an empty initial tree.
func NewStateTree() *StateTree {
	return &StateTree{
		Dht: DhtStoreSnapshot{HoldingMap: make(map[Address]map[Address][]Address)},
		Conductor: ConductorAPIState{Bridges: make(map[string]Address)},
	}
}

// Clone returns a shallow-enough copy for the reducer to mutate into a
// new tree without aliasing the previous snapshot's top-level fields.
func (s *StateTree) Clone() *StateTree {
	if s == nil {
		return NewStateTree()
	}
	next := *s
	return &next
}
