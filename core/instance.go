// Instance — the runnable unit wiring the chain, DHT store, validation
// pipeline, WASM runtime, zome dispatcher, network handler, and
// reducer-owned state tree together, generalized from a node bootstrap
// (NewNode wiring storage, mempool, consensus and network into one
// running process) into one agent running one DNA.
package core

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InstanceConfig controls how NewInstance wires its collaborators.
type InstanceConfig struct {
	// NodeID seeds outgoing request IDs; defaults to the agent address
	// when empty.
	NodeID string
	// StorageDir, if non-empty, backs the chain and DHT content stores
	// and the persister with FileCAS/FilePersister under this directory.
	// Empty means fully in-memory and unpersisted (tests, ephemeral runs).
	StorageDir string
	// Bus is the transport this instance publishes/subscribes on. A
	// MemoryBus is constructed if nil.
	Bus Bus
	Log *zap.Logger
}

// holdAspectLog is ActionHoldAspect's payload: observational only, since
// DHT.Holding (not the state tree) is the authority a running instance
// reads from.
type holdAspectLog struct {
	Base  Address
	Entry Address
	Aspect Address
}

// Instance is one agent's running copy of one DNA.
type Instance struct {
	DNA      *DNA
	Agent    Address
	Keystore Keystore

	ChainCAS CAS
	Chain    *Chain

	DHT       *DHTStore
	Validator *Validator
	Ribosome  Ribosome

	Dispatcher *ZomeDispatcher
	Bus        Bus
	Network    *NetworkHandler

	Reducer   *ReducerCore
	Persister Persister

	Log    *zap.Logger
	cancel context.CancelFunc

	// OnDirectMessage handles inbound hc_send payloads; if nil, messages
	// are echoed back to the sender.
	OnDirectMessage func(ctx context.Context, from Address, payload []byte) ([]byte, error)

	mu              sync.RWMutex
	grants          map[Address]*CapTokenGrant
	pubKeys         map[Address]ed25519.PublicKey
	bridges         map[string]*Instance
	aspectsByHeader map[Address]EntryAspect
}

// NewInstance constructs an Instance for dna, signing as the agent ks
// identifies, wiring a host-function table bound back to this instance
// for zome calls to use.
func NewInstance(dna *DNA, ks Keystore, cfg InstanceConfig) (*Instance, error) {
	if err := dna.Validate(); err != nil {
		return nil, NewError(KindDNA, "new_instance", err)
	}

	agent, err := AgentAddress(ks.PublicKey())
	if err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = agent.String()
	}

	var chainCAS, dhtCAS CAS
	var persister Persister
	if cfg.StorageDir != "" {
		chainCAS, err = NewFileCAS(cfg.StorageDir + "/chain")
		if err != nil {
			return nil, err
		}
		dhtCAS, err = NewFileCAS(cfg.StorageDir + "/dht")
		if err != nil {
			return nil, err
		}
		persister, err = NewFilePersister(cfg.StorageDir + "/state")
		if err != nil {
			return nil, err
		}
	} else {
		chainCAS = NewMemoryCAS()
		dhtCAS = NewMemoryCAS()
		persister = NullPersister{}
	}

	chain := NewChain(chainCAS, ks, agent)
	dht := NewDHTStore(dhtCAS, NewMemoryEAV())

	bus := cfg.Bus
	if bus == nil {
		bus = NewMemoryBus()
	}

	dnaAddr, err := dna.Address()
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		DNA:             dna,
		Agent:           agent,
		Keystore:        ks,
		ChainCAS:        chainCAS,
		Chain:           chain,
		DHT:             dht,
		Bus:             bus,
		Persister:       persister,
		Log:             log,
		grants:          make(map[Address]*CapTokenGrant),
		pubKeys:         map[Address]ed25519.PublicKey{agent: ks.PublicKey()},
		bridges:         make(map[string]*Instance),
		aspectsByHeader: make(map[Address]EntryAspect),
	}

	inst.Validator = NewValidator(dht, dna, nil, nil)
	inst.Ribosome = NewWasmerRibosome(dna, NewDefaultHostTable(inst), log)
	inst.Validator.Ribosome = inst.Ribosome
	inst.Dispatcher = NewZomeDispatcher(dna, agent, inst, inst, inst, inst.Ribosome)
	inst.Network = NewNetworkHandler(bus, nodeID, dnaAddr, inst, log)
	inst.Validator.Packages = inst.Network

	inst.Reducer = NewReducerCore(
		NewStateTree(),
		reduceInstanceState,
		[]ActionKind{ActionCommit, ActionHoldAspect, ActionQueueValidation},
		inst.persistState,
		log,
	)

	if err := inst.restore(); err != nil {
		return nil, err
	}

	return inst, nil
}

func (inst *Instance) restore() error {
	agentSnap, ok, err := inst.Persister.LoadAgentState()
	if err != nil {
		return err
	}
	if ok && agentSnap.TopChainHeader != nil {
		if err := inst.Chain.RestoreFromTop(*agentSnap.TopChainHeader); err != nil {
			return err
		}
		tree := inst.Reducer.Snapshot().Clone()
		tree.Agent = agentSnap
		inst.Reducer.Dispatch(Action{Kind: ActionInitializeApplication, Payload: tree})
	}
	dhtSnap, ok, err := inst.Persister.LoadDhtState()
	if err != nil {
		return err
	}
	if ok {
		inst.DHT.Holding.Restore(dhtSnap.HoldingMap)
		inst.DHT.Queue.Restore(dhtSnap.QueuedHoldingWorkflows)
	}
	return nil
}

func (inst *Instance) persistState(tree *StateTree) error {
	if err := inst.Persister.SaveAgentState(tree.Agent); err != nil {
		return err
	}
	dhtSnap := DhtStoreSnapshot{
		HoldingMap:             inst.DHT.Holding.Snapshot(),
		QueuedHoldingWorkflows: inst.DHT.Queue.Items(),
	}
	return inst.Persister.SaveDhtState(dhtSnap)
}

// reduceInstanceState is the ReducerFunc wired into every Instance's
// ReducerCore.
func reduceInstanceState(old *StateTree, action Action) *StateTree {
	next := old.Clone()
	switch action.Kind {
	case ActionInitializeApplication:
		if tree, ok := action.Payload.(*StateTree); ok {
			return tree
		}
	case ActionCommit:
		if addr, ok := action.Payload.(Address); ok {
			a := addr
			next.Agent.TopChainHeader = &a
		}
	case ActionHoldAspect:
		// DHT.Holding is the source of truth; nothing to fold in here.
	case ActionQueueValidation:
		// ValidationQueue is the source of truth; nothing to fold in here.
	case ActionNetworkEvent:
		if delta, ok := action.Payload.(int); ok {
			next.Network.OutstandingRequests += delta
		}
	case ActionShutdown:
	}
	return next
}

// Genesis commits the DNA, AgentId, and an automatic public-trait
// capability grant entries if the chain does not already hold a DNA
// entry — the one-time setup a fresh instance needs before serving any
// zome call.
func (inst *Instance) Genesis(ctx context.Context) error {
	it := inst.Chain.IterType(string(EntryDna))
	if _, already, err := it.Next(); err != nil {
		return err
	} else if already {
		return nil
	}

	if _, err := inst.commitEntry(ctx, Entry{Kind: EntryDna, DnaManifest: inst.DNA}); err != nil {
		return NewError(KindLifecycle, "genesis", err)
	}
	if _, err := inst.commitEntry(ctx, Entry{Kind: EntryAgentID, AgentPublicKey: append([]byte(nil), inst.Keystore.PublicKey()...)}); err != nil {
		return NewError(KindLifecycle, "genesis", err)
	}

	publicFns := make(map[string][]string)
	for zomeName, z := range inst.DNA.Zomes {
		if trait, ok := z.Traits["hc_public"]; ok && len(trait.Functions) > 0 {
			publicFns[zomeName] = trait.Functions
		}
	}
	if _, err := inst.CommitCapabilityGrant(ctx, CapTokenGrant{ID: "hc_public", CapType: CapPublic, Functions: publicFns}); err != nil {
		return NewError(KindLifecycle, "genesis", err)
	}
	return nil
}

// Start runs the reducer loop, subscribes the network handler, and
// begins the background validation-queue retry loop. The returned
// context.CancelFunc is also captured so Stop can tear everything down.
func (inst *Instance) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	inst.cancel = cancel

	go inst.Reducer.Run(ctx)
	if err := inst.Network.Start(); err != nil {
		return err
	}
	go inst.validationLoop(ctx)
	return nil
}

// Stop unsubscribes the network handler, stops the reducer and
// validation loops, and closes the bus.
func (inst *Instance) Stop() error {
	inst.Network.Stop()
	inst.Reducer.Shutdown()
	if inst.cancel != nil {
		inst.cancel()
	}
	return inst.Bus.Close()
}

func (inst *Instance) validationLoop(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pv, ok := inst.DHT.Queue.NextQueuedHoldingWorkflow()
			if !ok {
				continue
			}
			outcome := inst.Validator.ExecuteWorkflow(ctx, pv, inst.provenancePubKeys())
			switch outcome.Kind {
			case OutcomeUnresolvedDependencies, OutcomeTimeout:
				inst.DHT.Queue.Requeue(pv, outcome.Dependencies)
			case OutcomeValid:
				base, _ := aspectBaseFromPending(pv)
				entryAddr, _ := pv.EntryWithHeader.Entry.Address()
				headerAddr, _ := pv.EntryWithHeader.Header.Address()
				inst.mu.Lock()
				inst.aspectsByHeader[headerAddr] = reconstructAspect(pv)
				inst.mu.Unlock()
				inst.Reducer.Dispatch(Action{Kind: ActionHoldAspect, Payload: holdAspectLog{Base: base, Entry: entryAddr, Aspect: headerAddr}})
			default:
				inst.Log.Warn("queued workflow invalid", zap.String("workflow", string(pv.WorkflowKind)), zap.String("reason", outcome.Reason))
			}
		}
	}
}

// reconstructAspect rebuilds the EntryAspect a queued PendingValidation
// originated from, for queue-path items that succeed asynchronously
// (rather than synchronously inline with a local commit or an inbound
// StoreEntryAspect, both of which already have the aspect in hand).
func reconstructAspect(pv *PendingValidation) EntryAspect {
	entry := pv.EntryWithHeader.Entry
	header := pv.EntryWithHeader.Header
	switch pv.WorkflowKind {
	case WorkflowHoldLink:
		if entry.Link != nil {
			return NewLinkAddAspect(*entry.Link, header)
		}
	case WorkflowRemoveLink:
		if entry.Link != nil {
			return NewLinkRemoveAspect(*entry.Link, entry.RemovedAddrs, header)
		}
	case WorkflowUpdateEntry:
		return NewUpdateAspect(entry, header)
	case WorkflowRemoveEntry:
		return NewDeletionAspect(header)
	}
	return NewContentAspect(entry, header)
}

func aspectBaseFromPending(pv *PendingValidation) (Address, error) {
	if pv.WorkflowKind == WorkflowHoldLink && pv.EntryWithHeader.Entry.Link != nil {
		return pv.EntryWithHeader.Entry.Link.Base, nil
	}
	return pv.EntryWithHeader.Header.EntryAddress, nil
}

func (inst *Instance) provenancePubKeys() map[Address]ed25519.PublicKey {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	out := make(map[Address]ed25519.PublicKey, len(inst.pubKeys))
	for k, v := range inst.pubKeys {
		out[k] = v
	}
	return out
}

// commitEntry pushes entry to the chain and drives it through the
// holding workflow as a Content aspect, self-authored.
func (inst *Instance) commitEntry(ctx context.Context, entry Entry) (Address, error) {
	headerAddr, err := inst.Chain.Push(ctx, entry)
	if err != nil {
		return "", err
	}
	var header ChainHeader
	if ok, err := FetchInto(inst.ChainCAS, headerAddr, &header); err != nil {
		return "", err
	} else if !ok {
		return "", NewError(KindIO, "commit_entry", errors.New("header missing immediately after push"))
	}

	entryAddr, err := entry.Address()
	if err != nil {
		return "", err
	}

	outcome, err := inst.processAspect(ctx, NewContentAspect(entry, header))
	if err != nil {
		return "", err
	}
	if outcome.Kind == OutcomeInvalid {
		return "", NewError(KindValidationFailed, "commit_entry", errors.New(outcome.Reason))
	}

	inst.Reducer.Dispatch(Action{Kind: ActionCommit, Payload: headerAddr})
	return entryAddr, nil
}

// CommitAppEntry commits an App entry of the DNA-declared type appType,
// driving it through validation and holding before returning its
// address.
func (inst *Instance) CommitAppEntry(ctx context.Context, appType string, payload []byte) (Address, error) {
	return inst.commitEntry(ctx, NewAppEntry(appType, payload))
}

// CommitLinkAdd commits a LinkAdd entry for link.
func (inst *Instance) CommitLinkAdd(ctx context.Context, link LinkData) (Address, error) {
	entry := Entry{Kind: EntryLinkAdd, Link: &link}
	headerAddr, err := inst.Chain.Push(ctx, entry)
	if err != nil {
		return "", err
	}
	var header ChainHeader
	if ok, err := FetchInto(inst.ChainCAS, headerAddr, &header); err != nil || !ok {
		return "", NewError(KindIO, "commit_link_add", err)
	}
	entryAddr, err := entry.Address()
	if err != nil {
		return "", err
	}
	outcome, err := inst.processAspect(ctx, NewLinkAddAspect(link, header))
	if err != nil {
		return "", err
	}
	if outcome.Kind == OutcomeInvalid {
		return "", NewError(KindValidationFailed, "commit_link_add", errors.New(outcome.Reason))
	}
	inst.Reducer.Dispatch(Action{Kind: ActionCommit, Payload: headerAddr})
	return entryAddr, nil
}

// findLinkAddAddresses walks this agent's own chain for LinkAdd entries
// matching link, returning their entry addresses — the set a LinkRemove
// entry tombstones.
func (inst *Instance) findLinkAddAddresses(link LinkData) ([]Address, error) {
	it := inst.Chain.IterType(string(EntryLinkAdd))
	var out []Address
	for {
		h, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		var e Entry
		found, err := FetchInto(inst.ChainCAS, h.EntryAddress, &e)
		if err != nil {
			return nil, err
		}
		if !found || e.Link == nil {
			continue
		}
		if *e.Link == link {
			out = append(out, h.EntryAddress)
		}
	}
}

// CommitLinkRemove commits a LinkRemove entry tombstoning link's prior
// LinkAdd entries.
func (inst *Instance) CommitLinkRemove(ctx context.Context, link LinkData) (Address, error) {
	removed, err := inst.findLinkAddAddresses(link)
	if err != nil {
		return "", err
	}
	entry := Entry{Kind: EntryLinkRemove, Link: &link, RemovedAddrs: removed}
	headerAddr, err := inst.Chain.Push(ctx, entry)
	if err != nil {
		return "", err
	}
	var header ChainHeader
	if ok, err := FetchInto(inst.ChainCAS, headerAddr, &header); err != nil || !ok {
		return "", NewError(KindIO, "commit_link_remove", err)
	}
	entryAddr, err := entry.Address()
	if err != nil {
		return "", err
	}
	outcome, err := inst.processAspect(ctx, NewLinkRemoveAspect(link, removed, header))
	if err != nil {
		return "", err
	}
	if outcome.Kind == OutcomeInvalid {
		return "", NewError(KindValidationFailed, "commit_link_remove", errors.New(outcome.Reason))
	}
	inst.Reducer.Dispatch(Action{Kind: ActionCommit, Payload: headerAddr})
	return entryAddr, nil
}

// CommitCapabilityGrant commits a CapTokenGrant entry and registers it
// for local GrantByToken lookups, returning the grant's address — the
// token counterparties present back to redeem it.
func (inst *Instance) CommitCapabilityGrant(ctx context.Context, grant CapTokenGrant) (Address, error) {
	token, err := inst.commitEntry(ctx, Entry{Kind: EntryCapTokenGrant, Grant: &grant})
	if err != nil {
		return "", err
	}
	inst.mu.Lock()
	inst.grants[token] = &grant
	inst.mu.Unlock()
	return token, nil
}

// processAspect stores the aspect's content into the DHT's shared
// content storage, runs it through its validation workflow, and queues
// it for retry if its dependencies are not yet resolvable.
func (inst *Instance) processAspect(ctx context.Context, aspect EntryAspect) (ValidationOutcome, error) {
	if aspect.Entry != nil {
		if _, err := inst.DHT.ContentStorage.Add(*aspect.Entry); err != nil {
			return ValidationOutcome{}, err
		}
	}
	if aspect.Header != nil {
		if _, err := inst.DHT.ContentStorage.Add(*aspect.Header); err != nil {
			return ValidationOutcome{}, err
		}
	}

	pv, err := NewPendingValidationForAspect(aspect)
	if err != nil {
		return ValidationOutcome{}, err
	}

	outcome := inst.Validator.ExecuteWorkflow(ctx, pv, inst.provenancePubKeys())
	switch outcome.Kind {
	case OutcomeUnresolvedDependencies, OutcomeTimeout:
		inst.DHT.Queue.Enqueue(pv)
		inst.Reducer.Dispatch(Action{Kind: ActionQueueValidation, Payload: pv})
	case OutcomeValid:
		if headerAddr, err := pv.EntryWithHeader.Header.Address(); err == nil {
			inst.mu.Lock()
			inst.aspectsByHeader[headerAddr] = aspect
			inst.mu.Unlock()
		}
	}
	return outcome, nil
}

// Call executes a capability-checked zome call against this instance.
func (inst *Instance) Call(ctx context.Context, call ZomeFnCall) (json.RawMessage, error) {
	return inst.Dispatcher.Call(ctx, call)
}

// RegisterBridge wires handle so that bridge calls naming it resolve to
// target, another local Instance.
func (inst *Instance) RegisterBridge(handle string, target *Instance) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.bridges[handle] = target
}

// RegisterPeerPublicKey records agent's public key so capability
// signatures and provenances it attests can be verified locally.
func (inst *Instance) RegisterPeerPublicKey(agent Address, pub ed25519.PublicKey) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.pubKeys[agent] = pub
}

// GrantByToken implements GrantLookup.
func (inst *Instance) GrantByToken(token Address) (*CapTokenGrant, bool, error) {
	inst.mu.RLock()
	g, ok := inst.grants[token]
	inst.mu.RUnlock()
	if ok {
		return g, true, nil
	}
	var e Entry
	found, err := FetchInto(inst.ChainCAS, token, &e)
	if err != nil {
		return nil, false, err
	}
	if !found || e.Kind != EntryCapTokenGrant || e.Grant == nil {
		return nil, false, nil
	}
	return e.Grant, true, nil
}

// PublicKeyForAgent implements CallerPublicKeyLookup.
func (inst *Instance) PublicKeyForAgent(agent Address) ([]byte, bool, error) {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	pub, ok := inst.pubKeys[agent]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), pub...), true, nil
}

// CallBridge implements BridgeCaller by dispatching directly into an
// in-process target Instance registered via RegisterBridge.
func (inst *Instance) CallBridge(ctx context.Context, instanceHandle string, call ZomeFnCall) (json.RawMessage, error) {
	inst.mu.RLock()
	target, ok := inst.bridges[instanceHandle]
	inst.mu.RUnlock()
	if !ok {
		return nil, NewError(KindDNA, "call_bridge", fmt.Errorf("no bridge registered for handle %s", instanceHandle))
	}
	call.InstanceHandle = ThisInstance
	return target.Dispatcher.Call(ctx, call)
}

func (inst *Instance) lookupAspect(headerAddr Address) (EntryAspect, bool) {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	a, ok := inst.aspectsByHeader[headerAddr]
	return a, ok
}

// HandleStoreEntryAspect implements RequestHandler for an aspect
// received from a peer.
func (inst *Instance) HandleStoreEntryAspect(ctx context.Context, aspect EntryAspect) error {
	_, err := inst.processAspect(ctx, aspect)
	return err
}

// HandleFetchEntry implements RequestHandler: it returns every aspect
// this node holds for addr as a base entity.
func (inst *Instance) HandleFetchEntry(ctx context.Context, addr Address) ([]EntryAspect, error) {
	var out []EntryAspect
	for _, entryAddr := range inst.DHT.Holding.EntriesFor(addr) {
		for _, headerAddr := range inst.DHT.Holding.AspectsFor(addr, entryAddr) {
			if a, ok := inst.lookupAspect(headerAddr); ok {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

// HandleQueryEntry implements RequestHandler over the DHT's link index.
func (inst *Instance) HandleQueryEntry(ctx context.Context, query LinkQuery) ([]LinkResult, error) {
	return inst.DHT.GetLinks(query)
}

// HandleSendDirectMessage implements RequestHandler. With no
// OnDirectMessage hook wired it echoes the payload back to the sender.
func (inst *Instance) HandleSendDirectMessage(ctx context.Context, from, to Address, payload []byte) ([]byte, error) {
	if to != inst.Agent {
		return nil, NewError(KindDNA, "handle_send_direct_message", fmt.Errorf("message addressed to %s, not this agent", to))
	}
	if inst.OnDirectMessage != nil {
		return inst.OnDirectMessage(ctx, from, payload)
	}
	return payload, nil
}

// HandleGetAuthoringEntryList implements RequestHandler: every entry
// this agent has authored on its own chain.
func (inst *Instance) HandleGetAuthoringEntryList(ctx context.Context) ([]Address, error) {
	it := inst.Chain.Iter()
	var out []Address
	for {
		h, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, h.EntryAddress)
	}
}

// HandleGetGossipingEntryList implements RequestHandler: every entry
// address this node holds aspects for, across every base.
func (inst *Instance) HandleGetGossipingEntryList(ctx context.Context) ([]Address, error) {
	seen := make(map[Address]struct{})
	var out []Address
	for _, byEntry := range inst.DHT.Holding.Snapshot() {
		for entryAddr := range byEntry {
			if _, ok := seen[entryAddr]; ok {
				continue
			}
			seen[entryAddr] = struct{}{}
			out = append(out, entryAddr)
		}
	}
	return out, nil
}

// HandleFetchValidationPackage implements RequestHandler, assembling the
// requested context from this agent's own chain.
func (inst *Instance) HandleFetchValidationPackage(ctx context.Context, entryAddr Address, level ValidationPackageLevel) (*ValidationPackage, error) {
	it := inst.Chain.Iter()
	var (
		found        *ChainHeader
		foundEntry   Entry
		chainHeaders []ChainHeader
		chainEntries []Entry
	)
	for {
		h, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		var e Entry
		if ok, err := FetchInto(inst.ChainCAS, h.EntryAddress, &e); err != nil {
			return nil, err
		} else if !ok {
			continue
		}
		if found == nil {
			chainHeaders = append(chainHeaders, *h)
			chainEntries = append(chainEntries, e)
		}
		if h.EntryAddress == entryAddr && found == nil {
			hh := *h
			found = &hh
			foundEntry = e
		}
	}
	if found == nil {
		return nil, NewError(KindDNA, "handle_fetch_validation_package", fmt.Errorf("entry %s not found on this chain", entryAddr))
	}

	pkg := &ValidationPackage{Level: level, Entry: foundEntry, Header: *found}
	switch level {
	case ValidationPackageChainEntries:
		pkg.ChainEntries = chainEntries
	case ValidationPackageChainHeaders:
		pkg.ChainHeaders = chainHeaders
	case ValidationPackageChainFull:
		pkg.ChainEntries = chainEntries
		pkg.ChainHeaders = chainHeaders
	}
	return pkg, nil
}
