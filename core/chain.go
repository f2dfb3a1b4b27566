// Per-agent append-only hash chain — generalized from a WAL-replay
// append-only ledger (NewLedger/applyBlock) into a header-linked,
// entry-typed per-agent chain.
package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Chain is the per-agent ordered log built atop a CAS. The
// chain top is the one mutable pointer in the system; everything else is
// address-indexed content with no owning pointers between entities.
type Chain struct {
	mu                  sync.RWMutex
	store               CAS
	keystore            Keystore
	initialAgentAddress Address

	topHeader      *Address
	lastOfType     map[string]Address
	agentAddrCache *Address
}

// NewChain constructs a Chain over store, signing new headers with ks.
// initialAgentAddress is used by GetAgentAddress before any AgentId entry
// has been committed.
func NewChain(store CAS, ks Keystore, initialAgentAddress Address) *Chain {
	return &Chain{
		store:               store,
		keystore:            ks,
		initialAgentAddress: initialAgentAddress,
		lastOfType:          make(map[string]Address),
	}
}

// GetAgentAddress returns the address of the first AgentId entry in the
// chain, or the initial agent address if the chain holds none yet.
func (c *Chain) GetAgentAddress() (Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getAgentAddressLocked()
}

func (c *Chain) getAgentAddressLocked() (Address, error) {
	if c.agentAddrCache != nil {
		return *c.agentAddrCache, nil
	}
	it := c.iterTypeLocked(string(EntryAgentID))
	h, ok, err := it.Next()
	if err != nil {
		return "", err
	}
	if ok {
		addr := h.EntryAddress
		c.agentAddrCache = &addr
		return addr, nil
	}
	return c.initialAgentAddress, nil
}

// Push builds a header linking entry to the current chain top, stores
// entry and header in the CAS, and atomically advances the chain top.
// Failure at any step does not advance the top.
func (c *Chain) Push(ctx context.Context, entry Entry, extraProvenances ...Provenance) (Address, error) {
	if err := entry.Validate(); err != nil {
		return "", NewError(KindSerialization, "chain_push", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entryAddr, err := entry.Address()
	if err != nil {
		return "", NewError(KindSerialization, "chain_push", err)
	}

	agentAddr, err := c.getAgentAddressLocked()
	if err != nil {
		return "", err
	}

	sig, err := c.keystore.Sign(ctx, []byte(entryAddr))
	if err != nil {
		return "", NewError(KindLifecycle, "chain_push_sign", err)
	}

	var link, linkSameType *Address
	if c.topHeader != nil {
		v := *c.topHeader
		link = &v
	}
	if prior, ok := c.lastOfType[entry.EntryType()]; ok {
		v := prior
		linkSameType = &v
	}

	provenances := append([]Provenance{{Agent: agentAddr, Signature: sig}}, extraProvenances...)
	header := ChainHeader{
		EntryType:    entry.EntryType(),
		EntryAddress: entryAddr,
		Provenances:  provenances,
		Link:         link,
		LinkSameType: linkSameType,
		Timestamp:    time.Now().UTC(),
	}

	if _, err := c.store.Add(entry); err != nil {
		return "", NewError(KindIO, "chain_push_entry", err)
	}
	headerAddr, err := c.store.Add(header)
	if err != nil {
		return "", NewError(KindIO, "chain_push_header", err)
	}

	c.topHeader = &headerAddr
	c.lastOfType[entry.EntryType()] = headerAddr
	if entry.Kind == EntryAgentID && c.agentAddrCache == nil {
		v := entryAddr
		c.agentAddrCache = &v
	}
	return headerAddr, nil
}

// RestoreFromTop reconstructs topHeader and lastOfType by walking back
// from a persisted top header address, for resuming a chain whose CAS
// backend already holds its headers/entries (a restarted FileCAS-backed
// instance). It does not re-verify signatures; that happened when each
// header was first pushed.
func (c *Chain) RestoreFromTop(top Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lastOfType := make(map[string]Address)
	next := &top
	for next != nil {
		var h ChainHeader
		ok, err := FetchInto(c.store, *next, &h)
		if err != nil {
			return err
		}
		if !ok {
			return NewError(KindIO, "chain_restore", errors.New("header missing from CAS"))
		}
		if _, seen := lastOfType[h.EntryType]; !seen {
			lastOfType[h.EntryType] = *next
		}
		next = h.Link
	}

	c.topHeader = &top
	c.lastOfType = lastOfType
	c.agentAddrCache = nil
	return nil
}

// Top returns the current top header address, or ("", false) if the
// chain is empty.
func (c *Chain) Top() (Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.topHeader == nil {
		return "", false
	}
	return *c.topHeader, true
}

// Len counts the headers reachable from the top via Iter. O(n).
func (c *Chain) Len() (int, error) {
	n := 0
	it := c.Iter()
	for {
		_, ok, err := it.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// ChainIterator walks headers newest-first, following Link (full-chain
// traversal) or LinkSameType (single-entry-type traversal). It is finite
// and non-restartable; call Iter/IterType again to restart.
type ChainIterator struct {
	store      CAS
	next       *Address
	sameTypeOnly bool
}

// Next returns the next header, or (nil, false, nil) when exhausted.
func (it *ChainIterator) Next() (*ChainHeader, bool, error) {
	if it.next == nil {
		return nil, false, nil
	}
	var h ChainHeader
	ok, err := FetchInto(it.store, *it.next, &h)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, NewError(KindIO, "chain_iter", errors.New("header missing from CAS"))
	}
	if it.sameTypeOnly {
		it.next = h.LinkSameType
	} else {
		it.next = h.Link
	}
	return &h, true, nil
}

// Iter returns a newest-first traversal of all headers, following Link.
func (c *Chain) Iter() *ChainIterator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &ChainIterator{store: c.store, next: c.topHeader}
}

func (c *Chain) iterTypeLocked(entryType string) *ChainIterator {
	var start *Address
	if addr, ok := c.lastOfType[entryType]; ok {
		v := addr
		start = &v
	}
	return &ChainIterator{store: c.store, next: start, sameTypeOnly: true}
}

// IterType returns a newest-first traversal of headers of the given
// entry type only, following LinkSameType — O(entries-of-that-type)
// instead of O(total).
func (c *Chain) IterType(entryType string) *ChainIterator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.iterTypeLocked(entryType)
}

// GetMostRecentHeaderForEntry returns the first header in
// IterType(entry.EntryType()) whose EntryAddress matches entry's address,
// or (nil, false, nil) if none does.
func (c *Chain) GetMostRecentHeaderForEntry(entry Entry) (*ChainHeader, bool, error) {
	addr, err := entry.Address()
	if err != nil {
		return nil, false, NewError(KindSerialization, "get_most_recent_header", err)
	}
	c.mu.RLock()
	start, ok := c.lastOfType[entry.EntryType()]
	store := c.store
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	it := &ChainIterator{store: store, next: &start, sameTypeOnly: true}
	for {
		h, ok, err := it.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if h.EntryAddress == addr {
			return h, true, nil
		}
	}
}
