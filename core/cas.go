// Content-addressed storage — generalized from an IPFS gateway cache
// (diskLRU-style) to a no-eviction, idempotent-add contract: CAS never
// removes content, and cloning a handle must observe the same writes as
// the original (cross-thread visibility is the property cas_test.go
// exercises).
package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// CAS is the content-addressed store contract shared by the chain's local
// storage and the DHT's shared storage.
type CAS interface {
	// Add stores content, idempotently. Add is keyed by Address(content);
	// adding identical content twice is a no-op.
	Add(content interface{}) (Address, error)
	// Contains reports whether addr is present.
	Contains(addr Address) (bool, error)
	// Fetch returns the raw JSON bytes stored at addr, or (nil, false) if
	// unknown — fetch of an unknown address is not an error.
	Fetch(addr Address) ([]byte, bool, error)
	// ID returns a stable identifier for this store instance.
	ID() string
}

// MemoryCAS is a map+RWMutex backed CAS. Two handles returned by the same
// *MemoryCAS share state — this type does not itself support "clones";
// callers share the pointer, which already satisfies the cross-thread
// visibility invariant.
type MemoryCAS struct {
	mu   sync.RWMutex
	id   string
	data map[Address][]byte
}

// NewMemoryCAS constructs an empty in-memory CAS.
func NewMemoryCAS() *MemoryCAS {
	return &MemoryCAS{id: uuid.NewString(), data: make(map[Address][]byte)}
}

// Add implements CAS.
func (c *MemoryCAS) Add(content interface{}) (Address, error) {
	raw, err := CanonicalJSON(content)
	if err != nil {
		return "", NewError(KindSerialization, "cas_add", err)
	}
	addr := HashBytes(raw)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[addr]; !ok {
		c.data[addr] = raw
	}
	return addr, nil
}

// Contains implements CAS.
func (c *MemoryCAS) Contains(addr Address) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[addr]
	return ok, nil
}

// Fetch implements CAS.
func (c *MemoryCAS) Fetch(addr Address) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, ok := c.data[addr]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true, nil
}

// ID implements CAS.
func (c *MemoryCAS) ID() string { return c.id }

// FetchInto fetches addr and unmarshals it into dst. A convenience built
// on Fetch for typed callers (Chain, DHTStore).
func FetchInto(c CAS, addr Address, dst interface{}) (bool, error) {
	raw, ok, err := c.Fetch(addr)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, NewError(KindSerialization, "cas_fetch_into", err)
	}
	return true, nil
}

// FileCAS is a directory-backed CAS: one file per address. Built on a
// diskLRU-style layout minus the LRU eviction — this store never
// evicts.
type FileCAS struct {
	mu  sync.RWMutex
	id  string
	dir string
}

// NewFileCAS opens (creating if necessary) a directory-backed CAS rooted
// at dir.
func NewFileCAS(dir string) (*FileCAS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewError(KindIO, "new_file_cas", err)
	}
	return &FileCAS{id: uuid.NewString(), dir: dir}, nil
}

func (c *FileCAS) path(addr Address) string {
	return filepath.Join(c.dir, addr.String())
}

// Add implements CAS.
func (c *FileCAS) Add(content interface{}) (Address, error) {
	raw, err := CanonicalJSON(content)
	if err != nil {
		return "", NewError(KindSerialization, "cas_add", err)
	}
	addr := HashBytes(raw)
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.path(addr)
	if _, err := os.Stat(p); err == nil {
		return addr, nil // idempotent
	}
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		return "", NewError(KindIO, "cas_add", err)
	}
	return addr, nil
}

// Contains implements CAS.
func (c *FileCAS) Contains(addr Address) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := os.Stat(c.path(addr))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, NewError(KindIO, "cas_contains", err)
}

// Fetch implements CAS.
func (c *FileCAS) Fetch(addr Address) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, err := os.ReadFile(c.path(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, NewError(KindIO, "cas_fetch", err)
	}
	return raw, true, nil
}

// ID implements CAS.
func (c *FileCAS) ID() string { return c.id }
