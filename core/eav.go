// Entity-Attribute-Value index — generalized from map+mutex state
// containers (AccessController, AuthoritySet) from a single-key cache
// into a multi-index queryable store.
package core

import "sync"

// AttributeKind discriminates the Attribute tagged union.
type AttributeKind string

const (
	AttrEntryHeader  AttributeKind = "EntryHeader"
	AttrLinkTag      AttributeKind = "LinkTag"
	AttrRemovedLink  AttributeKind = "RemovedLink"
	AttrCrudLink     AttributeKind = "CrudLink"
	AttrCrudStatus   AttributeKind = "CrudStatus"
)

// Attribute is the EAV tuple's attribute column.
type Attribute struct {
	Kind     AttributeKind `json:"kind"`
	LinkType string        `json:"link_type,omitempty"`
	Tag      string        `json:"tag,omitempty"`
}

// EAVTuple is one (entity, attribute, value, index) record. Index is
// assigned by the store on insert and increases monotonically.
type EAVTuple struct {
	Entity    Address   `json:"entity"`
	Attribute Attribute `json:"attribute"`
	Value     Address   `json:"value"`
	Index     int64     `json:"index"`
}

// EavFilter selects a subset of entity/attribute/value column values.
type EavFilter struct {
	kind      int // 0 = Any, 1 = Exact, 2 = Predicate
	exactAddr Address
	exactAttr Attribute
	predAddr  func(Address) bool
	predAttr  func(Attribute) bool
	isAttr    bool // whether this filter targets the Attribute column
}

// AnyFilter matches every value.
func AnyFilter() EavFilter { return EavFilter{kind: 0} }

// ExactAddr matches only addr.
func ExactAddr(addr Address) EavFilter { return EavFilter{kind: 1, exactAddr: addr} }

// ExactAttr matches only attr.
func ExactAttr(attr Attribute) EavFilter { return EavFilter{kind: 1, exactAttr: attr, isAttr: true} }

// PredicateAddr matches addresses for which f returns true.
func PredicateAddr(f func(Address) bool) EavFilter { return EavFilter{kind: 2, predAddr: f} }

// PredicateAttr matches attributes for which f returns true.
func PredicateAttr(f func(Attribute) bool) EavFilter {
	return EavFilter{kind: 2, predAttr: f, isAttr: true}
}

func (f EavFilter) matchAddr(v Address) bool {
	switch f.kind {
	case 0:
		return true
	case 1:
		return f.exactAddr == v
	case 2:
		return f.predAddr == nil || f.predAddr(v)
	default:
		return false
	}
}

func (f EavFilter) matchAttr(v Attribute) bool {
	switch f.kind {
	case 0:
		return true
	case 1:
		return f.exactAttr == v
	case 2:
		return f.predAttr == nil || f.predAttr(v)
	default:
		return false
	}
}

// IndexFilterKind selects EaviQuery's post-filter index semantics.
type IndexFilterKind int

const (
	IndexNone IndexFilterKind = iota
	IndexLatestByAttribute
	IndexRange
)

// EaviQuery describes a fetch_eavi request.
type EaviQuery struct {
	Entity      EavFilter
	Attribute   EavFilter
	Value       EavFilter
	IndexFilter IndexFilterKind
	RangeLo     int64
	RangeHi     int64
	// Tombstone, if set, names an attribute filter: within each (entity,
	// link_type, tag, value) group that holds a matching tuple, only the
	// matching tuples are returned.
	Tombstone    *EavFilter
	HasTombstone bool
}

// EAV is the Entity-Attribute-Value index contract shared by the DHT
// store's meta_storage.
type EAV interface {
	AddEAVI(t EAVTuple) (EAVTuple, error)
	FetchEAVI(q EaviQuery) ([]EAVTuple, error)
}

// MemoryEAV is a slice+RWMutex backed EAV store with a monotonically
// increasing index counter.
type MemoryEAV struct {
	mu      sync.RWMutex
	tuples  []EAVTuple
	nextIdx int64
}

// NewMemoryEAV constructs an empty EAV index.
func NewMemoryEAV() *MemoryEAV {
	return &MemoryEAV{}
}

// AddEAVI stores t, assigning it the next monotonically increasing
// index, and returns the stored tuple.
func (e *MemoryEAV) AddEAVI(t EAVTuple) (EAVTuple, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t.Index = e.nextIdx
	e.nextIdx++
	e.tuples = append(e.tuples, t)
	return t, nil
}

// FetchEAVI executes q against the store, applying column filters, the
// LatestByAttribute grouping, and tombstone override in that order.
func (e *MemoryEAV) FetchEAVI(q EaviQuery) ([]EAVTuple, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var matched []EAVTuple
	for _, t := range e.tuples {
		if !q.Entity.matchAddr(t.Entity) {
			continue
		}
		if !q.Attribute.matchAttr(t.Attribute) {
			continue
		}
		if !q.Value.matchAddr(t.Value) {
			continue
		}
		if q.IndexFilter == IndexRange && (t.Index < q.RangeLo || t.Index > q.RangeHi) {
			continue
		}
		matched = append(matched, t)
	}

	if q.IndexFilter == IndexLatestByAttribute {
		matched = latestByAttribute(matched)
	}

	if q.HasTombstone && q.Tombstone != nil {
		matched = applyTombstone(matched, *q.Tombstone)
	}

	return matched, nil
}

// latestByAttribute groups tuples by (entity, attribute, value) and
// keeps only the tuple with the highest index per group. Value is part
// of the group key because a LinkAdd entry occupies the Value column:
// two live links sharing the same (link_type, tag) but distinct targets
// are distinct LinkAdd entries and must survive as distinct tuples, not
// collapse onto whichever was inserted last.
func latestByAttribute(in []EAVTuple) []EAVTuple {
	type key struct {
		entity Address
		attr   Attribute
		value  Address
	}
	best := make(map[key]EAVTuple)
	order := make([]key, 0, len(in))
	for _, t := range in {
		k := key{t.Entity, t.Attribute, t.Value}
		if cur, ok := best[k]; !ok || t.Index > cur.Index {
			if _, existed := best[k]; !existed {
				order = append(order, k)
			}
			best[k] = t
		}
	}
	out := make([]EAVTuple, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// applyTombstone overrides within a group: any tuple matching the
// tombstone filter within an (entity, link_type, tag, value) group
// replaces prior tuples within that same group. Value is part of the
// group key so that a LinkRemove (which carries the same Value as the
// LinkAdd it targets) only tombstones that specific LinkAdd, not every
// link sharing its (link_type, tag) under the base.
func applyTombstone(in []EAVTuple, tomb EavFilter) []EAVTuple {
	type groupKey struct {
		entity   Address
		linkType string
		tag      string
		value    Address
	}
	groups := make(map[groupKey][]EAVTuple)
	var order []groupKey
	for _, t := range in {
		gk := groupKey{t.Entity, t.Attribute.LinkType, t.Attribute.Tag, t.Value}
		if _, ok := groups[gk]; !ok {
			order = append(order, gk)
		}
		groups[gk] = append(groups[gk], t)
	}

	var out []EAVTuple
	for _, gk := range order {
		members := groups[gk]
		var tombstoned []EAVTuple
		for _, t := range members {
			if tomb.matchAttr(t.Attribute) {
				tombstoned = append(tombstoned, t)
			}
		}
		if len(tombstoned) > 0 {
			out = append(out, tombstoned...)
		} else {
			out = append(out, members...)
		}
	}
	return out
}
