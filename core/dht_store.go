// DHT Store — shared network-facing content + metadata store, built
// from the same CAS/EAV primitives as the per-agent chain but indexed
// for link queries. Generalized from access-control group-membership
// lookups into a regex-matched link retrieval query surface.
package core

import (
	"regexp"
	"sort"
)

// compileRegex compiles pattern, used to turn a LinkQueryWire's regex
// strings back into the *regexp.Regexp LinkQuery expects.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}

// CrudFilter restricts get_links results by link liveness.
type CrudFilter int

const (
	CrudAll CrudFilter = iota
	CrudLiveOnly
	CrudDeletedOnly
)

// LinkStatus labels one get_links result.
type LinkStatus string

const (
	LinkLive    LinkStatus = "Live"
	LinkDeleted LinkStatus = "Deleted"
)

// LinkQuery parameterizes DHTStore.GetLinks.
type LinkQuery struct {
	Base          Address
	LinkTypeRegex *regexp.Regexp
	TagRegex      *regexp.Regexp
	Crud          CrudFilter
	PageNumber    int
	PageSize      int
}

// LinkResult is one get_links result row.
type LinkResult struct {
	Target   Address
	LinkType string
	Tag      string
	Status   LinkStatus
}

// DHTStore holds the shared content the network has committed to store:
// content_storage (distinct from any agent's local chain CAS),
// meta_storage, the holding map, and the pending validation queue.
type DHTStore struct {
	ContentStorage CAS
	MetaStorage    EAV
	Holding        *HoldingMap
	Queue          *ValidationQueue
}

// NewDHTStore wires a fresh DHT store over the given backends.
func NewDHTStore(content CAS, meta EAV) *DHTStore {
	return &DHTStore{
		ContentStorage: content,
		MetaStorage:    meta,
		Holding:        NewHoldingMap(),
		Queue:          NewValidationQueue(),
	}
}

// RecordLink appends an EAV tuple for a LinkAdd aspect's (link_type, tag)
// under the link's base entity.
func (d *DHTStore) RecordLink(base Address, target Address, linkType, tag string) error {
	_, err := d.MetaStorage.AddEAVI(EAVTuple{
		Entity:    base,
		Attribute: Attribute{Kind: AttrLinkTag, LinkType: linkType, Tag: tag},
		Value:     target,
	})
	return err
}

// RecordLinkRemove appends a tombstoning EAV tuple for a LinkRemove
// aspect, scoped to the same (base, link_type, tag) as the LinkAdd it
// removes.
func (d *DHTStore) RecordLinkRemove(base Address, target Address, linkType, tag string) error {
	_, err := d.MetaStorage.AddEAVI(EAVTuple{
		Entity:    base,
		Attribute: Attribute{Kind: AttrRemovedLink, LinkType: linkType, Tag: tag},
		Value:     target,
	})
	return err
}

// GetLinks runs the link retrieval pipeline: regex match on
// (link_type, tag), LatestByAttribute grouping, tombstone override,
// CRUD filter, then pagination.
func (d *DHTStore) GetLinks(q LinkQuery) ([]LinkResult, error) {
	attrFilter := PredicateAttr(func(a Attribute) bool {
		if a.Kind != AttrLinkTag && a.Kind != AttrRemovedLink {
			return false
		}
		if q.LinkTypeRegex != nil && !q.LinkTypeRegex.MatchString(a.LinkType) {
			return false
		}
		if q.TagRegex != nil && !q.TagRegex.MatchString(a.Tag) {
			return false
		}
		return true
	})
	tomb := PredicateAttr(func(a Attribute) bool { return a.Kind == AttrRemovedLink })

	tuples, err := d.MetaStorage.FetchEAVI(EaviQuery{
		Entity:       ExactAddr(q.Base),
		Attribute:    attrFilter,
		Value:        AnyFilter(),
		IndexFilter:  IndexLatestByAttribute,
		Tombstone:    &tomb,
		HasTombstone: true,
	})
	if err != nil {
		return nil, err
	}

	results := make([]LinkResult, 0, len(tuples))
	for _, t := range tuples {
		status := LinkLive
		if t.Attribute.Kind == AttrRemovedLink {
			status = LinkDeleted
		}
		if q.Crud == CrudLiveOnly && status != LinkLive {
			continue
		}
		if q.Crud == CrudDeletedOnly && status != LinkDeleted {
			continue
		}
		results = append(results, LinkResult{
			Target:   t.Value,
			LinkType: t.Attribute.LinkType,
			Tag:      t.Attribute.Tag,
			Status:   status,
		})
	}

	// Stable, deterministic ordering before pagination: by link type,
	// then tag, then target.
	sort.Slice(results, func(i, j int) bool {
		if results[i].LinkType != results[j].LinkType {
			return results[i].LinkType < results[j].LinkType
		}
		if results[i].Tag != results[j].Tag {
			return results[i].Tag < results[j].Tag
		}
		return results[i].Target < results[j].Target
	})

	if q.PageSize <= 0 {
		return results, nil
	}
	skip := q.PageNumber * q.PageSize
	if skip >= len(results) {
		return nil, nil
	}
	end := skip + q.PageSize
	if end > len(results) {
		end = len(results)
	}
	return results[skip:end], nil
}
