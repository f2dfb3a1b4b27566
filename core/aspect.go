// EntryAspect — the DHT-level unit of replication, and its
// base-entry-address derivation used by the Holding Map and validation
// workflows.
package core

import "errors"

// AspectKind discriminates the EntryAspect tagged union.
type AspectKind string

const (
	AspectContent    AspectKind = "Content"
	AspectHeader     AspectKind = "Header"
	AspectLinkAdd    AspectKind = "LinkAdd"
	AspectLinkRemove AspectKind = "LinkRemove"
	AspectUpdate     AspectKind = "Update"
	AspectDeletion   AspectKind = "Deletion"
)

// EntryAspect is one replication unit on the DHT.
type EntryAspect struct {
	Kind AspectKind `json:"kind"`

	// Content, Update
	Entry *Entry `json:"entry,omitempty"`

	// Content, Header, LinkAdd, LinkRemove, Update, Deletion
	Header *ChainHeader `json:"header,omitempty"`

	// LinkAdd
	Link *LinkData `json:"link,omitempty"`

	// LinkRemove
	RemovedLink  *LinkData `json:"removed_link,omitempty"`
	RemovedAddrs []Address `json:"removed_addrs,omitempty"`
}

// Address computes the aspect's own content address.
func (a EntryAspect) Address() (Address, error) {
	return HashContent(a)
}

// BaseEntryAddress returns the entity this aspect is "meta to": its own
// address for Content/Header, the linked base for LinkAdd/LinkRemove,
// and the target entry's address for Update/Deletion.
func (a EntryAspect) BaseEntryAddress() (Address, error) {
	switch a.Kind {
	case AspectContent:
		if a.Header == nil {
			return "", errors.New("content aspect missing header")
		}
		return a.Header.EntryAddress, nil
	case AspectHeader:
		if a.Header == nil {
			return "", errors.New("header aspect missing header")
		}
		return a.Header.EntryAddress, nil
	case AspectLinkAdd:
		if a.Link == nil {
			return "", errors.New("link add aspect missing link")
		}
		return a.Link.Base, nil
	case AspectLinkRemove:
		if a.RemovedLink == nil {
			return "", errors.New("link remove aspect missing removed link")
		}
		return a.RemovedLink.Base, nil
	case AspectUpdate:
		if a.Header == nil || a.Header.LinkUpdateDelete == nil {
			return "", errors.New("update aspect missing replaced-entry reference")
		}
		return *a.Header.LinkUpdateDelete, nil
	case AspectDeletion:
		if a.Header == nil || a.Header.LinkUpdateDelete == nil {
			return "", errors.New("deletion aspect missing deleted-entry reference")
		}
		return *a.Header.LinkUpdateDelete, nil
	default:
		return "", errors.New("unknown aspect kind")
	}
}

// NewContentAspect builds a Content aspect from an entry and its
// authoring header.
func NewContentAspect(e Entry, h ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectContent, Entry: &e, Header: &h}
}

// NewHeaderAspect builds a bare Header aspect.
func NewHeaderAspect(h ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectHeader, Header: &h}
}

// NewLinkAddAspect builds a LinkAdd aspect.
func NewLinkAddAspect(link LinkData, h ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectLinkAdd, Link: &link, Header: &h}
}

// NewLinkRemoveAspect builds a LinkRemove aspect tombstoning removedAddrs.
func NewLinkRemoveAspect(link LinkData, removedAddrs []Address, h ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectLinkRemove, RemovedLink: &link, RemovedAddrs: removedAddrs, Header: &h}
}

// NewUpdateAspect builds an Update aspect replacing the entry at
// h.LinkUpdateDelete with newEntry.
func NewUpdateAspect(newEntry Entry, h ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectUpdate, Entry: &newEntry, Header: &h}
}

// NewDeletionAspect builds a Deletion aspect removing the entry named by
// h.LinkUpdateDelete.
func NewDeletionAspect(h ChainHeader) EntryAspect {
	return EntryAspect{Kind: AspectDeletion, Header: &h}
}
