package core

import "errors"

// EntryKind tags the variant held by an Entry. Its zero value ("") names
// no variant and Entry.Validate rejects it; NewAppEntry sets EntryApp
// explicitly.
type EntryKind string

const (
	EntryApp            EntryKind = "App"
	EntryAgentID        EntryKind = "AgentId"
	EntryDna            EntryKind = "Dna"
	EntryChainHeaderKind EntryKind = "ChainHeader"
	EntryCapTokenGrant  EntryKind = "CapTokenGrant"
	EntryCapTokenClaim  EntryKind = "CapTokenClaim"
	EntryLinkAdd        EntryKind = "LinkAdd"
	EntryLinkRemove     EntryKind = "LinkRemove"
	EntryDeletion       EntryKind = "Deletion"
)

// LinkData names a base->target edge and its (link_type, tag) label.
type LinkData struct {
	Base     Address `json:"base"`
	Target   Address `json:"target"`
	LinkType string  `json:"link_type"`
	Tag      string  `json:"tag"`
}

// Entry is the tagged union of every chain-entry variant. Only the
// fields relevant to Kind are populated; this mirrors the
// common_structs.go convention of flat, JSON-tagged structs shared
// across subsystems, here generalized to a closed sum type via the Kind
// discriminant.
type Entry struct {
	Kind EntryKind `json:"kind"`

	// App
	AppType    string `json:"app_type,omitempty"`
	AppPayload []byte `json:"app_payload,omitempty"`

	// AgentId
	AgentPublicKey []byte `json:"agent_public_key,omitempty"`

	// Dna
	DnaManifest *DNA `json:"dna_manifest,omitempty"`

	// ChainHeader (bare-header-as-entry propagation)
	Header *ChainHeader `json:"header,omitempty"`

	// CapTokenGrant / CapTokenClaim
	Grant *CapTokenGrant `json:"grant,omitempty"`
	Claim *CapTokenClaim `json:"claim,omitempty"`

	// LinkAdd / LinkRemove
	Link         *LinkData `json:"link,omitempty"`
	RemovedAddrs []Address `json:"removed_addrs,omitempty"`

	// Deletion
	DeletedAddr Address `json:"deleted_addr,omitempty"`
}

// NewAppEntry builds an App entry for the given DNA-declared type tag.
func NewAppEntry(typeTag string, payload []byte) Entry {
	return Entry{Kind: EntryApp, AppType: typeTag, AppPayload: payload}
}

// EntryType returns the index key used by Chain.IterType: the app's
// declared type tag for App entries, the Kind name for system entries.
func (e Entry) EntryType() string {
	if e.Kind == EntryApp {
		return e.AppType
	}
	return string(e.Kind)
}

// Address computes the content address: hash(canonical-JSON(entry)).
func (e Entry) Address() (Address, error) {
	return HashContent(e)
}

// Validate performs the structural shape checks appropriate to Kind,
// independent of any chain/DHT context.
func (e Entry) Validate() error {
	switch e.Kind {
	case EntryApp:
		if e.AppType == "" {
			return errors.New("app entry missing type tag")
		}
	case EntryAgentID:
		if len(e.AgentPublicKey) == 0 {
			return errors.New("agent id entry missing public key")
		}
	case EntryDna:
		if e.DnaManifest == nil {
			return errors.New("dna entry missing manifest")
		}
	case EntryLinkAdd:
		if e.Link == nil || e.Link.Base.Empty() || e.Link.Target.Empty() {
			return errors.New("link add entry missing base/target")
		}
	case EntryLinkRemove:
		if e.Link == nil || len(e.RemovedAddrs) == 0 {
			return errors.New("link remove entry missing removed addresses")
		}
	case EntryDeletion:
		if e.DeletedAddr.Empty() {
			return errors.New("deletion entry missing target address")
		}
	case EntryCapTokenGrant:
		if e.Grant == nil {
			return errors.New("cap token grant entry missing grant")
		}
	case EntryCapTokenClaim:
		if e.Claim == nil {
			return errors.New("cap token claim entry missing claim")
		}
	case EntryChainHeaderKind:
		if e.Header == nil {
			return errors.New("chain header entry missing header")
		}
	default:
		return errors.New("unknown entry kind")
	}
	return nil
}
