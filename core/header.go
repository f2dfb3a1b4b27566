package core

import "time"

// Provenance is an (agent, signature) pair attesting to some content.
type Provenance struct {
	Agent     Address `json:"agent"`
	Signature []byte  `json:"signature"`
}

// ChainHeader is the chain link describing one entry's authorship.
// Timestamps are advisory and are never validated against wall-clock.
type ChainHeader struct {
	EntryType        string       `json:"entry_type"`
	EntryAddress     Address      `json:"entry_address"`
	Provenances      []Provenance `json:"provenances"`
	Link             *Address     `json:"link,omitempty"`
	LinkSameType     *Address     `json:"link_same_type,omitempty"`
	LinkUpdateDelete *Address     `json:"link_update_delete,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
}

// Address computes the header's content address.
func (h ChainHeader) Address() (Address, error) {
	return HashContent(h)
}

// Author returns the first provenance's agent address, the header's
// primary author.
func (h ChainHeader) Author() Address {
	if len(h.Provenances) == 0 {
		return ""
	}
	return h.Provenances[0].Agent
}
