// Package core implements the source chain, content-addressed storage, DHT
// replication/validation pipeline and zome execution runtime described by
// the holonet specification.
package core

import (
	"crypto/sha256"
	"encoding/json"

	mh "github.com/multiformats/go-multihash"
	"github.com/mr-tron/base58"
)

// Address is a base58-encoded multihash of canonical-JSON-serialized
// content. It is the universal key type: entries, headers, aspects and
// DNAs are all addressed this way.
type Address string

// String returns the base58 text form.
func (a Address) String() string { return string(a) }

// Empty reports whether the address carries no bytes.
func (a Address) Empty() bool { return a == "" }

// HashContent computes the Address of arbitrary content by taking the
// sha2-256 multihash of its canonical-JSON encoding and base58-encoding
// the resulting (34-byte, including multihash prefix) digest. This is the
// multihash step of a CID derivation, without the CID wrapper, generalized
// from an IPFS pin identifier to the universal address type every holonet
// value is keyed by.
func HashContent(v interface{}) (Address, error) {
	raw, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return HashBytes(raw), nil
}

// HashBytes computes the Address of raw bytes directly, without a
// canonical-JSON encoding step. Used for aspect wire payloads, which are
// already length-prefixed JSON on the bus.
func HashBytes(raw []byte) Address {
	sum := sha256.Sum256(raw)
	digest, err := mh.Encode(sum[:], mh.SHA2_256)
	if err != nil {
		// mh.Encode only fails for unknown hash codes; SHA2_256 is always
		// known, so this is unreachable in practice.
		panic(err)
	}
	return Address(base58.Encode(digest))
}

// CanonicalJSON serializes v with sorted map keys and no extraneous
// whitespace so that two equivalent values always hash to the same
// Address. encoding/json already sorts struct fields by declaration order
// and map keys lexicographically, which is sufficient determinism for the
// struct-tagged types in this package.
func CanonicalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// VerifyAddress reports whether content hashes to want — used by CAS.Add
// callers that already know the expected address and by validation
// workflows checking header.EntryAddress against a fetched entry.
func VerifyAddress(v interface{}, want Address) bool {
	got, err := HashContent(v)
	if err != nil {
		return false
	}
	return got == want
}
