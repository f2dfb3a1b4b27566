package core

import "testing"

func TestChainHeaderAddressIsStableUnderReencoding(t *testing.T) {
	h := ChainHeader{EntryType: "post", EntryAddress: "entry1", Provenances: []Provenance{{Agent: "agent1", Signature: []byte("sig")}}}
	addr1, err := h.Address()
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	addr2, err := h.Address()
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if addr1 != addr2 {
		t.Fatalf("expected stable header address, got %s != %s", addr1, addr2)
	}
}

func TestChainHeaderAuthorReturnsFirstProvenance(t *testing.T) {
	h := ChainHeader{Provenances: []Provenance{{Agent: "agent1"}, {Agent: "agent2"}}}
	if got := h.Author(); got != "agent1" {
		t.Fatalf("expected agent1, got %s", got)
	}
}

func TestChainHeaderAuthorEmptyWithNoProvenances(t *testing.T) {
	var h ChainHeader
	if got := h.Author(); got != "" {
		t.Fatalf("expected empty author, got %s", got)
	}
}
