package core

import (
	"context"
	"crypto/ed25519"
	"testing"
)

func TestWorkflowForAspect(t *testing.T) {
	cases := []struct {
		kind AspectKind
		want Workflow
	}{
		{AspectContent, WorkflowHoldEntry},
		{AspectHeader, WorkflowHoldEntry},
		{AspectLinkAdd, WorkflowHoldLink},
		{AspectLinkRemove, WorkflowRemoveLink},
		{AspectUpdate, WorkflowUpdateEntry},
		{AspectDeletion, WorkflowRemoveEntry},
	}
	for _, tc := range cases {
		got, err := workflowForAspect(EntryAspect{Kind: tc.kind})
		if err != nil {
			t.Fatalf("kind %s: %v", tc.kind, err)
		}
		if got != tc.want {
			t.Fatalf("kind %s: expected workflow %s, got %s", tc.kind, tc.want, got)
		}
	}
	if _, err := workflowForAspect(EntryAspect{Kind: "Bogus"}); err == nil {
		t.Fatal("expected error for an unknown aspect kind")
	}
}

func signedEntryAspect(t *testing.T, ks Keystore, entry Entry) (EntryAspect, ed25519.PublicKey) {
	t.Helper()
	entryAddr, err := entry.Address()
	if err != nil {
		t.Fatalf("entry address: %v", err)
	}
	sig, err := ks.Sign(context.Background(), []byte(entryAddr))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	header := ChainHeader{
		EntryType:    entry.EntryType(),
		EntryAddress: entryAddr,
		Provenances:  []Provenance{{Agent: "agent1", Signature: sig}},
	}
	return NewContentAspect(entry, header), ks.PublicKey()
}

func TestExecuteWorkflowAcceptsValidSystemEntry(t *testing.T) {
	cas := NewMemoryCAS()
	dht := NewDHTStore(cas, NewMemoryEAV())
	v := NewValidator(dht, nil, nil, nil)

	ks, err := NewInMemoryKeystore()
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	entry := Entry{Kind: EntryCapTokenGrant, Grant: &CapTokenGrant{Functions: map[string][]string{"posts": {"create_post"}}}}
	aspect, pub := signedEntryAspect(t, ks, entry)

	p, err := NewPendingValidationForAspect(aspect)
	if err != nil {
		t.Fatalf("new pending validation: %v", err)
	}

	outcome := v.ExecuteWorkflow(context.Background(), p, map[Address]ed25519.PublicKey{"agent1": pub})
	if outcome.Kind != OutcomeValid {
		t.Fatalf("expected OutcomeValid, got %+v", outcome)
	}

	entryAddr, _ := entry.Address()
	headerAddr, _ := p.EntryWithHeader.Header.Address()
	if !dht.Holding.Holds(p.EntryWithHeader.Header.EntryAddress, entryAddr, headerAddr) {
		t.Fatal("expected the validated aspect to be recorded in the holding map")
	}
}

func TestExecuteWorkflowRejectsBadSignature(t *testing.T) {
	cas := NewMemoryCAS()
	dht := NewDHTStore(cas, NewMemoryEAV())
	v := NewValidator(dht, nil, nil, nil)

	ks, err := NewInMemoryKeystore()
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	entry := Entry{Kind: EntryCapTokenGrant, Grant: &CapTokenGrant{Functions: map[string][]string{"posts": {"create_post"}}}}
	aspect, pub := signedEntryAspect(t, ks, entry)
	aspect.Header.Provenances[0].Signature = []byte("tampered")

	p, err := NewPendingValidationForAspect(aspect)
	if err != nil {
		t.Fatalf("new pending validation: %v", err)
	}

	outcome := v.ExecuteWorkflow(context.Background(), p, map[Address]ed25519.PublicKey{"agent1": pub})
	if outcome.Kind != OutcomeInvalid {
		t.Fatalf("expected OutcomeInvalid for a tampered signature, got %+v", outcome)
	}
}

func TestExecuteWorkflowReportsUnresolvedDependencies(t *testing.T) {
	cas := NewMemoryCAS()
	dht := NewDHTStore(cas, NewMemoryEAV())
	v := NewValidator(dht, nil, nil, nil)

	ks, err := NewInMemoryKeystore()
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	entry := Entry{Kind: EntryCapTokenGrant, Grant: &CapTokenGrant{Functions: map[string][]string{"posts": {"create_post"}}}}
	aspect, pub := signedEntryAspect(t, ks, entry)

	missingDep := Address("never-stored")
	p, err := NewPendingValidationForAspect(aspect)
	if err != nil {
		t.Fatalf("new pending validation: %v", err)
	}
	p.Dependencies = []Address{missingDep}

	outcome := v.ExecuteWorkflow(context.Background(), p, map[Address]ed25519.PublicKey{"agent1": pub})
	if outcome.Kind != OutcomeUnresolvedDependencies {
		t.Fatalf("expected OutcomeUnresolvedDependencies, got %+v", outcome)
	}
	if len(outcome.Dependencies) != 1 || outcome.Dependencies[0] != missingDep {
		t.Fatalf("expected missing dependency %s reported, got %v", missingDep, outcome.Dependencies)
	}
}

func TestExecuteWorkflowHoldLinkRecordsLink(t *testing.T) {
	cas := NewMemoryCAS()
	dht := NewDHTStore(cas, NewMemoryEAV())
	v := NewValidator(dht, nil, nil, nil)

	ks, err := NewInMemoryKeystore()
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	link := LinkData{Base: "base1", Target: "target1", LinkType: "friend", Tag: "t1"}
	entry := Entry{Kind: EntryLinkAdd, Link: &link}
	entryAddr, err := entry.Address()
	if err != nil {
		t.Fatalf("entry address: %v", err)
	}
	sig, err := ks.Sign(context.Background(), []byte(entryAddr))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	header := ChainHeader{
		EntryType:    entry.EntryType(),
		EntryAddress: entryAddr,
		Provenances:  []Provenance{{Agent: "agent1", Signature: sig}},
	}
	aspect := NewLinkAddAspect(link, header)

	p, err := NewPendingValidationForAspect(aspect)
	if err != nil {
		t.Fatalf("new pending validation: %v", err)
	}
	// link base and target are dependencies of WorkflowHoldLink; clear them
	// so the workflow does not wait for them to be stored.
	if _, err := cas.Add("base content"); err != nil {
		t.Fatalf("add: %v", err)
	}
	p.Dependencies = nil

	outcome := v.ExecuteWorkflow(context.Background(), p, map[Address]ed25519.PublicKey{"agent1": ks.PublicKey()})
	if outcome.Kind != OutcomeValid {
		t.Fatalf("expected OutcomeValid, got %+v", outcome)
	}

	links, err := dht.GetLinks(LinkQuery{Base: "base1"})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(links) != 1 || links[0].Target != "target1" {
		t.Fatalf("expected recorded link to target1, got %+v", links)
	}
}
