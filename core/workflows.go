// Validation workflows — the five aspect-handling pipelines, generalized
// from a block-validation pipeline's applyBlock structural checks into
// entry/link/update/deletion workflows dispatched by aspect kind.
package core

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"
)

// ValidationPackageLevel is the DNA-declared minimum context a callback
// needs to judge an entry.
type ValidationPackageLevel int

const (
	ValidationPackageEntry ValidationPackageLevel = iota
	ValidationPackageChainEntries
	ValidationPackageChainHeaders
	ValidationPackageChainFull
	ValidationPackageCustom
)

// ValidationPackage is the context supplied to a validation callback:
// the entry and header under judgment, plus whatever chain excerpt the
// declared level requires.
type ValidationPackage struct {
	Level        ValidationPackageLevel
	Entry        Entry
	Header       ChainHeader
	ChainEntries []Entry       `json:"chain_entries,omitempty"`
	ChainHeaders []ChainHeader `json:"chain_headers,omitempty"`
	Custom       []byte        `json:"custom,omitempty"`
}

// ValidationOutcomeKind is the result of running a workflow's callback
// dispatch step.
type ValidationOutcomeKind int

const (
	OutcomeValid ValidationOutcomeKind = iota
	OutcomeInvalid
	OutcomeUnresolvedDependencies
	OutcomeTimeout
)

// ValidationOutcome is the structured result of ExecuteWorkflow.
type ValidationOutcome struct {
	Kind         ValidationOutcomeKind
	Reason       string
	Dependencies []Address
}

// PackageFetcher sends FetchValidationPackage to one of a header's
// provenances and awaits the response, for DNAs that declare a
// validation package requirement exceeding Entry. Implemented by the
// network handler.
type PackageFetcher interface {
	FetchValidationPackage(ctx context.Context, provenance Address, entryAddr Address, level ValidationPackageLevel, timeout time.Duration) (*ValidationPackage, error)
}

// AppEntryValidator invokes the declaring zome's __hdk_validate_app_entry
// WASM callback. Implemented by the WASM runtime (the Ribosome).
type AppEntryValidator interface {
	ValidateAppEntry(ctx context.Context, zomeName, entryType string, pkg ValidationPackage) (ValidationOutcome, error)
}

// Validator wires the collaborators a workflow needs: the DHT store it
// reads dependencies from and writes holdings to, the DNA governing
// entry-type rules, and the package/callback collaborators.
type Validator struct {
	DHT      *DHTStore
	DNA      *DNA
	Packages PackageFetcher
	Ribosome AppEntryValidator

	PackageTimeout time.Duration
}

// NewValidator constructs a Validator. Packages/Ribosome may be nil when
// no App entries or non-Entry-level validation packages are exercised
// (tests commonly stub these).
func NewValidator(dht *DHTStore, dna *DNA, packages PackageFetcher, ribosome AppEntryValidator) *Validator {
	return &Validator{DHT: dht, DNA: dna, Packages: packages, Ribosome: ribosome, PackageTimeout: 30 * time.Second}
}

// workflowForAspect maps an aspect kind to the workflow it triggers.
func workflowForAspect(a EntryAspect) (Workflow, error) {
	switch a.Kind {
	case AspectContent, AspectHeader:
		return WorkflowHoldEntry, nil
	case AspectLinkAdd:
		return WorkflowHoldLink, nil
	case AspectLinkRemove:
		return WorkflowRemoveLink, nil
	case AspectUpdate:
		return WorkflowUpdateEntry, nil
	case AspectDeletion:
		return WorkflowRemoveEntry, nil
	default:
		return "", fmt.Errorf("no workflow for aspect kind %s", a.Kind)
	}
}

// NewPendingValidationForAspect builds the PendingValidation this aspect
// should be queued as, with its initial dependency list.
func NewPendingValidationForAspect(a EntryAspect) (*PendingValidation, error) {
	wf, err := workflowForAspect(a)
	if err != nil {
		return nil, err
	}
	if a.Header == nil {
		return nil, errors.New("aspect missing header")
	}

	var entry Entry
	switch {
	case a.Entry != nil:
		entry = *a.Entry
	case a.Kind == AspectLinkAdd && a.Link != nil:
		entry = Entry{Kind: EntryLinkAdd, Link: a.Link}
	case a.Kind == AspectLinkRemove && a.RemovedLink != nil:
		entry = Entry{Kind: EntryLinkRemove, Link: a.RemovedLink, RemovedAddrs: a.RemovedAddrs}
	}
	ewh := EntryWithHeader{Entry: entry, Header: *a.Header}

	var deps []Address
	switch wf {
	case WorkflowHoldEntry:
		if a.Header.Link != nil {
			deps = append(deps, *a.Header.Link)
		}
		if a.Header.LinkSameType != nil {
			deps = append(deps, *a.Header.LinkSameType)
		}
	case WorkflowHoldLink:
		if a.Link != nil {
			deps = append(deps, a.Link.Base, a.Link.Target)
		}
	case WorkflowRemoveLink:
		deps = append(deps, a.RemovedAddrs...)
	case WorkflowUpdateEntry, WorkflowRemoveEntry:
		if a.Header.LinkUpdateDelete != nil {
			deps = append(deps, *a.Header.LinkUpdateDelete)
		}
	}

	return &PendingValidation{EntryWithHeader: ewh, WorkflowKind: wf, Dependencies: deps}, nil
}

// missingDependencies returns the subset of addrs not present in the
// DHT's content storage.
func (v *Validator) missingDependencies(addrs []Address) ([]Address, error) {
	var missing []Address
	for _, a := range addrs {
		ok, err := v.DHT.ContentStorage.Contains(a)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, a)
		}
	}
	return missing, nil
}

// structuralCheck verifies every provenance's signature over
// entry.address, verifies header.entry_address == entry.address, and
// verifies entry-type-specific shape.
func structuralCheck(p *PendingValidation, provenancePubKeys map[Address]ed25519.PublicKey) error {
	entry := p.EntryWithHeader.Entry
	header := p.EntryWithHeader.Header

	entryAddr, err := entry.Address()
	if err != nil {
		return err
	}
	if header.EntryAddress != entryAddr {
		return fmt.Errorf("header entry_address %s does not match entry address %s", header.EntryAddress, entryAddr)
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	for _, prov := range header.Provenances {
		pub, ok := provenancePubKeys[prov.Agent]
		if !ok {
			continue // public key unknown locally; caller-supplied map may be partial
		}
		if !ed25519.Verify(pub, []byte(entryAddr), prov.Signature) {
			return fmt.Errorf("invalid signature from provenance %s", prov.Agent)
		}
	}
	return nil
}

// callbackDispatch runs the workflow's callback step: App entries
// invoke the declaring zome's WASM validation callback; system entries
// apply built-in rules.
func (v *Validator) callbackDispatch(ctx context.Context, p *PendingValidation, pkg ValidationPackage) (ValidationOutcome, error) {
	entry := p.EntryWithHeader.Entry

	switch entry.Kind {
	case EntryApp:
		if v.Ribosome == nil {
			return ValidationOutcome{}, errors.New("no ribosome wired for app entry validation")
		}
		zomeName, err := v.zomeDeclaringEntryType(entry.AppType)
		if err != nil {
			return ValidationOutcome{Kind: OutcomeInvalid, Reason: err.Error()}, nil
		}
		return v.Ribosome.ValidateAppEntry(ctx, zomeName, entry.AppType, pkg)

	case EntryAgentID:
		for _, prov := range p.EntryWithHeader.Header.Provenances {
			if prov.Agent == p.EntryWithHeader.Header.EntryAddress {
				return ValidationOutcome{Kind: OutcomeValid}, nil
			}
		}
		expect, err := AgentAddress(entry.AgentPublicKey)
		if err != nil || expect != p.EntryWithHeader.Header.EntryAddress {
			return ValidationOutcome{Kind: OutcomeInvalid, Reason: "agent id entry does not match its own address"}, nil
		}
		return ValidationOutcome{Kind: OutcomeValid}, nil

	case EntryDna:
		if entry.DnaManifest == nil {
			return ValidationOutcome{Kind: OutcomeInvalid, Reason: "missing dna manifest"}, nil
		}
		if err := entry.DnaManifest.Validate(); err != nil {
			return ValidationOutcome{Kind: OutcomeInvalid, Reason: err.Error()}, nil
		}
		return ValidationOutcome{Kind: OutcomeValid}, nil

	case EntryCapTokenGrant:
		if entry.Grant == nil || len(entry.Grant.Functions) == 0 {
			return ValidationOutcome{Kind: OutcomeInvalid, Reason: "empty capability grant"}, nil
		}
		return ValidationOutcome{Kind: OutcomeValid}, nil

	default:
		// LinkAdd/LinkRemove/Deletion/CapTokenClaim/ChainHeader entries carry
		// no further built-in rule beyond the structural check already run.
		return ValidationOutcome{Kind: OutcomeValid}, nil
	}
}

func (v *Validator) zomeDeclaringEntryType(entryType string) (string, error) {
	if v.DNA == nil {
		return "", fmt.Errorf("no dna wired to resolve entry type %s", entryType)
	}
	for zomeName, z := range v.DNA.Zomes {
		if _, ok := z.EntryTypeNamed(entryType); ok {
			return zomeName, nil
		}
	}
	return "", fmt.Errorf("entry type %s declared by no zome", entryType)
}

// applyValid commits the outcome of a Valid result: it records the
// aspect in the holding map and writes the corresponding EAV tuples.
func (v *Validator) applyValid(p *PendingValidation, baseAddr Address) error {
	entryAddr, err := p.EntryWithHeader.Entry.Address()
	if err != nil {
		return err
	}
	headerAddr, err := p.EntryWithHeader.Header.Address()
	if err != nil {
		return err
	}

	switch p.WorkflowKind {
	case WorkflowHoldLink:
		if p.EntryWithHeader.Entry.Link != nil {
			ld := p.EntryWithHeader.Entry.Link
			if err := v.DHT.RecordLink(ld.Base, ld.Target, ld.LinkType, ld.Tag); err != nil {
				return err
			}
		}
	case WorkflowRemoveLink:
		if p.EntryWithHeader.Entry.Link != nil {
			ld := p.EntryWithHeader.Entry.Link
			if err := v.DHT.RecordLinkRemove(ld.Base, ld.Target, ld.LinkType, ld.Tag); err != nil {
				return err
			}
		}
	}

	v.DHT.Holding.Add(baseAddr, entryAddr, headerAddr)
	return nil
}

// ExecuteWorkflow runs p's workflow end to end: dependency check,
// structural check, callback dispatch, and outcome handling. The
// validation package level is always Entry, because the DNA manifest
// declares no package level, so no package is fetched from a provenance
// and the callback receives only the entry and its header.
func (v *Validator) ExecuteWorkflow(ctx context.Context, p *PendingValidation, provenancePubKeys map[Address]ed25519.PublicKey) ValidationOutcome {
	missing, err := v.missingDependencies(p.Dependencies)
	if err != nil {
		return ValidationOutcome{Kind: OutcomeTimeout, Reason: err.Error(), Dependencies: p.Dependencies}
	}
	if len(missing) > 0 {
		return ValidationOutcome{Kind: OutcomeUnresolvedDependencies, Dependencies: missing}
	}

	level := ValidationPackageEntry
	if v.DNA != nil {
		if zomeName, err := v.zomeDeclaringEntryType(p.EntryWithHeader.Entry.EntryType()); err == nil {
			_ = zomeName // level resolution beyond Entry is DNA-config-driven; Entry is the default floor.
		}
	}

	pkg := ValidationPackage{Level: level, Entry: p.EntryWithHeader.Entry, Header: p.EntryWithHeader.Header}
	if level != ValidationPackageEntry && v.Packages != nil {
		provenance := p.EntryWithHeader.Header.Author()
		entryAddr, err := p.EntryWithHeader.Entry.Address()
		if err != nil {
			return ValidationOutcome{Kind: OutcomeInvalid, Reason: err.Error()}
		}
		fetched, err := v.Packages.FetchValidationPackage(ctx, provenance, entryAddr, level, v.PackageTimeout)
		if err != nil {
			return ValidationOutcome{Kind: OutcomeTimeout, Dependencies: p.Dependencies}
		}
		pkg = *fetched
	}

	if err := structuralCheck(p, provenancePubKeys); err != nil {
		return ValidationOutcome{Kind: OutcomeInvalid, Reason: err.Error()}
	}

	outcome, err := v.callbackDispatch(ctx, p, pkg)
	if err != nil {
		return ValidationOutcome{Kind: OutcomeInvalid, Reason: err.Error()}
	}

	if outcome.Kind == OutcomeValid {
		baseAddr := p.EntryWithHeader.Header.EntryAddress
		if p.WorkflowKind == WorkflowHoldLink && p.EntryWithHeader.Entry.Link != nil {
			baseAddr = p.EntryWithHeader.Entry.Link.Base
		}
		if err := v.applyValid(p, baseAddr); err != nil {
			return ValidationOutcome{Kind: OutcomeInvalid, Reason: err.Error()}
		}
	}
	return outcome
}
