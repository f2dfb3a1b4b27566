// DNA manifest — the application's zome/entry-type/bridge declaration,
// generalized from a contract bytecode registration (ContractRegistry)
// into a declarative JSON manifest.
package core

import "errors"

// Sharing controls whether an entry type's content is replicated to the
// DHT, held only by the author, or replicated encrypted.
type Sharing string

const (
	SharingPublic    Sharing = "Public"
	SharingPrivate   Sharing = "Private"
	SharingEncrypted Sharing = "Encrypted"
)

// EntryTypeDef describes one zome-declared entry type.
type EntryTypeDef struct {
	Description string   `json:"description"`
	Sharing     Sharing  `json:"sharing"`
	LinksTo     []string `json:"links_to,omitempty"`
	LinkedFrom  []string `json:"linked_from,omitempty"`
}

// TraitDef groups zome functions under a named trait (capability
// surface).
type TraitDef struct {
	Functions []string `json:"functions"`
}

// FnParam names one function input or output.
type FnParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FnDeclaration describes one zome-exported function's signature.
type FnDeclaration struct {
	Name    string    `json:"name"`
	Inputs  []FnParam `json:"inputs"`
	Outputs []FnParam `json:"outputs"`
}

// ZomeCode carries the zome's compiled WASM, base64-encoded on the wire
// and decoded here to raw bytes for the runtime.
type ZomeCode struct {
	Code []byte `json:"code"`
}

// BridgePresence marks whether a declared bridge must resolve at DNA
// load time.
type BridgePresence string

const (
	BridgeRequired BridgePresence = "Required"
	BridgeOptional BridgePresence = "Optional"
)

// BridgeReference names either a fixed DNA address to bridge to or a
// capabilities-based handle resolved at runtime.
type BridgeReference struct {
	DnaAddress   Address             `json:"dna_address,omitempty"`
	Capabilities map[string][]string `json:"capabilities,omitempty"`
}

// ZomeBridge declares one cross-DNA bridge a zome may call through.
type ZomeBridge struct {
	Presence  BridgePresence  `json:"presence"`
	Handle    string          `json:"handle"`
	Reference BridgeReference `json:"reference"`
}

// ZomeDef is one zome's full declaration: entry types, traits, function
// signatures, bridges, and code.
type ZomeDef struct {
	Description    string                  `json:"description"`
	Config         map[string]string       `json:"config,omitempty"`
	EntryTypes     map[string]EntryTypeDef `json:"entry_types"`
	Traits         map[string]TraitDef     `json:"traits"`
	FnDeclarations []FnDeclaration         `json:"fn_declarations"`
	Code           ZomeCode                `json:"code"`
	Bridges        []ZomeBridge            `json:"bridges,omitempty"`
}

// DNA is the top-level application manifest. Its Address is
// the hash of its own canonical JSON form — DNA identity is content
// identity.
type DNA struct {
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Version        string             `json:"version"`
	UUID           string             `json:"uuid"`
	DnaSpecVersion string             `json:"dna_spec_version"`
	Properties     map[string]any     `json:"properties,omitempty"`
	Zomes          map[string]ZomeDef `json:"zomes"`
}

// Address computes the DNA's content address: hash(canonical_json(dna)).
func (d *DNA) Address() (Address, error) {
	return HashContent(d)
}

// Validate checks the manifest's structural well-formedness: the DNA
// must have a name and at least one zome, every zome must declare its
// code, and every function a trait lists must appear in that zome's
// fn_declarations. Entry types' links_to/linked_from are not checked.
func (d *DNA) Validate() error {
	if d.Name == "" {
		return errors.New("dna missing name")
	}
	if len(d.Zomes) == 0 {
		return errors.New("dna declares no zomes")
	}
	for zomeName, z := range d.Zomes {
		if len(z.Code.Code) == 0 {
			return errors.New("zome " + zomeName + " missing code")
		}
		declared := make(map[string]bool, len(z.FnDeclarations))
		for _, fn := range z.FnDeclarations {
			declared[fn.Name] = true
		}
		for traitName, t := range z.Traits {
			for _, fn := range t.Functions {
				if !declared[fn] {
					return errors.New("zome " + zomeName + " trait " + traitName + " references undeclared function " + fn)
				}
			}
		}
	}
	return nil
}

// ZomeNamed returns the named zome's definition, or ok=false if the DNA
// declares no such zome.
func (d *DNA) ZomeNamed(name string) (ZomeDef, bool) {
	z, ok := d.Zomes[name]
	return z, ok
}

// FnNamed returns the named function's declaration within zome, or
// ok=false if undeclared.
func (z ZomeDef) FnNamed(name string) (FnDeclaration, bool) {
	for _, fn := range z.FnDeclarations {
		if fn.Name == name {
			return fn, true
		}
	}
	return FnDeclaration{}, false
}

// EntryTypeNamed returns the named entry type's declaration, or
// ok=false if undeclared.
func (z ZomeDef) EntryTypeNamed(name string) (EntryTypeDef, bool) {
	t, ok := z.EntryTypes[name]
	return t, ok
}
