package core

import "testing"

func validDNA() *DNA {
	return &DNA{
		Name: "chat",
		Zomes: map[string]ZomeDef{
			"posts": {
				Code: ZomeCode{Code: []byte{0x00, 0x61, 0x73, 0x6d}},
				FnDeclarations: []FnDeclaration{
					{Name: "create_post"},
				},
				Traits: map[string]TraitDef{
					"writer": {Functions: []string{"create_post"}},
				},
				EntryTypes: map[string]EntryTypeDef{
					"post": {Sharing: SharingPublic},
				},
			},
		},
	}
}

func TestDNAValidateAccepts(t *testing.T) {
	if err := validDNA().Validate(); err != nil {
		t.Fatalf("expected valid DNA, got %v", err)
	}
}

func TestDNAValidateRejectsMissingName(t *testing.T) {
	d := validDNA()
	d.Name = ""
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestDNAValidateRejectsNoZomes(t *testing.T) {
	d := &DNA{Name: "empty"}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for no zomes")
	}
}

func TestDNAValidateRejectsMissingCode(t *testing.T) {
	d := validDNA()
	z := d.Zomes["posts"]
	z.Code = ZomeCode{}
	d.Zomes["posts"] = z
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for zome missing code")
	}
}

func TestDNAValidateRejectsUndeclaredTraitFunction(t *testing.T) {
	d := validDNA()
	z := d.Zomes["posts"]
	z.Traits["writer"] = TraitDef{Functions: []string{"delete_post"}}
	d.Zomes["posts"] = z
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for trait referencing undeclared function")
	}
}

func TestDNAAddressStable(t *testing.T) {
	d := validDNA()
	a1, err := d.Address()
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	a2, err := d.Address()
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("dna address not stable: %s != %s", a1, a2)
	}
}

func TestZomeNamedAndFnNamed(t *testing.T) {
	d := validDNA()
	z, ok := d.ZomeNamed("posts")
	if !ok {
		t.Fatal("expected zome 'posts' to resolve")
	}
	if _, ok := z.FnNamed("create_post"); !ok {
		t.Fatal("expected fn 'create_post' to resolve")
	}
	if _, ok := z.FnNamed("nonexistent"); ok {
		t.Fatal("expected unknown fn to not resolve")
	}
	if _, ok := d.ZomeNamed("nonexistent"); ok {
		t.Fatal("expected unknown zome to not resolve")
	}
}
