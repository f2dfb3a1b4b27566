package core

import "testing"

func TestHashContentDeterministic(t *testing.T) {
	a, err := HashContent(map[string]int{"x": 1})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := HashContent(map[string]int{"x": 1})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal addresses, got %s != %s", a, b)
	}
	if a.Empty() {
		t.Fatal("non-empty content hashed to an empty address")
	}
}

func TestHashContentDistinctForDistinctContent(t *testing.T) {
	a, _ := HashContent("foo")
	b, _ := HashContent("bar")
	if a == b {
		t.Fatal("distinct content hashed to the same address")
	}
}

func TestVerifyAddress(t *testing.T) {
	v := Entry{Kind: EntryApp, AppType: "post", AppPayload: []byte("hello")}
	addr, err := HashContent(v)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyAddress(v, addr) {
		t.Fatal("VerifyAddress rejected content matching its own hash")
	}
	if VerifyAddress(v, Address("not-the-right-address")) {
		t.Fatal("VerifyAddress accepted a mismatched address")
	}
}

func TestAddressEmpty(t *testing.T) {
	var a Address
	if !a.Empty() {
		t.Fatal("zero-value Address should report Empty")
	}
	if Address("x").Empty() {
		t.Fatal("non-empty Address reported Empty")
	}
}
