package chain

import (
	"strings"
	"testing"
)

func TestObjectIDFromHex_Short(t *testing.T) {
	id, err := ObjectIDFromHex("0x2")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if id[31] != 2 {
		t.Errorf("expected left-padded value, got %v", id)
	}
	if id.String() != "0x"+strings.Repeat("0", 63)+"2" {
		t.Errorf("unexpected rendering %s", id)
	}
}

func TestObjectIDFromHex_RoundTrip(t *testing.T) {
	in := "0xaf3dd531a92b3ff2b78ce6eed4e92405c808fe38cb3a7aba7d9451eb6265962a"
	id, err := ObjectIDFromHex(in)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if id.String() != in {
		t.Errorf("expected %s, got %s", in, id)
	}
}

func TestObjectIDFromHex_Invalid(t *testing.T) {
	if _, err := ObjectIDFromHex(""); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := ObjectIDFromHex("0x" + strings.Repeat("ff", 33)); err == nil {
		t.Error("expected error for oversized id")
	}
	if _, err := ObjectIDFromHex("0xzz"); err == nil {
		t.Error("expected error for non-hex id")
	}
}

func TestParseStructTag(t *testing.T) {
	tag, err := ParseStructTag("0x2::coin::Coin<0x2::sui::SUI>")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tag.Module != "coin" || tag.Name != "Coin" {
		t.Errorf("unexpected tag %+v", tag)
	}
	if len(tag.TypeParams) != 1 {
		t.Fatalf("expected one type param, got %d", len(tag.TypeParams))
	}
	if tag.TypeParams[0].Struct.Name != "SUI" {
		t.Errorf("unexpected type param %+v", tag.TypeParams[0])
	}
}

func TestStructTagEqual(t *testing.T) {
	a, _ := ParseStructTag("0x1::finding::Finding")
	b, _ := ParseStructTag("0x01::finding::Finding")
	if !a.Equal(b) {
		t.Error("expected padded and unpadded addresses to compare equal")
	}
	c, _ := ParseStructTag("0x1::finding::Other")
	if a.Equal(c) {
		t.Error("expected different names to compare unequal")
	}
}

func TestParseTypeTag_Vector(t *testing.T) {
	tag, err := ParseTypeTag("vector<u8>")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tag.Kind != TypeTagVector || tag.Elem.Kind != TypeTagU8 {
		t.Errorf("unexpected tag %+v", tag)
	}
	if tag.String() != "vector<u8>" {
		t.Errorf("unexpected rendering %s", tag)
	}
}

func TestBuilderIndices(t *testing.T) {
	b := NewBuilder()
	a1, err := b.Pure(uint64(7))
	if err != nil {
		t.Fatalf("pure failed: %v", err)
	}
	if a1.Input == nil || *a1.Input != 0 {
		t.Errorf("expected input 0, got %+v", a1)
	}
	a2 := b.Obj(ObjectArg{SharedObject: &SharedObjectArg{ID: MustObjectID("0x6")}})
	if a2.Input == nil || *a2.Input != 1 {
		t.Errorf("expected input 1, got %+v", a2)
	}
	r := b.MoveCall(MustObjectID("0x2"), "coin", "value", nil, []Argument{a2})
	if r.Result == nil || *r.Result != 0 {
		t.Errorf("expected result 0, got %+v", r)
	}
	pt := b.Finish()
	if len(pt.Inputs) != 2 || len(pt.Commands) != 1 {
		t.Errorf("unexpected transaction shape: %d inputs, %d commands", len(pt.Inputs), len(pt.Commands))
	}
}

func TestAddressFromPublicKey_Deterministic(t *testing.T) {
	pub := make([]byte, 32)
	for i := range pub {
		pub[i] = byte(i)
	}
	a := AddressFromPublicKey(pub)
	b := AddressFromPublicKey(pub)
	if a != b {
		t.Error("address derivation must be deterministic")
	}
	if a.IsZero() {
		t.Error("derived address must not be zero")
	}
}

func TestBase58Decode(t *testing.T) {
	// "StV1DL6CwTryKyV" is base58 of "hello world".
	got := base58Decode("StV1DL6CwTryKyV")
	if string(got) != "hello world" {
		t.Errorf("unexpected decoding %q", got)
	}
}
