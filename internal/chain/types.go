// Package chain provides the Sui JSON-RPC client and programmable
// transaction machinery the lancer host consumes.
package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ObjectID identifies an on-chain object. 32 bytes, hex-encoded with a 0x
// prefix in JSON and display form.
type ObjectID [32]byte

// AddressLength is the byte length of object ids and addresses.
const AddressLength = 32

// ObjectIDFromHex parses an object id from its 0x-prefixed hex form.
// Short forms are left-padded, matching the chain's canonical parsing.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 0 || len(s) > 2*AddressLength {
		return id, fmt.Errorf("object id %q: invalid length", s)
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("object id %q: %w", s, err)
	}
	copy(id[AddressLength-len(raw):], raw)
	return id, nil
}

// MustObjectID parses an object id or panics. For tests and constants.
func MustObjectID(s string) ObjectID {
	id, err := ObjectIDFromHex(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ObjectID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte form.
func (id ObjectID) Bytes() []byte {
	b := make([]byte, AddressLength)
	copy(b, id[:])
	return b
}

// IsZero reports whether the id is the all-zero address.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

func (id ObjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ObjectID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ObjectIDFromHex(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Address is an account address. Same representation as ObjectID.
type Address = ObjectID

// ZeroAddress is the all-zero account address.
var ZeroAddress = Address{}

// Digest is a transaction or object digest (32 bytes).
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalBCS serializes the digest in its canonical wire form: unlike
// addresses, digests carry a length prefix.
func (d Digest) MarshalBCS() ([]byte, error) {
	out := make([]byte, 0, 33)
	out = append(out, 32)
	return append(out, d[:]...), nil
}

// UnmarshalBCS reads the length-prefixed digest back.
func (d *Digest) UnmarshalBCS(r io.Reader) (int, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	if prefix[0] != 32 {
		return 1, fmt.Errorf("digest length %d", prefix[0])
	}
	n, err := io.ReadFull(r, d[:])
	return n + 1, err
}

// SequenceNumber is an object version.
type SequenceNumber uint64

// ObjectRef pins an object to a version and digest.
type ObjectRef struct {
	ID      ObjectID
	Version SequenceNumber
	Digest  Digest
}

// StructTag names a Move struct type.
type StructTag struct {
	Address ObjectID
	Module  string
	Name    string
	// TypeParams holds instantiated type arguments, canonical form.
	TypeParams []TypeTag
}

// String renders the canonical form: 0x..::module::Name<...>.
func (t StructTag) String() string {
	s := fmt.Sprintf("%s::%s::%s", t.Address, t.Module, t.Name)
	if len(t.TypeParams) > 0 {
		params := make([]string, len(t.TypeParams))
		for i, p := range t.TypeParams {
			params[i] = p.String()
		}
		s += "<" + strings.Join(params, ",") + ">"
	}
	return s
}

// Equal compares two struct tags field by field.
func (t StructTag) Equal(o StructTag) bool {
	return t.String() == o.String()
}

// TypeTagKind discriminates TypeTag variants.
type TypeTagKind int

const (
	TypeTagBool TypeTagKind = iota
	TypeTagU8
	TypeTagU16
	TypeTagU32
	TypeTagU64
	TypeTagU128
	TypeTagU256
	TypeTagAddress
	TypeTagSigner
	TypeTagVector
	TypeTagStruct
)

// TypeTag is the discriminated union of Move type tags.
type TypeTag struct {
	Kind TypeTagKind
	// Elem is set for vector tags.
	Elem *TypeTag
	// Struct is set for struct tags.
	Struct *StructTag
}

var simpleTagNames = map[TypeTagKind]string{
	TypeTagBool:    "bool",
	TypeTagU8:      "u8",
	TypeTagU16:     "u16",
	TypeTagU32:     "u32",
	TypeTagU64:     "u64",
	TypeTagU128:    "u128",
	TypeTagU256:    "u256",
	TypeTagAddress: "address",
	TypeTagSigner:  "signer",
}

func (t TypeTag) String() string {
	switch t.Kind {
	case TypeTagVector:
		return "vector<" + t.Elem.String() + ">"
	case TypeTagStruct:
		return t.Struct.String()
	default:
		return simpleTagNames[t.Kind]
	}
}

// ParseTypeTag parses the canonical text form of a type tag.
func ParseTypeTag(s string) (TypeTag, error) {
	s = strings.TrimSpace(s)
	for kind, name := range simpleTagNames {
		if s == name {
			return TypeTag{Kind: kind}, nil
		}
	}
	if strings.HasPrefix(s, "vector<") && strings.HasSuffix(s, ">") {
		inner, err := ParseTypeTag(s[len("vector<") : len(s)-1])
		if err != nil {
			return TypeTag{}, err
		}
		return TypeTag{Kind: TypeTagVector, Elem: &inner}, nil
	}
	st, err := ParseStructTag(s)
	if err != nil {
		return TypeTag{}, err
	}
	return TypeTag{Kind: TypeTagStruct, Struct: &st}, nil
}

// ParseStructTag parses "0xaddr::module::Name<type,...>".
func ParseStructTag(s string) (StructTag, error) {
	var params []TypeTag
	if open := strings.Index(s, "<"); open >= 0 {
		if !strings.HasSuffix(s, ">") {
			return StructTag{}, fmt.Errorf("struct tag %q: unbalanced type params", s)
		}
		for _, p := range splitTypeParams(s[open+1 : len(s)-1]) {
			tag, err := ParseTypeTag(p)
			if err != nil {
				return StructTag{}, err
			}
			params = append(params, tag)
		}
		s = s[:open]
	}
	parts := strings.Split(s, "::")
	if len(parts) != 3 {
		return StructTag{}, fmt.Errorf("struct tag %q: want addr::module::name", s)
	}
	addr, err := ObjectIDFromHex(parts[0])
	if err != nil {
		return StructTag{}, err
	}
	return StructTag{Address: addr, Module: parts[1], Name: parts[2], TypeParams: params}, nil
}

func splitTypeParams(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
