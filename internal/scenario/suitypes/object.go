package suitypes

import (
	"encoding/json"
	"fmt"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
)

// OwnerKind discriminates Owner variants.
type OwnerKind int

const (
	OwnerAddress OwnerKind = iota
	OwnerObject
	OwnerShared
	OwnerImmutable
)

// Owner is the discriminated union of object ownership.
type Owner struct {
	Kind OwnerKind
	// Address is set for address- and object-owned objects.
	Address chain.Address
	// InitialSharedVersion is set for shared objects.
	InitialSharedVersion chain.SequenceNumber
}

func (o Owner) String() string {
	switch o.Kind {
	case OwnerAddress:
		return "AddressOwner(" + o.Address.String() + ")"
	case OwnerObject:
		return "ObjectOwner(" + o.Address.String() + ")"
	case OwnerShared:
		return fmt.Sprintf("Shared(%d)", o.InitialSharedVersion)
	default:
		return "Immutable"
	}
}

// ValueKind discriminates MoveValue variants.
type ValueKind int

const (
	ValueBool ValueKind = iota
	ValueNumber
	ValueAddress
	ValueUID
	ValueVector
	ValueStruct
	ValueBytes
)

// MoveValue is the annotated rendering of one Move value. The traversal in
// the cluster walks these for object::UID occurrences.
type MoveValue struct {
	Kind ValueKind
	// Bool, Number, Address, Bytes carry the scalar variants; UID reuses
	// Address for the inner id.
	Bool    bool
	Number  *UInt
	Address chain.Address
	Bytes   []byte
	// Vector holds element values in order.
	Vector []MoveValue
	// Struct holds named fields; FieldOrder preserves declaration order.
	Struct     map[string]MoveValue
	FieldOrder []string
}

// UIDValue builds an object::UID occurrence.
func UIDValue(id chain.ObjectID) MoveValue {
	return MoveValue{Kind: ValueUID, Address: id}
}

// StructValue builds a struct with the given ordered fields.
func StructValue(order []string, fields map[string]MoveValue) MoveValue {
	return MoveValue{Kind: ValueStruct, Struct: fields, FieldOrder: order}
}

// JSON renders the value for script consumption and logs.
func (v MoveValue) JSON() interface{} {
	switch v.Kind {
	case ValueBool:
		return v.Bool
	case ValueNumber:
		if v.Number == nil {
			return "0"
		}
		return v.Number.String()
	case ValueAddress, ValueUID:
		return v.Address.String()
	case ValueBytes:
		return v.Bytes
	case ValueVector:
		out := make([]interface{}, len(v.Vector))
		for i, e := range v.Vector {
			out[i] = e.JSON()
		}
		return out
	case ValueStruct:
		out := make(map[string]interface{}, len(v.Struct))
		for name, f := range v.Struct {
			out[name] = f.JSON()
		}
		return out
	default:
		return nil
	}
}

// ObjectDataKind discriminates the stored form of an object.
type ObjectDataKind int

const (
	DataPackage ObjectDataKind = iota
	DataStruct
)

// ObjectData is the discriminated union of an object's contents.
type ObjectData struct {
	Kind ObjectDataKind
	// Modules holds the package byte modules for DataPackage.
	Modules [][]byte
	// Tag and Fields describe a Move struct for DataStruct.
	Tag    chain.StructTag
	Fields MoveValue
}

// Object is one live object of the ephemeral cluster.
type Object struct {
	ID      chain.ObjectID
	Version chain.SequenceNumber
	Owner   Owner
	Data    ObjectData
}

// IsPackage reports whether the object is a published package.
func (o *Object) IsPackage() bool {
	return o.Data.Kind == DataPackage
}

// StructTag returns the type of a struct object, or false for packages.
func (o *Object) StructTag() (chain.StructTag, bool) {
	if o.Data.Kind != DataStruct {
		return chain.StructTag{}, false
	}
	return o.Data.Tag, true
}

// Serialize renders the object as JSON for the scripting layer.
func (o *Object) Serialize() (json.RawMessage, error) {
	doc := map[string]interface{}{
		"id":      o.ID.String(),
		"version": uint64(o.Version),
		"owner":   o.Owner.String(),
	}
	if o.IsPackage() {
		doc["package"] = true
		doc["modules"] = len(o.Data.Modules)
	} else {
		doc["type"] = o.Data.Tag.String()
		doc["fields"] = o.Data.Fields.JSON()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serialize object %s: %w", o.ID, err)
	}
	return data, nil
}

// Clone deep-copies the object so script-held references cannot mutate the
// store.
func (o *Object) Clone() *Object {
	copied := *o
	copied.Data = cloneData(o.Data)
	return &copied
}

func cloneData(d ObjectData) ObjectData {
	out := d
	if d.Modules != nil {
		out.Modules = make([][]byte, len(d.Modules))
		for i, m := range d.Modules {
			out.Modules[i] = append([]byte(nil), m...)
		}
	}
	out.Fields = cloneValue(d.Fields)
	return out
}

func cloneValue(v MoveValue) MoveValue {
	out := v
	if v.Vector != nil {
		out.Vector = make([]MoveValue, len(v.Vector))
		for i, e := range v.Vector {
			out.Vector[i] = cloneValue(e)
		}
	}
	if v.Struct != nil {
		out.Struct = make(map[string]MoveValue, len(v.Struct))
		for name, f := range v.Struct {
			out.Struct[name] = cloneValue(f)
		}
		out.FieldOrder = append([]string(nil), v.FieldOrder...)
	}
	if v.Bytes != nil {
		out.Bytes = append([]byte(nil), v.Bytes...)
	}
	return out
}
