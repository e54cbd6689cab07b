package chain

import (
	"fmt"

	"github.com/fardream/go-bcs/bcs"
)

// The types below mirror the chain's transaction wire format. They are BCS
// enums and structs; ordering and widths must not change.

// GasCoinArg marks the gas coin argument variant.
type GasCoinArg struct{}

// NestedResultArg addresses one result of a multi-result command.
type NestedResultArg struct {
	Command uint16
	Result  uint16
}

// Argument addresses a value inside a programmable transaction.
type Argument struct {
	GasCoin      *GasCoinArg
	Input        *uint16
	Result       *uint16
	NestedResult *NestedResultArg
}

// IsBcsEnum marks Argument as a BCS enum.
func (Argument) IsBcsEnum() {}

// InputArg builds an input argument.
func InputArg(i uint16) Argument { return Argument{Input: &i} }

// ResultArg builds a command-result argument.
func ResultArg(i uint16) Argument { return Argument{Result: &i} }

// SharedObjectArg references a consensus-owned object.
type SharedObjectArg struct {
	ID                   ObjectID
	InitialSharedVersion uint64
	Mutable              bool
}

// ObjectArg is the discriminated union of object argument kinds.
type ObjectArg struct {
	ImmOrOwnedObject *ObjectRef
	SharedObject     *SharedObjectArg
	Receiving        *ObjectRef
}

// IsBcsEnum marks ObjectArg as a BCS enum.
func (ObjectArg) IsBcsEnum() {}

// CallArg is a transaction input: a pure BCS value or an object.
type CallArg struct {
	Pure   *[]byte
	Object *ObjectArg
}

// IsBcsEnum marks CallArg as a BCS enum.
func (CallArg) IsBcsEnum() {}

// StructTagValue is the wire form of a struct tag.
type StructTagValue struct {
	Address    ObjectID
	Module     string
	Name       string
	TypeParams []TypeTagValue
}

// TypeTagValue is the wire form of a type tag. Variant order matches the
// chain's serialization: the wider integer widths were appended later.
type TypeTagValue struct {
	Bool    *struct{}
	U8      *struct{}
	U64     *struct{}
	U128    *struct{}
	Address *struct{}
	Signer  *struct{}
	Vector  *TypeTagValue
	Struct  *StructTagValue
	U16     *struct{}
	U32     *struct{}
	U256    *struct{}
}

// IsBcsEnum marks TypeTagValue as a BCS enum.
func (TypeTagValue) IsBcsEnum() {}

var unit = struct{}{}

// TypeTagValueOf converts a parsed tag to its wire form.
func TypeTagValueOf(t TypeTag) TypeTagValue {
	switch t.Kind {
	case TypeTagBool:
		return TypeTagValue{Bool: &unit}
	case TypeTagU8:
		return TypeTagValue{U8: &unit}
	case TypeTagU16:
		return TypeTagValue{U16: &unit}
	case TypeTagU32:
		return TypeTagValue{U32: &unit}
	case TypeTagU64:
		return TypeTagValue{U64: &unit}
	case TypeTagU128:
		return TypeTagValue{U128: &unit}
	case TypeTagU256:
		return TypeTagValue{U256: &unit}
	case TypeTagAddress:
		return TypeTagValue{Address: &unit}
	case TypeTagSigner:
		return TypeTagValue{Signer: &unit}
	case TypeTagVector:
		elem := TypeTagValueOf(*t.Elem)
		return TypeTagValue{Vector: &elem}
	default:
		st := StructTagValue{
			Address: t.Struct.Address,
			Module:  t.Struct.Module,
			Name:    t.Struct.Name,
		}
		for _, p := range t.Struct.TypeParams {
			st.TypeParams = append(st.TypeParams, TypeTagValueOf(p))
		}
		return TypeTagValue{Struct: &st}
	}
}

// ParseTypeTagValue parses the canonical text form into the wire form.
func ParseTypeTagValue(s string) (TypeTagValue, error) {
	tag, err := ParseTypeTag(s)
	if err != nil {
		return TypeTagValue{}, err
	}
	return TypeTagValueOf(tag), nil
}

// ProgrammableMoveCall names a Move entry function invocation.
type ProgrammableMoveCall struct {
	Package   ObjectID
	Module    string
	Function  string
	TypeArgs  []TypeTagValue
	Arguments []Argument
}

// TransferObjectsCommand sends objects to an address argument.
type TransferObjectsCommand struct {
	Objects []Argument
	Address Argument
}

// SplitCoinsCommand splits amounts off a coin.
type SplitCoinsCommand struct {
	Coin    Argument
	Amounts []Argument
}

// MergeCoinsCommand merges sources into a destination coin.
type MergeCoinsCommand struct {
	Destination Argument
	Sources     []Argument
}

// PublishCommand publishes package modules with dependencies.
type PublishCommand struct {
	Modules      [][]byte
	Dependencies []ObjectID
}

// Command is one step of a programmable transaction.
type Command struct {
	MoveCall        *ProgrammableMoveCall
	TransferObjects *TransferObjectsCommand
	SplitCoins      *SplitCoinsCommand
	MergeCoins      *MergeCoinsCommand
	Publish         *PublishCommand
}

// IsBcsEnum marks Command as a BCS enum.
func (Command) IsBcsEnum() {}

// ProgrammableTransaction is the input/command list of one atomic unit.
type ProgrammableTransaction struct {
	Inputs   []CallArg
	Commands []Command
}

// GasData funds a transaction.
type GasData struct {
	Payment []ObjectRef
	Owner   Address
	Price   uint64
	Budget  uint64
}

// TransactionExpiration bounds a transaction's validity.
type TransactionExpiration struct {
	None  *struct{}
	Epoch *uint64
}

// IsBcsEnum marks TransactionExpiration as a BCS enum.
func (TransactionExpiration) IsBcsEnum() {}

// TransactionKind wraps the supported transaction kinds.
type TransactionKind struct {
	Programmable *ProgrammableTransaction
}

// IsBcsEnum marks TransactionKind as a BCS enum.
func (TransactionKind) IsBcsEnum() {}

// TransactionDataV1 is the current transaction envelope version.
type TransactionDataV1 struct {
	Kind       TransactionKind
	Sender     Address
	GasData    GasData
	Expiration TransactionExpiration
}

// TransactionData is the versioned transaction envelope.
type TransactionData struct {
	V1 *TransactionDataV1
}

// IsBcsEnum marks TransactionData as a BCS enum.
func (TransactionData) IsBcsEnum() {}

// NewProgrammable assembles a v1 transaction envelope.
func NewProgrammable(sender Address, gasPayment []ObjectRef, pt ProgrammableTransaction, gasBudget, gasPrice uint64) TransactionData {
	return TransactionData{
		V1: &TransactionDataV1{
			Kind:   TransactionKind{Programmable: &pt},
			Sender: sender,
			GasData: GasData{
				Payment: gasPayment,
				Owner:   sender,
				Price:   gasPrice,
				Budget:  gasBudget,
			},
			Expiration: TransactionExpiration{None: &struct{}{}},
		},
	}
}

// Marshal serializes the envelope to its canonical bytes.
func (t TransactionData) Marshal() ([]byte, error) {
	return bcs.Marshal(t)
}

// Builder accumulates inputs and commands of a programmable transaction.
// Every Pure, PureBytes or Obj call appends a new input, so equal values are
// not deduplicated; commands execute in insertion order.
type Builder struct {
	inputs   []CallArg
	commands []Command
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Pure appends a pure input holding the BCS serialization of v.
func (b *Builder) Pure(v interface{}) (Argument, error) {
	data, err := bcs.Marshal(v)
	if err != nil {
		return Argument{}, fmt.Errorf("serialize pure input: %w", err)
	}
	return b.PureBytes(data), nil
}

// PureBytes appends a pure input with pre-serialized bytes.
func (b *Builder) PureBytes(data []byte) Argument {
	b.inputs = append(b.inputs, CallArg{Pure: &data})
	return InputArg(uint16(len(b.inputs) - 1))
}

// Obj appends an object input.
func (b *Builder) Obj(arg ObjectArg) Argument {
	b.inputs = append(b.inputs, CallArg{Object: &arg})
	return InputArg(uint16(len(b.inputs) - 1))
}

// MoveCall appends a move call command and returns its result argument.
func (b *Builder) MoveCall(pkg ObjectID, module, function string, typeArgs []TypeTagValue, args []Argument) Argument {
	b.commands = append(b.commands, Command{MoveCall: &ProgrammableMoveCall{
		Package:   pkg,
		Module:    module,
		Function:  function,
		TypeArgs:  typeArgs,
		Arguments: args,
	}})
	return ResultArg(uint16(len(b.commands) - 1))
}

// Publish appends a publish command and returns the upgrade-cap result.
func (b *Builder) Publish(modules [][]byte, deps []ObjectID) Argument {
	b.commands = append(b.commands, Command{Publish: &PublishCommand{
		Modules:      modules,
		Dependencies: deps,
	}})
	return ResultArg(uint16(len(b.commands) - 1))
}

// SplitCoins appends a split command and returns its result argument.
func (b *Builder) SplitCoins(coin Argument, amounts []Argument) Argument {
	b.commands = append(b.commands, Command{SplitCoins: &SplitCoinsCommand{
		Coin:    coin,
		Amounts: amounts,
	}})
	return ResultArg(uint16(len(b.commands) - 1))
}

// TransferObjects appends a transfer command.
func (b *Builder) TransferObjects(objects []Argument, addr Argument) {
	b.commands = append(b.commands, Command{TransferObjects: &TransferObjectsCommand{
		Objects: objects,
		Address: addr,
	}})
}

// Finish returns the accumulated programmable transaction.
func (b *Builder) Finish() ProgrammableTransaction {
	return ProgrammableTransaction{Inputs: b.inputs, Commands: b.commands}
}
