// Package txbuilder exposes the programmable transaction builder to the
// scripting layer: pure values per integer width, object references,
// package publication, move calls, and coin plumbing.
package txbuilder

import (
	"fmt"
	"sync"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/suitypes"
)

// Builder wraps the chain-level builder with width-checked value
// arguments. A builder produces at most one transaction.
type Builder struct {
	mu    sync.Mutex
	inner *chain.Builder
}

// New creates an empty builder.
func New() *Builder {
	return &Builder{inner: chain.NewBuilder()}
}

func (b *Builder) use() (*chain.Builder, error) {
	if b.inner == nil {
		return nil, fmt.Errorf("already built")
	}
	return b.inner, nil
}

// U8 through U256 append pure integer inputs of the named width. The value
// must fit; overflow is an explicit error, never a truncation.
func (b *Builder) U8(v *suitypes.UInt) (chain.Argument, error)   { return b.uint(v, 8) }
func (b *Builder) U16(v *suitypes.UInt) (chain.Argument, error)  { return b.uint(v, 16) }
func (b *Builder) U32(v *suitypes.UInt) (chain.Argument, error)  { return b.uint(v, 32) }
func (b *Builder) U64(v *suitypes.UInt) (chain.Argument, error)  { return b.uint(v, 64) }
func (b *Builder) U128(v *suitypes.UInt) (chain.Argument, error) { return b.uint(v, 128) }
func (b *Builder) U256(v *suitypes.UInt) (chain.Argument, error) { return b.uint(v, 256) }

func (b *Builder) uint(v *suitypes.UInt, bits int) (chain.Argument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return chain.Argument{}, err
	}
	encoded, err := v.TryIntoWidth(bits)
	if err != nil {
		return chain.Argument{}, err
	}
	// The little-endian fixed-width encoding is already the BCS form.
	return inner.PureBytes(encoded), nil
}

// Bool appends a pure bool input.
func (b *Builder) Bool(v bool) (chain.Argument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return chain.Argument{}, err
	}
	return inner.Pure(v)
}

// Address appends a pure address input.
func (b *Builder) Address(addr chain.Address) (chain.Argument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return chain.Argument{}, err
	}
	return inner.PureBytes(addr.Bytes()), nil
}

// ObjectRef appends an object input.
func (b *Builder) ObjectRef(arg chain.ObjectArg) (chain.Argument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return chain.Argument{}, err
	}
	return inner.Obj(arg), nil
}

// PublishUpgradeable publishes modules and returns the upgrade capability.
func (b *Builder) PublishUpgradeable(modules [][]byte, deps []chain.ObjectID) (chain.Argument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return chain.Argument{}, err
	}
	return inner.Publish(modules, deps), nil
}

// PublishImmutable publishes modules and discards the upgrade capability.
func (b *Builder) PublishImmutable(modules [][]byte, deps []chain.ObjectID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return err
	}
	inner.Publish(modules, deps)
	return nil
}

// MoveCall appends an entry-function invocation. Type arguments arrive in
// their canonical text form and are validated here.
func (b *Builder) MoveCall(pkg chain.ObjectID, module, function string, typeArgs []string, args []chain.Argument) (chain.Argument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return chain.Argument{}, err
	}
	tags := make([]chain.TypeTagValue, len(typeArgs))
	for i, tag := range typeArgs {
		parsed, err := chain.ParseTypeTagValue(tag)
		if err != nil {
			return chain.Argument{}, err
		}
		tags[i] = parsed
	}
	return inner.MoveCall(pkg, module, function, tags, args), nil
}

// SplitCoin appends a split command over the given coin argument.
func (b *Builder) SplitCoin(coin chain.Argument, amounts []chain.Argument) (chain.Argument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return chain.Argument{}, err
	}
	return inner.SplitCoins(coin, amounts), nil
}

// Pay splits amounts off the first given coin and sends one to each
// recipient. Coins beyond the first are neither merged nor referenced by the
// transaction.
func (b *Builder) Pay(coins []chain.ObjectRef, amounts []uint64, recipients []chain.Address) error {
	if len(amounts) != len(recipients) {
		return fmt.Errorf("amounts and recipients must align")
	}
	if len(coins) == 0 {
		return fmt.Errorf("pay requires at least one coin")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return err
	}

	first := inner.Obj(chain.ObjectArg{ImmOrOwnedObject: &coins[0]})
	var amountArgs []chain.Argument
	for _, amount := range amounts {
		arg, err := inner.Pure(amount)
		if err != nil {
			return err
		}
		amountArgs = append(amountArgs, arg)
	}
	split := inner.SplitCoins(first, amountArgs)
	for i, recipient := range recipients {
		addrArg := inner.PureBytes(recipient.Bytes())
		inner.TransferObjects([]chain.Argument{nestedResult(split, uint16(i))}, addrArg)
	}
	return nil
}

// nestedResult addresses the i-th result of a multi-result command.
func nestedResult(result chain.Argument, i uint16) chain.Argument {
	if result.Result == nil {
		return result
	}
	return chain.Argument{NestedResult: &chain.NestedResultArg{
		Command: *result.Result,
		Result:  i,
	}}
}

// Finish returns the accumulated transaction; the builder is spent.
func (b *Builder) Finish() (chain.ProgrammableTransaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inner, err := b.use()
	if err != nil {
		return chain.ProgrammableTransaction{}, err
	}
	b.inner = nil
	return inner.Finish(), nil
}
