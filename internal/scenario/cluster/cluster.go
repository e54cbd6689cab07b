// Package cluster is the ephemeral one-validator test network a scenario
// drives. It keeps the live object set in process: transactions execute
// against an object store with coin accounting, package publication, and
// ownership transfer, with move calls routed through pluggable appliers.
package cluster

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/suitypes"
)

// Well-known framework addresses.
var (
	SuiFrameworkID = chain.MustObjectID("0x2")
	// SuiCoinType is the gas coin's type tag.
	SuiCoinType = chain.StructTag{
		Address: SuiFrameworkID,
		Module:  "coin",
		Name:    "Coin",
		TypeParams: []chain.TypeTag{{
			Kind: chain.TypeTagStruct,
			Struct: &chain.StructTag{
				Address: SuiFrameworkID,
				Module:  "sui",
				Name:    "SUI",
			},
		}},
	}
)

// Genesis balance of the validator's gas coin, in the smallest unit.
const genesisGasBalance = uint64(1) << 60

// Cluster is the running test network.
type Cluster struct {
	// mu permits concurrent reads from the script while serializing
	// mutating operations.
	mu      sync.RWMutex
	running bool

	objects   map[chain.ObjectID]*suitypes.Object
	txCounter uint64
	version   chain.SequenceNumber

	validatorAddr chain.Address
	validatorKey  ed25519.PrivateKey
	validatorGas  chain.ObjectID

	appliers map[string]CallApplier
}

// start seeds the genesis state: the validator account and its gas coin.
func (c *Cluster) start() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate validator key: %w", err)
	}
	c.validatorKey = priv
	c.validatorAddr = chain.AddressFromPublicKey(pub)

	gas := c.newCoin(c.validatorAddr, genesisGasBalance)
	c.validatorGas = gas.ID
	c.running = true
	return nil
}

// Stop halts the cluster; every subsequent operation fails.
func (c *Cluster) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return fmt.Errorf("cluster is not running")
	}
	c.running = false
	return nil
}

// IsRunning reports liveness.
func (c *Cluster) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// ValidatorAddress is the well-known funded account.
func (c *Cluster) ValidatorAddress() chain.Address {
	return c.validatorAddr
}

// freshID derives a deterministic object id from the transaction counter.
// Caller holds mu.
func (c *Cluster) freshID() chain.ObjectID {
	c.txCounter++
	sum := sha256.Sum256([]byte(fmt.Sprintf("lancer-object-%d", c.txCounter)))
	var id chain.ObjectID
	copy(id[:], sum[:])
	return id
}

// nextVersion advances the store's lamport version. Caller holds mu.
func (c *Cluster) nextVersion() chain.SequenceNumber {
	c.version++
	return c.version
}

// newCoin mints a coin object owned by addr. Caller holds mu during
// execution; genesis calls it before the cluster is visible.
func (c *Cluster) newCoin(addr chain.Address, balance uint64) *suitypes.Object {
	id := c.freshID()
	obj := &suitypes.Object{
		ID:      id,
		Version: c.nextVersion(),
		Owner:   suitypes.Owner{Kind: suitypes.OwnerAddress, Address: addr},
		Data: suitypes.ObjectData{
			Kind: suitypes.DataStruct,
			Tag:  SuiCoinType,
			Fields: suitypes.StructValue(
				[]string{"id", "balance"},
				map[string]suitypes.MoveValue{
					"id":      suitypes.UIDValue(id),
					"balance": {Kind: suitypes.ValueNumber, Number: suitypes.UIntFromUint64(balance)},
				},
			),
		},
	}
	if c.objects == nil {
		c.objects = make(map[chain.ObjectID]*suitypes.Object)
	}
	c.objects[id] = obj
	return obj
}

// coinBalance reads a coin object's balance field.
func coinBalance(obj *suitypes.Object) (uint64, error) {
	if obj.Data.Kind != suitypes.DataStruct || obj.Data.Tag.Module != "coin" {
		return 0, fmt.Errorf("object %s is not a coin", obj.ID)
	}
	balance, ok := obj.Data.Fields.Struct["balance"]
	if !ok || balance.Number == nil {
		return 0, fmt.Errorf("coin %s has no balance", obj.ID)
	}
	return balance.Number.TryIntoUint64()
}

// setCoinBalance rewrites a coin's balance and bumps its version. Caller
// holds mu.
func (c *Cluster) setCoinBalance(obj *suitypes.Object, balance uint64) {
	obj.Data.Fields.Struct["balance"] = suitypes.MoveValue{
		Kind:   suitypes.ValueNumber,
		Number: suitypes.UIntFromUint64(balance),
	}
	obj.Version = c.nextVersion()
}

// GetObject returns a copy of one live object.
func (c *Cluster) GetObject(id chain.ObjectID) (*suitypes.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running {
		return nil, fmt.Errorf("cluster is not running")
	}
	obj, ok := c.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s not found", id)
	}
	return obj.Clone(), nil
}

// GetOwnedObjects lists copies of the objects address-owned by addr.
func (c *Cluster) GetOwnedObjects(addr chain.Address) ([]*suitypes.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running {
		return nil, fmt.Errorf("cluster is not running")
	}
	var out []*suitypes.Object
	for _, obj := range c.objects {
		if obj.Owner.Kind == suitypes.OwnerAddress && obj.Owner.Address == addr {
			out = append(out, obj.Clone())
		}
	}
	return out, nil
}

// GetAllLiveObjects lists copies of every live object.
func (c *Cluster) GetAllLiveObjects() ([]*suitypes.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running {
		return nil, fmt.Errorf("cluster is not running")
	}
	out := make([]*suitypes.Object, 0, len(c.objects))
	for _, obj := range c.objects {
		out = append(out, obj.Clone())
	}
	return out, nil
}

// GetCoins lists addr's coins of the given type; an empty tag means the gas
// coin type.
func (c *Cluster) GetCoins(coinType string, addr chain.Address) ([]*suitypes.Object, error) {
	want := SuiCoinType.String()
	if coinType != "" {
		tag, err := chain.ParseStructTag(coinType)
		if err != nil {
			return nil, err
		}
		want = tag.String()
	}
	owned, err := c.GetOwnedObjects(addr)
	if err != nil {
		return nil, err
	}
	var out []*suitypes.Object
	for _, obj := range owned {
		if tag, ok := obj.StructTag(); ok && tag.String() == want {
			out = append(out, obj)
		}
	}
	return out, nil
}

// GetBalance sums addr's coins of the given type.
func (c *Cluster) GetBalance(coinType string, addr chain.Address) (uint64, error) {
	coins, err := c.GetCoins(coinType, addr)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, coin := range coins {
		balance, err := coinBalance(coin)
		if err != nil {
			return 0, err
		}
		total += balance
	}
	return total, nil
}

// digestOf renders a synthetic transaction digest.
func digestOf(counter uint64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("lancer-tx-%d", counter)))
	return hex.EncodeToString(sum[:])
}
