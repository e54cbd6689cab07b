package cluster

import (
	"fmt"
	"time"

	"github.com/fardream/go-bcs/bcs"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/suitypes"
)

// CallApplier interprets one move call against the object store. The
// framework registers appliers for the entry points it models; calls with
// no applier surface a script-visible error result.
type CallApplier func(e *execEnv, call *chain.ProgrammableMoveCall, args []Value) ([]Value, error)

// RegisterApplier installs an applier under "module::function" within the
// given package, or for any package when pkg is the zero id.
func (c *Cluster) RegisterApplier(pkg chain.ObjectID, module, function string, applier CallApplier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appliers[applierKey(pkg, module, function)] = applier
}

func applierKey(pkg chain.ObjectID, module, function string) string {
	return fmt.Sprintf("%s::%s::%s", pkg, module, function)
}

// lookupApplier resolves package-specific appliers first, then wildcard
// ones. Caller holds mu.
func (c *Cluster) lookupApplier(call *chain.ProgrammableMoveCall) (CallApplier, bool) {
	if applier, ok := c.appliers[applierKey(call.Package, call.Module, call.Function)]; ok {
		return applier, true
	}
	applier, ok := c.appliers[applierKey(chain.ObjectID{}, call.Module, call.Function)]
	return applier, ok
}

// builtinAppliers models the framework entry points every scenario needs.
func builtinAppliers() map[string]CallApplier {
	wildcard := chain.ObjectID{}
	return map[string]CallApplier{
		// Option wrapping passes the value through; the distinction only
		// matters to real Move code.
		applierKey(chain.MoveStdlibPackageID, "option", "some"): func(e *execEnv, call *chain.ProgrammableMoveCall, args []Value) ([]Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("option::some takes one argument")
			}
			return []Value{args[0]}, nil
		},
		applierKey(chain.MoveStdlibPackageID, "option", "none"): func(e *execEnv, call *chain.ProgrammableMoveCall, args []Value) ([]Value, error) {
			return []Value{{}}, nil
		},

		applierKey(SuiFrameworkID, "coin", "value"): func(e *execEnv, call *chain.ProgrammableMoveCall, args []Value) ([]Value, error) {
			if len(args) != 1 || args[0].Object == nil {
				return nil, fmt.Errorf("coin::value takes one coin")
			}
			balance, err := coinBalance(args[0].Object)
			if err != nil {
				return nil, err
			}
			encoded, err := bcs.Marshal(balance)
			if err != nil {
				return nil, err
			}
			return []Value{{Pure: encoded}}, nil
		},

		applierKey(SuiFrameworkID, "transfer", "public_transfer"): func(e *execEnv, call *chain.ProgrammableMoveCall, args []Value) ([]Value, error) {
			if len(args) != 2 || args[0].Object == nil {
				return nil, fmt.Errorf("transfer::public_transfer takes an object and an address")
			}
			addr, err := decodeAddress(args[1])
			if err != nil {
				return nil, err
			}
			args[0].Object.Owner = suitypes.Owner{Kind: suitypes.OwnerAddress, Address: addr}
			args[0].Object.Version = e.cluster.nextVersion()
			e.mutated = append(e.mutated, args[0].Object.ID)
			return nil, nil
		},

		applierKey(SuiFrameworkID, "transfer", "public_share_object"): func(e *execEnv, call *chain.ProgrammableMoveCall, args []Value) ([]Value, error) {
			if len(args) != 1 || args[0].Object == nil {
				return nil, fmt.Errorf("transfer::public_share_object takes an object")
			}
			obj := args[0].Object
			obj.Owner = suitypes.Owner{Kind: suitypes.OwnerShared, InitialSharedVersion: obj.Version}
			obj.Version = e.cluster.nextVersion()
			e.mutated = append(e.mutated, obj.ID)
			return nil, nil
		},

		applierKey(wildcard, "clock", "timestamp_ms"): func(e *execEnv, call *chain.ProgrammableMoveCall, args []Value) ([]Value, error) {
			encoded, err := bcs.Marshal(uint64(time.Now().UnixMilli()))
			if err != nil {
				return nil, err
			}
			return []Value{{Pure: encoded}}, nil
		},
	}
}
