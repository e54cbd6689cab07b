package scenario

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/cluster"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/suitypes"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/txbuilder"
)

// clusterObject exposes a running TestCluster to the script.
func (h *Host) clusterObject(hs *handles, cl *cluster.Cluster) map[string]interface{} {
	objectList := func(objs []*suitypes.Object, err error) map[string]interface{} {
		if err != nil {
			return errResult(err)
		}
		out := make([]interface{}, len(objs))
		for i, obj := range objs {
			out[i] = h.objectValue(hs, obj)
		}
		return ok(out)
	}

	return map[string]interface{}{
		"isRunning":        func() bool { return cl.IsRunning() },
		"validatorAddress": func() string { return cl.ValidatorAddress().String() },

		"executeTx": func(call goja.FunctionCall) goja.Value {
			resp, err := h.executeTx(hs, cl, call)
			if err != nil {
				h.appendLog("tx_error", err.Error())
				return h.vm.ToValue(errResult(err))
			}
			rendered := map[string]interface{}{
				"digest":  resp.Digest,
				"status":  resp.Status,
				"gasUsed": resp.GasUsed,
				"created": idStrings(resp.Created),
				"mutated": idStrings(resp.Mutated),
				"deleted": idStrings(resp.Deleted),
			}
			h.appendLog("tx", rendered)
			return h.vm.ToValue(ok(rendered))
		},

		"getCoins": func(coinType, owner string) map[string]interface{} {
			addr, err := chain.ObjectIDFromHex(owner)
			if err != nil {
				return errResult(err)
			}
			return objectList(cl.GetCoins(coinType, addr))
		},
		"getBalance": func(coinType, owner string) map[string]interface{} {
			addr, err := chain.ObjectIDFromHex(owner)
			if err != nil {
				return errResult(err)
			}
			balance, err := cl.GetBalance(coinType, addr)
			if err != nil {
				return errResult(err)
			}
			return ok(balance)
		},
		"getObject": func(id string) map[string]interface{} {
			oid, err := chain.ObjectIDFromHex(id)
			if err != nil {
				return errResult(err)
			}
			obj, err := cl.GetObject(oid)
			if err != nil {
				return errResult(err)
			}
			return ok(h.objectValue(hs, obj))
		},
		"getObjectRecursive": func(id string) map[string]interface{} {
			oid, err := chain.ObjectIDFromHex(id)
			if err != nil {
				return errResult(err)
			}
			return objectList(cl.GetObjectRecursive(oid))
		},
		"getOwnedObjects": func(owner string) map[string]interface{} {
			addr, err := chain.ObjectIDFromHex(owner)
			if err != nil {
				return errResult(err)
			}
			return objectList(cl.GetOwnedObjects(addr))
		},
		"getOwnedObjectsRecursive": func(owner string) map[string]interface{} {
			addr, err := chain.ObjectIDFromHex(owner)
			if err != nil {
				return errResult(err)
			}
			return objectList(cl.GetOwnedObjectsRecursive(addr))
		},
		"getAllLiveObjects": func() map[string]interface{} {
			return objectList(cl.GetAllLiveObjects())
		},
		"stop": func() map[string]interface{} {
			if err := cl.Stop(); err != nil {
				return errResult(err)
			}
			return ok(nil)
		},
	}
}

// executeTx unpacks the script's call: (tx, options?) where options may
// carry gasBudget, sender, and extraSigners.
func (h *Host) executeTx(hs *handles, cl *cluster.Cluster, call goja.FunctionCall) (*cluster.TxResponse, error) {
	if len(call.Arguments) < 1 {
		return nil, fmt.Errorf("executeTx takes a transaction")
	}
	txMap, okCast := call.Arguments[0].Export().(map[string]interface{})
	if !okCast {
		return nil, fmt.Errorf("expected a transaction handle")
	}
	rawIdx, okField := txMap["__tx"]
	if !okField {
		return nil, fmt.Errorf("expected a transaction handle")
	}
	idx, okIdx := toInt(rawIdx)
	if !okIdx || idx < 0 || idx >= len(hs.txs) {
		return nil, fmt.Errorf("stale transaction handle")
	}
	pt := hs.txs[idx]

	var gasBudget uint64
	var sender *chain.Address
	var extraSigners []chain.Address

	if len(call.Arguments) > 1 {
		opts, okOpts := call.Arguments[1].Export().(map[string]interface{})
		if !okOpts {
			return nil, fmt.Errorf("expected an options object")
		}
		if raw, has := opts["gasBudget"]; has {
			n, okN := toInt(raw)
			if !okN || n < 0 {
				return nil, fmt.Errorf("gasBudget must be a non-negative number")
			}
			gasBudget = uint64(n)
		}
		if raw, has := opts["sender"]; has {
			s, okS := raw.(string)
			if !okS {
				return nil, fmt.Errorf("sender must be an address string")
			}
			addr, err := chain.ObjectIDFromHex(s)
			if err != nil {
				return nil, err
			}
			sender = &addr
		}
		if raw, has := opts["extraSigners"]; has {
			list, okL := raw.([]interface{})
			if !okL {
				return nil, fmt.Errorf("extraSigners must be a list of addresses")
			}
			for _, entry := range list {
				s, okS := entry.(string)
				if !okS {
					return nil, fmt.Errorf("extraSigners must be a list of addresses")
				}
				addr, err := chain.ObjectIDFromHex(s)
				if err != nil {
					return nil, err
				}
				extraSigners = append(extraSigners, addr)
			}
		}
	}

	return cl.ExecuteTx(h.wallet, pt, gasBudget, sender, extraSigners)
}

func idStrings(ids []chain.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// txBuilderObject exposes the transaction builder to the script. Value
// arguments take decimal strings for the integer widths; arguments flow
// back as opaque handles.
func (h *Host) txBuilderObject(hs *handles) map[string]interface{} {
	builder := txbuilder.New()

	argValue := func(arg chain.Argument, err error) map[string]interface{} {
		if err != nil {
			return errResult(err)
		}
		hs.args = append(hs.args, arg)
		return ok(map[string]interface{}{"__arg": len(hs.args) - 1})
	}
	lookupArg := func(raw interface{}) (chain.Argument, error) {
		m, okCast := raw.(map[string]interface{})
		if !okCast {
			return chain.Argument{}, fmt.Errorf("expected an argument handle")
		}
		idx, okIdx := toInt(m["__arg"])
		if !okIdx || idx < 0 || idx >= len(hs.args) {
			return chain.Argument{}, fmt.Errorf("stale argument handle")
		}
		return hs.args[idx], nil
	}
	uintArg := func(f func(*suitypes.UInt) (chain.Argument, error)) func(string) map[string]interface{} {
		return func(s string) map[string]interface{} {
			v, err := suitypes.UIntFromString(s)
			if err != nil {
				return errResult(err)
			}
			return argValue(f(v))
		}
	}

	return map[string]interface{}{
		"u8":   uintArg(builder.U8),
		"u16":  uintArg(builder.U16),
		"u32":  uintArg(builder.U32),
		"u64":  uintArg(builder.U64),
		"u128": uintArg(builder.U128),
		"u256": uintArg(builder.U256),
		"bool": func(v bool) map[string]interface{} {
			return argValue(builder.Bool(v))
		},
		"address": func(s string) map[string]interface{} {
			addr, err := chain.ObjectIDFromHex(s)
			if err != nil {
				return errResult(err)
			}
			return argValue(builder.Address(addr))
		},
		"objectRef": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) != 1 {
				return h.vm.ToValue(errResult(fmt.Errorf("objectRef takes one object")))
			}
			obj, err := lookupObject(hs, call.Arguments[0])
			if err != nil {
				return h.vm.ToValue(errResult(err))
			}
			arg := objectArgFor(obj)
			return h.vm.ToValue(argValue(builder.ObjectRef(arg)))
		},
		"publishUpgradeable": func(pkgHandle map[string]interface{}) map[string]interface{} {
			pkg, err := lookupPackage(hs, pkgHandle)
			if err != nil {
				return errResult(err)
			}
			return argValue(builder.PublishUpgradeable(pkg.Bytes(), pkg.DepIDs()))
		},
		"publishImmutable": func(pkgHandle map[string]interface{}) map[string]interface{} {
			pkg, err := lookupPackage(hs, pkgHandle)
			if err != nil {
				return errResult(err)
			}
			if err := builder.PublishImmutable(pkg.Bytes(), pkg.DepIDs()); err != nil {
				return errResult(err)
			}
			return ok(nil)
		},
		"moveCall": func(pkgID, module, function string, typeArgs []interface{}, args []interface{}) map[string]interface{} {
			pkg, err := chain.ObjectIDFromHex(pkgID)
			if err != nil {
				return errResult(err)
			}
			tags := make([]string, len(typeArgs))
			for i, tag := range typeArgs {
				s, okS := tag.(string)
				if !okS {
					return errResult(fmt.Errorf("type arguments must be strings"))
				}
				tags[i] = s
			}
			resolved := make([]chain.Argument, len(args))
			for i, raw := range args {
				arg, err := lookupArg(raw)
				if err != nil {
					return errResult(err)
				}
				resolved[i] = arg
			}
			return argValue(builder.MoveCall(pkg, module, function, tags, resolved))
		},
		"splitCoin": func(coinRaw interface{}, amountsRaw []interface{}) map[string]interface{} {
			coin, err := lookupArg(coinRaw)
			if err != nil {
				return errResult(err)
			}
			amounts := make([]chain.Argument, len(amountsRaw))
			for i, raw := range amountsRaw {
				arg, err := lookupArg(raw)
				if err != nil {
					return errResult(err)
				}
				amounts[i] = arg
			}
			return argValue(builder.SplitCoin(coin, amounts))
		},
		"pay": func(call goja.FunctionCall) goja.Value {
			coins, amounts, recipients, err := payArgs(hs, call)
			if err != nil {
				return h.vm.ToValue(errResult(err))
			}
			if err := builder.Pay(coins, amounts, recipients); err != nil {
				return h.vm.ToValue(errResult(err))
			}
			return h.vm.ToValue(ok(nil))
		},
		"finish": func() map[string]interface{} {
			pt, err := builder.Finish()
			if err != nil {
				return errResult(err)
			}
			hs.txs = append(hs.txs, pt)
			return ok(map[string]interface{}{"__tx": len(hs.txs) - 1})
		},
	}
}

// objectArgFor picks the argument kind matching the object's ownership.
func objectArgFor(obj *suitypes.Object) chain.ObjectArg {
	if obj.Owner.Kind == suitypes.OwnerShared {
		return chain.ObjectArg{SharedObject: &chain.SharedObjectArg{
			ID:                   obj.ID,
			InitialSharedVersion: uint64(obj.Owner.InitialSharedVersion),
			Mutable:              true,
		}}
	}
	return chain.ObjectArg{ImmOrOwnedObject: &chain.ObjectRef{
		ID:      obj.ID,
		Version: obj.Version,
	}}
}

func lookupPackage(hs *handles, handle map[string]interface{}) (pkg interface {
	Bytes() [][]byte
	DepIDs() []chain.ObjectID
}, err error) {
	idx, okIdx := toInt(handle["__pkg"])
	if !okIdx || idx < 0 || idx >= len(hs.packages) {
		return nil, fmt.Errorf("stale package handle")
	}
	return hs.packages[idx], nil
}

// payArgs unpacks (coins, amounts, recipients) from script values.
func payArgs(hs *handles, call goja.FunctionCall) ([]chain.ObjectRef, []uint64, []chain.Address, error) {
	if len(call.Arguments) != 3 {
		return nil, nil, nil, fmt.Errorf("pay takes coins, amounts, recipients")
	}
	coinsRaw, okC := call.Arguments[0].Export().([]interface{})
	amountsRaw, okA := call.Arguments[1].Export().([]interface{})
	recipientsRaw, okR := call.Arguments[2].Export().([]interface{})
	if !okC || !okA || !okR {
		return nil, nil, nil, fmt.Errorf("pay takes three lists")
	}

	coins := make([]chain.ObjectRef, len(coinsRaw))
	for i, raw := range coinsRaw {
		m, okM := raw.(map[string]interface{})
		if !okM {
			return nil, nil, nil, fmt.Errorf("coin %d is not an object handle", i)
		}
		idx, okIdx := toInt(m["__h"])
		if !okIdx || idx < 0 || idx >= len(hs.objects) {
			return nil, nil, nil, fmt.Errorf("stale coin handle")
		}
		obj := hs.objects[idx]
		coins[i] = chain.ObjectRef{ID: obj.ID, Version: obj.Version}
	}

	amounts := make([]uint64, len(amountsRaw))
	for i, raw := range amountsRaw {
		n, okN := toInt(raw)
		if !okN || n < 0 {
			return nil, nil, nil, fmt.Errorf("amount %d must be a non-negative number", i)
		}
		amounts[i] = uint64(n)
	}

	recipients := make([]chain.Address, len(recipientsRaw))
	for i, raw := range recipientsRaw {
		s, okS := raw.(string)
		if !okS {
			return nil, nil, nil, fmt.Errorf("recipient %d must be an address string", i)
		}
		addr, err := chain.ObjectIDFromHex(s)
		if err != nil {
			return nil, nil, nil, err
		}
		recipients[i] = addr
	}
	return coins, amounts, recipients, nil
}
