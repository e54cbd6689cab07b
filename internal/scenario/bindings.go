package scenario

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/cluster"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/compiler"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/suitypes"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/wallet"
)

// Script-facing results are {ok: value} or {err: message}; failures inside
// capabilities never raise into the script.
func ok(v interface{}) map[string]interface{} {
	return map[string]interface{}{"ok": v}
}

func errResult(err error) map[string]interface{} {
	return map[string]interface{}{"err": err.Error()}
}

// handles maps opaque script references back to host values.
type handles struct {
	objects  []*suitypes.Object
	args     []chain.Argument
	txs      []chain.ProgrammableTransaction
	packages []*compiler.Package
}

func (h *handles) putObject(o *suitypes.Object) int {
	h.objects = append(h.objects, o)
	return len(h.objects) - 1
}

// install wires the capability surface into the VM.
func (h *Host) install() error {
	hs := &handles{}
	tempWallet := wallet.New()
	h.wallet = tempWallet

	console := map[string]interface{}{
		"log": func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			message := strings.Join(parts, " ")
			h.appendLog("log", message)
			return goja.Undefined()
		},
	}
	if err := h.vm.Set("console", console); err != nil {
		return fmt.Errorf("install console: %w", err)
	}

	lancer := map[string]interface{}{
		"clusterBuilder":     func() map[string]interface{} { return h.clusterBuilderObject(hs) },
		"transaction":        func() map[string]interface{} { return h.txBuilderObject(hs) },
		"wallet":             h.walletObject(tempWallet),
		"uint":               uintNamespace(),
		"compile":            h.compileFunc(hs),
		"writePublicSummary": h.writeSummaryFunc(),
		"reportError":        h.reportErrorFunc(),
		"workingDir":         h.workingDir,
	}
	if err := h.vm.Set("lancer", lancer); err != nil {
		return fmt.Errorf("install lancer: %w", err)
	}
	return nil
}

// objectValue renders an object for the script, carrying its handle.
func (h *Host) objectValue(hs *handles, obj *suitypes.Object) map[string]interface{} {
	idx := hs.putObject(obj)
	out := map[string]interface{}{
		"__h":       idx,
		"id":        obj.ID.String(),
		"isPackage": obj.IsPackage(),
		"owner":     obj.Owner.String(),
	}
	if tag, okTag := obj.StructTag(); okTag {
		out["structTag"] = tag.String()
	}
	out["inner"] = func() map[string]interface{} {
		return ok(obj.Data.Fields.JSON())
	}
	out["serialize"] = func() map[string]interface{} {
		data, err := obj.Serialize()
		if err != nil {
			return errResult(err)
		}
		return ok(string(data))
	}
	return out
}

// lookupObject resolves a script-held object handle.
func lookupObject(hs *handles, v goja.Value) (*suitypes.Object, error) {
	obj, okCast := v.Export().(map[string]interface{})
	if !okCast {
		return nil, fmt.Errorf("expected an object handle")
	}
	raw, okField := obj["__h"]
	if !okField {
		return nil, fmt.Errorf("expected an object handle")
	}
	idx, okIdx := toInt(raw)
	if !okIdx || idx < 0 || idx >= len(hs.objects) {
		return nil, fmt.Errorf("stale object handle")
	}
	return hs.objects[idx], nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// clusterBuilderObject exposes TestClusterBuilder.
func (h *Host) clusterBuilderObject(hs *handles) map[string]interface{} {
	builder := cluster.NewBuilder()
	return map[string]interface{}{
		"addObject": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) != 1 {
				return h.vm.ToValue(errResult(fmt.Errorf("addObject takes one object")))
			}
			obj, err := lookupObject(hs, call.Arguments[0])
			if err != nil {
				return h.vm.ToValue(errResult(err))
			}
			if err := builder.AddObject(obj); err != nil {
				return h.vm.ToValue(errResult(err))
			}
			return h.vm.ToValue(ok(nil))
		},
		"build": func() map[string]interface{} {
			cl, err := builder.Build()
			if err != nil {
				return errResult(err)
			}
			return ok(h.clusterObject(hs, cl))
		},
	}
}

// walletObject exposes TempWallet.
func (h *Host) walletObject(w *wallet.TempWallet) map[string]interface{} {
	return map[string]interface{}{
		"generateKeypair": func() map[string]interface{} {
			addr, err := w.GenerateKeypair()
			if err != nil {
				return errResult(err)
			}
			return ok(addr.String())
		},
		"retainKeys": func() { w.RetainKeys() },
		"getKeys": func() []string {
			keys := w.Keys()
			out := make([]string, len(keys))
			for i, k := range keys {
				out[i] = k.String()
			}
			return out
		},
		"withKeypairs": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) != 2 {
				return h.vm.ToValue(errResult(fmt.Errorf("withKeypairs takes addresses and a function")))
			}
			list, okList := call.Arguments[0].Export().([]interface{})
			fn, okFn := goja.AssertFunction(call.Arguments[1])
			if !okList || !okFn {
				return h.vm.ToValue(errResult(fmt.Errorf("withKeypairs takes addresses and a function")))
			}
			addrs := make([]chain.Address, len(list))
			for i, raw := range list {
				s, okS := raw.(string)
				if !okS {
					return h.vm.ToValue(errResult(fmt.Errorf("address %d must be a string", i)))
				}
				addr, err := chain.ObjectIDFromHex(s)
				if err != nil {
					return h.vm.ToValue(errResult(err))
				}
				addrs[i] = addr
			}
			err := w.WithKeypairs(addrs, func(keys []ed25519.PrivateKey) error {
				seeds := make([]interface{}, len(keys))
				for i, key := range keys {
					seeds[i] = hex.EncodeToString(key.Seed())
				}
				_, callErr := fn(goja.Undefined(), h.vm.ToValue(seeds))
				return callErr
			})
			if err != nil {
				return h.vm.ToValue(errResult(err))
			}
			return h.vm.ToValue(ok(nil))
		},
		"clear": func() { w.Clear() },
	}
}

// uintNamespace exposes the arbitrary-precision integer as decimal strings.
func uintNamespace() map[string]interface{} {
	parse := func(s string) (*suitypes.UInt, error) {
		return suitypes.UIntFromString(s)
	}
	binary := func(f func(a, b *suitypes.UInt) (*suitypes.UInt, error)) func(string, string) map[string]interface{} {
		return func(sa, sb string) map[string]interface{} {
			a, err := parse(sa)
			if err != nil {
				return errResult(err)
			}
			b, err := parse(sb)
			if err != nil {
				return errResult(err)
			}
			out, err := f(a, b)
			if err != nil {
				return errResult(err)
			}
			return ok(out.String())
		}
	}
	widthOp := func(f func(a, b *suitypes.UInt, bits int) map[string]interface{}) func(string, string, int) map[string]interface{} {
		return func(sa, sb string, bits int) map[string]interface{} {
			a, err := parse(sa)
			if err != nil {
				return errResult(err)
			}
			b, err := parse(sb)
			if err != nil {
				return errResult(err)
			}
			return f(a, b, bits)
		}
	}

	return map[string]interface{}{
		"fromStr": func(s string) map[string]interface{} {
			v, err := parse(s)
			if err != nil {
				return errResult(err)
			}
			return ok(v.String())
		},
		"fromStrRadix": func(s string, radix int) map[string]interface{} {
			v, err := suitypes.UIntFromStringRadix(s, radix)
			if err != nil {
				return errResult(err)
			}
			return ok(v.String())
		},
		"maxValue": func(bits int) string { return suitypes.MaxValue(bits).String() },
		"add": binary(func(a, b *suitypes.UInt) (*suitypes.UInt, error) { return a.Add(b), nil }),
		"sub": binary(func(a, b *suitypes.UInt) (*suitypes.UInt, error) { return a.Sub(b) }),
		"mul": binary(func(a, b *suitypes.UInt) (*suitypes.UInt, error) { return a.Mul(b), nil }),
		"div": binary(func(a, b *suitypes.UInt) (*suitypes.UInt, error) { return a.Div(b) }),
		"rem": binary(func(a, b *suitypes.UInt) (*suitypes.UInt, error) { return a.Rem(b) }),
		"bitand": binary(func(a, b *suitypes.UInt) (*suitypes.UInt, error) { return a.And(b), nil }),
		"bitor":  binary(func(a, b *suitypes.UInt) (*suitypes.UInt, error) { return a.Or(b), nil }),
		"bitxor": binary(func(a, b *suitypes.UInt) (*suitypes.UInt, error) { return a.Xor(b), nil }),
		"pow": func(sa string, exp int) map[string]interface{} {
			a, err := parse(sa)
			if err != nil {
				return errResult(err)
			}
			if exp < 0 {
				return errResult(fmt.Errorf("negative exponent"))
			}
			return ok(a.Pow(uint(exp)).String())
		},
		"shl": func(sa string, n int) map[string]interface{} {
			a, err := parse(sa)
			if err != nil {
				return errResult(err)
			}
			return ok(a.Shl(uint(n)).String())
		},
		"shr": func(sa string, n int) map[string]interface{} {
			a, err := parse(sa)
			if err != nil {
				return errResult(err)
			}
			return ok(a.Shr(uint(n)).String())
		},
		"checkedAdd": widthOp(func(a, b *suitypes.UInt, bits int) map[string]interface{} {
			sum := a.CheckedAdd(b, bits)
			if sum == nil {
				return ok(nil)
			}
			return ok(sum.String())
		}),
		"wrappingAdd": widthOp(func(a, b *suitypes.UInt, bits int) map[string]interface{} {
			return ok(a.WrappingAdd(b, bits).String())
		}),
		"wrappingMul": widthOp(func(a, b *suitypes.UInt, bits int) map[string]interface{} {
			return ok(a.WrappingMul(b, bits).String())
		}),
		"overflowingAdd": widthOp(func(a, b *suitypes.UInt, bits int) map[string]interface{} {
			sum, overflow := a.OverflowingAdd(b, bits)
			return ok(map[string]interface{}{"value": sum.String(), "overflow": overflow})
		}),
		"saturatingAdd": widthOp(func(a, b *suitypes.UInt, bits int) map[string]interface{} {
			return ok(a.SaturatingAdd(b, bits).String())
		}),
		"cmp": func(sa, sb string) map[string]interface{} {
			a, err := parse(sa)
			if err != nil {
				return errResult(err)
			}
			b, err := parse(sb)
			if err != nil {
				return errResult(err)
			}
			return ok(a.Cmp(b))
		},
	}
}

// compileFunc loads a Move package from the scenario's input tree.
func (h *Host) compileFunc(hs *handles) func(string) map[string]interface{} {
	return func(path string) map[string]interface{} {
		resolved := filepath.Clean(filepath.Join(h.workingDir, path))
		if !strings.HasPrefix(resolved, filepath.Clean(h.workingDir)+string(filepath.Separator)) {
			return errResult(fmt.Errorf("package path escapes working directory"))
		}
		pkg, err := compiler.Compile(resolved)
		if err != nil {
			return errResult(err)
		}
		hs.packages = append(hs.packages, pkg)
		idx := len(hs.packages) - 1

		deps := pkg.DepIDs()
		depStrings := make([]string, len(deps))
		for i, d := range deps {
			depStrings[i] = d.String()
		}
		return ok(map[string]interface{}{
			"__pkg":   idx,
			"modules": len(pkg.Bytes()),
			"depIds":  depStrings,
		})
	}
}

func (h *Host) writeSummaryFunc() func(goja.Value) map[string]interface{} {
	return func(v goja.Value) map[string]interface{} {
		if err := h.writePublicSummary(v.Export()); err != nil {
			return errResult(err)
		}
		h.appendLog("summary", "public summary written")
		return ok(nil)
	}
}

func (h *Host) reportErrorFunc() func(string) map[string]interface{} {
	return func(message string) map[string]interface{} {
		if err := h.reportError(message); err != nil {
			return errResult(err)
		}
		h.appendLog("error", message)
		return ok(nil)
	}
}
