package cluster

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/fardream/go-bcs/bcs"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/suitypes"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/wallet"
)

// Gas accounting of the simulated executor: a base fee plus a per-command
// fee, charged to the sponsor coin.
const (
	baseGasFee       = 1_000_000
	perCommandGasFee = 10_000
)

// TxResponse is the execution result handed back to the script.
type TxResponse struct {
	Digest  string
	Status  string
	GasUsed uint64
	Created []chain.ObjectID
	Mutated []chain.ObjectID
	Deleted []chain.ObjectID
}

// Value is one runtime value flowing between commands: either raw BCS
// bytes or an object reference.
type Value struct {
	Pure   []byte
	Object *suitypes.Object
}

// ExecuteTx runs one programmable transaction under the sponsored gas
// policy: a fresh sponsor keypair is funded from the validator gas, the
// transaction runs with the scenario-provided sender, and the sponsor
// account is emptied back to the validator afterwards. Commands can still
// address the gas coin (it resolves to the sponsor coin) and split value off
// it; only what remains after the gas fee returns to the validator.
func (c *Cluster) ExecuteTx(w *wallet.TempWallet, pt chain.ProgrammableTransaction, gasBudget uint64, sender *chain.Address, extraSigners []chain.Address) (*TxResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, fmt.Errorf("cluster is not running")
	}

	// Resolve the sender: scenario-provided addresses must be able to
	// sign; the default sender is the validator.
	var senderAddr chain.Address
	if sender != nil {
		senderAddr = *sender
		if _, ok := w.Keypair(senderAddr); !ok {
			return nil, fmt.Errorf("key not found for sender %s", senderAddr)
		}
	} else {
		senderAddr = c.validatorAddr
	}
	for _, signer := range extraSigners {
		if _, ok := w.Keypair(signer); !ok && signer != c.validatorAddr {
			return nil, fmt.Errorf("key not found for signer %s", signer)
		}
	}

	if gasBudget == 0 {
		gasBudget = 500_000_000
	}

	// Sponsor setup: fresh keypair funded off the validator gas coin.
	sponsorPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate sponsor key: %w", err)
	}
	sponsorAddr := chain.AddressFromPublicKey(sponsorPub)

	validatorGas, ok := c.objects[c.validatorGas]
	if !ok {
		return nil, fmt.Errorf("validator gas object lost")
	}
	validatorBalance, err := coinBalance(validatorGas)
	if err != nil {
		return nil, err
	}
	if validatorBalance < gasBudget {
		return nil, fmt.Errorf("validator gas exhausted")
	}
	c.setCoinBalance(validatorGas, validatorBalance-gasBudget)
	sponsorCoin := c.newCoin(sponsorAddr, gasBudget)

	env := &execEnv{
		cluster: c,
		sender:  senderAddr,
		gasCoin: sponsorCoin,
	}
	execErr := env.apply(pt)

	gasUsed := uint64(baseGasFee + perCommandGasFee*len(pt.Commands))
	sponsorBalance, balErr := coinBalance(sponsorCoin)
	if balErr == nil {
		if sponsorBalance < gasUsed {
			gasUsed = sponsorBalance
		}
		// Cleanup transaction: the sponsor signs its remaining balance
		// back to the validator, then the keypair is discarded.
		c.setCoinBalance(sponsorCoin, 0)
		validatorBalance, _ = coinBalance(validatorGas)
		c.setCoinBalance(validatorGas, validatorBalance+sponsorBalance-gasUsed)
		delete(c.objects, sponsorCoin.ID)
	}

	c.txCounter++
	resp := &TxResponse{
		Digest:  digestOf(c.txCounter),
		GasUsed: gasUsed,
		Created: env.created,
		Mutated: env.mutated,
		Deleted: env.deleted,
	}
	if execErr != nil {
		resp.Status = "failure"
		return resp, execErr
	}
	resp.Status = "success"
	return resp, nil
}

// execEnv evaluates one transaction's inputs and commands.
type execEnv struct {
	cluster *Cluster
	sender  chain.Address
	gasCoin *suitypes.Object

	inputs  []Value
	results [][]Value

	created []chain.ObjectID
	mutated []chain.ObjectID
	deleted []chain.ObjectID
}

func (e *execEnv) apply(pt chain.ProgrammableTransaction) error {
	e.inputs = make([]Value, len(pt.Inputs))
	for i, input := range pt.Inputs {
		switch {
		case input.Pure != nil:
			e.inputs[i] = Value{Pure: *input.Pure}
		case input.Object != nil:
			obj, err := e.resolveObjectArg(*input.Object)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			e.inputs[i] = Value{Object: obj}
		default:
			return fmt.Errorf("input %d carries no value", i)
		}
	}

	for i, cmd := range pt.Commands {
		results, err := e.applyCommand(cmd)
		if err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
		e.results = append(e.results, results)
	}
	return nil
}

func (e *execEnv) resolveObjectArg(arg chain.ObjectArg) (*suitypes.Object, error) {
	var id chain.ObjectID
	switch {
	case arg.ImmOrOwnedObject != nil:
		id = arg.ImmOrOwnedObject.ID
	case arg.SharedObject != nil:
		id = arg.SharedObject.ID
	case arg.Receiving != nil:
		id = arg.Receiving.ID
	default:
		return nil, fmt.Errorf("object arg carries no reference")
	}
	obj, ok := e.cluster.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s not found", id)
	}
	return obj, nil
}

func (e *execEnv) resolveArgument(arg chain.Argument) (Value, error) {
	switch {
	case arg.GasCoin != nil:
		return Value{Object: e.gasCoin}, nil
	case arg.Input != nil:
		if int(*arg.Input) >= len(e.inputs) {
			return Value{}, fmt.Errorf("input %d out of range", *arg.Input)
		}
		return e.inputs[*arg.Input], nil
	case arg.Result != nil:
		if int(*arg.Result) >= len(e.results) {
			return Value{}, fmt.Errorf("result %d out of range", *arg.Result)
		}
		results := e.results[*arg.Result]
		if len(results) == 0 {
			return Value{}, nil
		}
		return results[0], nil
	case arg.NestedResult != nil:
		nr := arg.NestedResult
		if int(nr.Command) >= len(e.results) || int(nr.Result) >= len(e.results[nr.Command]) {
			return Value{}, fmt.Errorf("nested result (%d,%d) out of range", nr.Command, nr.Result)
		}
		return e.results[nr.Command][nr.Result], nil
	default:
		return Value{}, fmt.Errorf("argument carries no reference")
	}
}

func (e *execEnv) applyCommand(cmd chain.Command) ([]Value, error) {
	switch {
	case cmd.SplitCoins != nil:
		return e.applySplitCoins(cmd.SplitCoins)
	case cmd.MergeCoins != nil:
		return nil, e.applyMergeCoins(cmd.MergeCoins)
	case cmd.TransferObjects != nil:
		return nil, e.applyTransferObjects(cmd.TransferObjects)
	case cmd.Publish != nil:
		return e.applyPublish(cmd.Publish)
	case cmd.MoveCall != nil:
		return e.applyMoveCall(cmd.MoveCall)
	default:
		return nil, fmt.Errorf("unsupported command")
	}
}

func (e *execEnv) applySplitCoins(cmd *chain.SplitCoinsCommand) ([]Value, error) {
	coinValue, err := e.resolveArgument(cmd.Coin)
	if err != nil {
		return nil, err
	}
	if coinValue.Object == nil {
		return nil, fmt.Errorf("split target is not an object")
	}
	balance, err := coinBalance(coinValue.Object)
	if err != nil {
		return nil, err
	}

	var out []Value
	for _, amountArg := range cmd.Amounts {
		amountValue, err := e.resolveArgument(amountArg)
		if err != nil {
			return nil, err
		}
		amount, err := decodeU64(amountValue)
		if err != nil {
			return nil, err
		}
		if balance < amount {
			return nil, fmt.Errorf("insufficient coin balance")
		}
		balance -= amount
		split := e.cluster.newCoin(e.sender, amount)
		e.created = append(e.created, split.ID)
		out = append(out, Value{Object: split})
	}
	e.cluster.setCoinBalance(coinValue.Object, balance)
	e.mutated = append(e.mutated, coinValue.Object.ID)
	return out, nil
}

func (e *execEnv) applyMergeCoins(cmd *chain.MergeCoinsCommand) error {
	destValue, err := e.resolveArgument(cmd.Destination)
	if err != nil {
		return err
	}
	if destValue.Object == nil {
		return fmt.Errorf("merge destination is not an object")
	}
	total, err := coinBalance(destValue.Object)
	if err != nil {
		return err
	}
	for _, srcArg := range cmd.Sources {
		srcValue, err := e.resolveArgument(srcArg)
		if err != nil {
			return err
		}
		if srcValue.Object == nil {
			return fmt.Errorf("merge source is not an object")
		}
		balance, err := coinBalance(srcValue.Object)
		if err != nil {
			return err
		}
		total += balance
		delete(e.cluster.objects, srcValue.Object.ID)
		e.deleted = append(e.deleted, srcValue.Object.ID)
	}
	e.cluster.setCoinBalance(destValue.Object, total)
	e.mutated = append(e.mutated, destValue.Object.ID)
	return nil
}

func (e *execEnv) applyTransferObjects(cmd *chain.TransferObjectsCommand) error {
	addrValue, err := e.resolveArgument(cmd.Address)
	if err != nil {
		return err
	}
	addr, err := decodeAddress(addrValue)
	if err != nil {
		return err
	}
	for _, objArg := range cmd.Objects {
		objValue, err := e.resolveArgument(objArg)
		if err != nil {
			return err
		}
		if objValue.Object == nil {
			return fmt.Errorf("transfer target is not an object")
		}
		objValue.Object.Owner = suitypes.Owner{Kind: suitypes.OwnerAddress, Address: addr}
		objValue.Object.Version = e.cluster.nextVersion()
		e.mutated = append(e.mutated, objValue.Object.ID)
	}
	return nil
}

func (e *execEnv) applyPublish(cmd *chain.PublishCommand) ([]Value, error) {
	if len(cmd.Modules) == 0 {
		return nil, fmt.Errorf("empty package")
	}
	pkgID := e.cluster.freshID()
	pkg := &suitypes.Object{
		ID:      pkgID,
		Version: e.cluster.nextVersion(),
		Owner:   suitypes.Owner{Kind: suitypes.OwnerImmutable},
		Data: suitypes.ObjectData{
			Kind:    suitypes.DataPackage,
			Modules: cmd.Modules,
		},
	}
	e.cluster.objects[pkgID] = pkg
	e.created = append(e.created, pkgID)

	capID := e.cluster.freshID()
	upgradeCap := &suitypes.Object{
		ID:      capID,
		Version: e.cluster.nextVersion(),
		Owner:   suitypes.Owner{Kind: suitypes.OwnerAddress, Address: e.sender},
		Data: suitypes.ObjectData{
			Kind: suitypes.DataStruct,
			Tag: chain.StructTag{
				Address: SuiFrameworkID,
				Module:  "package",
				Name:    "UpgradeCap",
			},
			Fields: suitypes.StructValue(
				[]string{"id", "package"},
				map[string]suitypes.MoveValue{
					"id":      suitypes.UIDValue(capID),
					"package": {Kind: suitypes.ValueAddress, Address: pkgID},
				},
			),
		},
	}
	e.cluster.objects[capID] = upgradeCap
	e.created = append(e.created, capID)

	return []Value{{Object: upgradeCap}}, nil
}

func (e *execEnv) applyMoveCall(call *chain.ProgrammableMoveCall) ([]Value, error) {
	args := make([]Value, len(call.Arguments))
	for i, arg := range call.Arguments {
		value, err := e.resolveArgument(arg)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}

	applier, ok := e.cluster.lookupApplier(call)
	if !ok {
		return nil, fmt.Errorf("unsupported move call %s::%s::%s", call.Package, call.Module, call.Function)
	}
	return applier(e, call, args)
}

func decodeU64(v Value) (uint64, error) {
	if v.Object != nil {
		return 0, fmt.Errorf("expected pure u64, got object")
	}
	var out uint64
	if _, err := bcs.Unmarshal(v.Pure, &out); err != nil {
		return 0, fmt.Errorf("decode u64: %w", err)
	}
	return out, nil
}

func decodeAddress(v Value) (chain.Address, error) {
	if v.Object != nil {
		return chain.Address{}, fmt.Errorf("expected pure address, got object")
	}
	if len(v.Pure) != chain.AddressLength {
		return chain.Address{}, fmt.Errorf("address must be %d bytes", chain.AddressLength)
	}
	var addr chain.Address
	copy(addr[:], v.Pure)
	return addr, nil
}
