package cluster

import (
	"testing"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/suitypes"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/txbuilder"
	"github.com/dominion-zone/dominion-lancer/internal/scenario/wallet"
)

func startCluster(t *testing.T) *Cluster {
	t.Helper()
	cl, err := NewBuilder().Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return cl
}

func TestGenesis(t *testing.T) {
	cl := startCluster(t)
	if !cl.IsRunning() {
		t.Fatal("cluster must start running")
	}
	balance, err := cl.GetBalance("", cl.ValidatorAddress())
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance == 0 {
		t.Error("validator must be funded at genesis")
	}
}

func TestBuilderSeedsObjects(t *testing.T) {
	b := NewBuilder()
	id := chain.MustObjectID("0xcafe")
	seed := &suitypes.Object{
		ID:    id,
		Owner: suitypes.Owner{Kind: suitypes.OwnerImmutable},
		Data: suitypes.ObjectData{
			Kind: suitypes.DataStruct,
			Tag:  chain.StructTag{Address: SuiFrameworkID, Module: "clock", Name: "Clock"},
			Fields: suitypes.StructValue([]string{"id"}, map[string]suitypes.MoveValue{
				"id": suitypes.UIDValue(id),
			}),
		},
	}
	if err := b.AddObject(seed); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	cl, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Error("second build must fail")
	}
	got, err := cl.GetObject(id)
	if err != nil {
		t.Fatalf("seeded object must exist: %v", err)
	}
	if tag, _ := got.StructTag(); tag.Name != "Clock" {
		t.Errorf("unexpected seeded object %+v", got)
	}
}

func TestStop(t *testing.T) {
	cl := startCluster(t)
	if err := cl.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := cl.Stop(); err == nil {
		t.Error("double stop must fail")
	}
	if _, err := cl.GetAllLiveObjects(); err == nil {
		t.Error("operations must fail after stop")
	}
}

// splitTx builds a transaction splitting amount off the gas coin and
// sending it to recipient.
func splitTx(t *testing.T, amount uint64, recipient chain.Address) chain.ProgrammableTransaction {
	t.Helper()
	b := txbuilder.New()
	amountArg, err := b.U64(suitypes.UIntFromUint64(amount))
	if err != nil {
		t.Fatal(err)
	}
	gas := chain.Argument{GasCoin: &chain.GasCoinArg{}}
	split, err := b.SplitCoin(gas, []chain.Argument{amountArg})
	if err != nil {
		t.Fatal(err)
	}
	addrArg, err := b.Address(recipient)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.MoveCall(SuiFrameworkID, "transfer", "public_transfer", nil,
		[]chain.Argument{split, addrArg})
	if err != nil {
		t.Fatal(err)
	}
	pt, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return pt
}

func TestExecuteTx_SplitAndTransfer(t *testing.T) {
	cl := startCluster(t)
	w := wallet.New()
	recipient, err := w.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	resp, err := cl.ExecuteTx(w, splitTx(t, 1000, recipient), 0, nil, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("unexpected status %s", resp.Status)
	}
	if len(resp.Created) == 0 {
		t.Error("split must create a coin")
	}

	balance, err := cl.GetBalance("", recipient)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 1000 {
		t.Errorf("expected recipient balance 1000, got %d", balance)
	}
}

func TestExecuteTx_SponsorSweep(t *testing.T) {
	cl := startCluster(t)
	w := wallet.New()
	recipient, _ := w.GenerateKeypair()

	before, _ := cl.GetBalance("", cl.ValidatorAddress())
	resp, err := cl.ExecuteTx(w, splitTx(t, 1000, recipient), 0, nil, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	after, _ := cl.GetBalance("", cl.ValidatorAddress())

	// The validator pays exactly the gas used plus the transferred amount;
	// the sponsor account keeps nothing.
	if before-after != resp.GasUsed+1000 {
		t.Errorf("sponsor must be swept: before %d after %d gas %d", before, after, resp.GasUsed)
	}
	coins, _ := cl.GetCoins("", cl.ValidatorAddress())
	if len(coins) != 1 {
		t.Errorf("no sponsor coin may survive, got %d validator coins", len(coins))
	}
}

func TestExecuteTx_UnknownSenderRejected(t *testing.T) {
	cl := startCluster(t)
	w := wallet.New()
	stranger := chain.MustObjectID("0xdead")
	_, err := cl.ExecuteTx(w, splitTx(t, 1, stranger), 0, &stranger, nil)
	if err == nil {
		t.Error("senders without keys must be rejected")
	}
}

func TestExecuteTx_UnknownMoveCall(t *testing.T) {
	cl := startCluster(t)
	w := wallet.New()

	b := txbuilder.New()
	_, err := b.MoveCall(chain.MustObjectID("0x123"), "pool", "hack", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	pt, _ := b.Finish()

	resp, err := cl.ExecuteTx(w, pt, 0, nil, nil)
	if err == nil {
		t.Error("unknown move calls must surface an error")
	}
	if resp != nil && resp.Status == "success" {
		t.Error("failed execution must not report success")
	}
}

func TestPublish(t *testing.T) {
	cl := startCluster(t)
	w := wallet.New()

	b := txbuilder.New()
	_, err := b.PublishUpgradeable([][]byte{{0xa1, 0x1c, 0xeb, 0x0b}}, []chain.ObjectID{chain.MustObjectID("0x1")})
	if err != nil {
		t.Fatal(err)
	}
	pt, _ := b.Finish()

	resp, err := cl.ExecuteTx(w, pt, 0, nil, nil)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(resp.Created) != 2 {
		t.Fatalf("expected package and upgrade cap, got %d objects", len(resp.Created))
	}

	var sawPackage bool
	for _, id := range resp.Created {
		obj, err := cl.GetObject(id)
		if err != nil {
			t.Fatal(err)
		}
		if obj.IsPackage() {
			sawPackage = true
		}
	}
	if !sawPackage {
		t.Error("publish must create a package object")
	}
}

func TestRecursiveTraversal(t *testing.T) {
	b := NewBuilder()
	parentID := chain.MustObjectID("0xaa")
	childID := chain.MustObjectID("0xbb")
	grandchildID := chain.MustObjectID("0xcc")
	owner := chain.MustObjectID("0x1234")

	structObj := func(id chain.ObjectID, ownerOf suitypes.Owner) *suitypes.Object {
		return &suitypes.Object{
			ID:    id,
			Owner: ownerOf,
			Data: suitypes.ObjectData{
				Kind: suitypes.DataStruct,
				Tag:  chain.StructTag{Address: SuiFrameworkID, Module: "bag", Name: "Bag"},
				Fields: suitypes.StructValue([]string{"id"}, map[string]suitypes.MoveValue{
					"id": suitypes.UIDValue(id),
				}),
			},
		}
	}

	b.AddObject(structObj(parentID, suitypes.Owner{Kind: suitypes.OwnerAddress, Address: owner}))
	b.AddObject(structObj(childID, suitypes.Owner{Kind: suitypes.OwnerObject, Address: parentID}))
	b.AddObject(structObj(grandchildID, suitypes.Owner{Kind: suitypes.OwnerObject, Address: childID}))

	cl, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	objs, err := cl.GetOwnedObjectsRecursive(owner)
	if err != nil {
		t.Fatalf("traversal failed: %v", err)
	}
	seen := map[chain.ObjectID]bool{}
	for _, obj := range objs {
		seen[obj.ID] = true
	}
	for _, want := range []chain.ObjectID{parentID, childID, grandchildID} {
		if !seen[want] {
			t.Errorf("traversal must reach %s", want)
		}
	}

	fromChild, err := cl.GetObjectRecursive(childID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fromChild) != 2 {
		t.Errorf("expected child and grandchild, got %d objects", len(fromChild))
	}
}

func TestRecursiveTraversal_CycleTerminates(t *testing.T) {
	b := NewBuilder()
	aID := chain.MustObjectID("0xa1")
	bID := chain.MustObjectID("0xb1")

	// a and b own each other through their UIDs; memoization must stop
	// the walk.
	cyclic := func(id, other chain.ObjectID) *suitypes.Object {
		return &suitypes.Object{
			ID:    id,
			Owner: suitypes.Owner{Kind: suitypes.OwnerObject, Address: other},
			Data: suitypes.ObjectData{
				Kind: suitypes.DataStruct,
				Tag:  chain.StructTag{Address: SuiFrameworkID, Module: "bag", Name: "Bag"},
				Fields: suitypes.StructValue([]string{"id"}, map[string]suitypes.MoveValue{
					"id": suitypes.UIDValue(id),
				}),
			},
		}
	}
	b.AddObject(cyclic(aID, bID))
	b.AddObject(cyclic(bID, aID))

	cl, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	objs, err := cl.GetObjectRecursive(aID)
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 {
		t.Errorf("cycle must yield each object once, got %d", len(objs))
	}
}

func TestRegisterApplier(t *testing.T) {
	cl := startCluster(t)
	w := wallet.New()
	pkg := chain.MustObjectID("0x999")

	cl.RegisterApplier(pkg, "pool", "poke", func(e *execEnv, call *chain.ProgrammableMoveCall, args []Value) ([]Value, error) {
		return []Value{{Pure: []byte{1}}}, nil
	})

	b := txbuilder.New()
	if _, err := b.MoveCall(pkg, "pool", "poke", nil, nil); err != nil {
		t.Fatal(err)
	}
	pt, _ := b.Finish()
	resp, err := cl.ExecuteTx(w, pt, 0, nil, nil)
	if err != nil {
		t.Fatalf("registered applier must run: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("unexpected status %s", resp.Status)
	}
}
