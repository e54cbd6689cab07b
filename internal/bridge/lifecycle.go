package bridge

import (
	"context"
	"fmt"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
)

// The shared clock object consumed by the attestation primitive.
var clockObjectID = chain.MustObjectID("0x6")

// installIdentity makes the received identity current. An identity equal to
// the previously seen one reuses the existing registration; a different one
// retires the old registered enclave before registering the new identity.
func (b *Bridge) installIdentity(ctx context.Context, identity *transport.Identity) error {
	b.mu.RLock()
	last := b.lastSeen
	registered := b.registered
	b.mu.RUnlock()

	if last != nil && last.Equal(*identity) && registered != nil {
		b.setIdentity(identity)
		return nil
	}

	if registered != nil {
		if err := b.retireEnclave(ctx, registered); err != nil {
			return fmt.Errorf("retire enclave %s: %w", registered.ID, err)
		}
		b.mu.Lock()
		b.registered = nil
		b.mu.Unlock()
	}

	fresh, err := b.registerEnclave(ctx, identity)
	if err != nil {
		return fmt.Errorf("register enclave: %w", err)
	}

	b.mu.Lock()
	b.registered = fresh
	b.mu.Unlock()
	b.setIdentity(identity)
	b.log.Infof("registered enclave %s", fresh.ID)
	return nil
}

// executorType builds the EXECUTOR type parameter of the lifecycle calls.
func (b *Bridge) executorType() (chain.TypeTagValue, error) {
	return chain.ParseTypeTagValue(fmt.Sprintf("%s::executor::Executor", b.cfg.ExecutorOriginID))
}

// registerEnclave parses the attestation on-chain and registers the
// enclave; the first newly shared object in the effects is the
// registered-enclave reference.
func (b *Bridge) registerEnclave(ctx context.Context, identity *transport.Identity) (*registeredEnclave, error) {
	enclaveConfig, err := b.client.GetObject(ctx, b.cfg.EnclaveConfigID, chain.ObjectDataOptions{ShowOwner: true})
	if err != nil {
		return nil, fmt.Errorf("resolve enclave config: %w", err)
	}
	if enclaveConfig.Owner == nil || enclaveConfig.Owner.Shared == nil {
		return nil, fmt.Errorf("enclave config %s is not shared", b.cfg.EnclaveConfigID)
	}

	pt := chain.NewBuilder()
	attestationArg, err := pt.Pure(identity.Attestation)
	if err != nil {
		return nil, err
	}
	clockArg := pt.Obj(chain.ObjectArg{SharedObject: &chain.SharedObjectArg{
		ID:                   clockObjectID,
		InitialSharedVersion: 1,
		Mutable:              false,
	}})
	document := pt.MoveCall(b.cfg.NautilusID, "nitro_attestation", "load_nitro_attestation",
		nil, []chain.Argument{attestationArg, clockArg})

	executor, err := b.executorType()
	if err != nil {
		return nil, err
	}
	configArg := pt.Obj(chain.ObjectArg{SharedObject: &chain.SharedObjectArg{
		ID:                   b.cfg.EnclaveConfigID,
		InitialSharedVersion: uint64(enclaveConfig.Owner.Shared.InitialSharedVersion),
		Mutable:              false,
	}})
	pt.MoveCall(b.cfg.LancerID, "enclave", "register",
		[]chain.TypeTagValue{executor}, []chain.Argument{configArg, document})

	resp, err := b.execute(ctx, pt)
	if err != nil {
		return nil, err
	}

	id, version, ok := resp.Effects.FirstShared()
	if !ok {
		return nil, fmt.Errorf("registration produced no shared enclave object")
	}
	return &registeredEnclave{ID: id, InitialSharedVersion: version}, nil
}

// retireEnclave deploys the old enclave object out of service.
func (b *Bridge) retireEnclave(ctx context.Context, registered *registeredEnclave) error {
	executor, err := b.executorType()
	if err != nil {
		return err
	}
	pt := chain.NewBuilder()
	enclaveArg := pt.Obj(chain.ObjectArg{SharedObject: &chain.SharedObjectArg{
		ID:                   registered.ID,
		InitialSharedVersion: uint64(registered.InitialSharedVersion),
		Mutable:              true,
	}})
	pt.MoveCall(b.cfg.LancerID, "finding", "deploy_old_enclave_by_owner",
		[]chain.TypeTagValue{executor}, []chain.Argument{enclaveArg})

	_, err = b.execute(ctx, pt)
	return err
}
