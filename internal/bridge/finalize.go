package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
)

const commitGasBudget = 1_000_000_000

// finalize publishes the response's reports to the content-addressed store
// and commits their references on-chain. Not retried: by now the enclave
// has consumed the submission; failures are surfaced to the operator via
// logs keyed by finding id.
func (b *Bridge) finalize(ctx context.Context, task *transport.LancerRunTask, resp *transport.LancerRunResponse) error {
	var publicRef, privateRef, errorRef *chain.ObjectRef

	upload := func(blob *transport.EncryptedBlob, kind string) (*chain.ObjectRef, error) {
		if blob == nil {
			return nil, nil
		}
		result, err := b.storage.Store(ctx, blob.Sealed)
		if err != nil {
			return nil, fmt.Errorf("upload %s report: %w", kind, err)
		}
		b.log.Infof("stored %s report as blob %s", kind, result.BlobID)
		data, err := b.client.GetObject(ctx, result.ObjectID, chain.ObjectDataOptions{})
		if err != nil {
			return nil, fmt.Errorf("resolve %s blob object: %w", kind, err)
		}
		return &chain.ObjectRef{
			ID:      data.ObjectID,
			Version: data.Version,
			Digest:  chain.ParseDigest(data.Digest),
		}, nil
	}

	var err error
	if publicRef, err = upload(resp.PublicReport, "public"); err != nil {
		return err
	}
	if privateRef, err = upload(resp.PrivateReport, "private"); err != nil {
		return err
	}
	if errorRef, err = upload(resp.ErrorMessage, "error"); err != nil {
		return err
	}

	finding, err := b.client.GetObject(ctx, task.FindingID, chain.ObjectDataOptions{ShowOwner: true})
	if err != nil {
		return fmt.Errorf("resolve finding: %w", err)
	}
	if finding.Owner == nil || finding.Owner.Shared == nil {
		return fmt.Errorf("finding %s is not shared", task.FindingID)
	}

	b.mu.RLock()
	registered := b.registered
	b.mu.RUnlock()
	enclaveID := chain.ZeroAddress
	if registered != nil {
		enclaveID = registered.ID
	}

	pt := chain.NewBuilder()
	findingArg := pt.Obj(chain.ObjectArg{SharedObject: &chain.SharedObjectArg{
		ID:                   task.FindingID,
		InitialSharedVersion: uint64(finding.Owner.Shared.InitialSharedVersion),
		Mutable:              true,
	}})
	enclaveArg, err := pt.Pure(enclaveID)
	if err != nil {
		return err
	}
	timestampArg, err := pt.Pure(uint64(time.Now().UnixMilli()))
	if err != nil {
		return err
	}

	blobType, err := chain.ParseTypeTagValue(fmt.Sprintf("%s::blob::Blob", b.storage.SystemPackage()))
	if err != nil {
		return err
	}

	if errorRef != nil {
		errorArg := pt.Obj(chain.ObjectArg{ImmOrOwnedObject: errorRef})
		pt.MoveCall(b.cfg.LancerID, "finding", "report_error_for_testing", nil,
			[]chain.Argument{findingArg, errorArg, enclaveArg, timestampArg})
	} else {
		if publicRef == nil {
			return fmt.Errorf("response carries neither public report nor error")
		}
		publicArg := pt.Obj(chain.ObjectArg{ImmOrOwnedObject: publicRef})

		var privateOpt chain.Argument
		if privateRef != nil {
			inner := pt.Obj(chain.ObjectArg{ImmOrOwnedObject: privateRef})
			privateOpt = pt.MoveCall(chain.MoveStdlibPackageID, "option", "some",
				[]chain.TypeTagValue{blobType}, []chain.Argument{inner})
		} else {
			privateOpt = pt.MoveCall(chain.MoveStdlibPackageID, "option", "none",
				[]chain.TypeTagValue{blobType}, nil)
		}

		pt.MoveCall(b.cfg.LancerID, "finding", "commit_for_testing", nil,
			[]chain.Argument{findingArg, publicArg, privateOpt, enclaveArg, timestampArg})
	}

	resp2, err := b.execute(ctx, pt)
	if err != nil {
		return err
	}
	b.log.Infof("commit transaction %s", resp2.Digest)
	return nil
}

// execute funds, signs, and submits the accumulated transaction with the
// host wallet.
func (b *Bridge) execute(ctx context.Context, pt *chain.Builder) (*chain.TransactionBlockResponse, error) {
	gas, err := b.client.FirstCoin(ctx, b.wallet.Address())
	if err != nil {
		return nil, fmt.Errorf("select gas object: %w", err)
	}
	price, err := b.client.GetReferenceGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("reference gas price: %w", err)
	}
	tx := chain.NewProgrammable(b.wallet.Address(), []chain.ObjectRef{gas}, pt.Finish(), commitGasBudget, price)
	return b.wallet.SignAndExecute(ctx, tx)
}
