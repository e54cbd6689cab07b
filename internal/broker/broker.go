// Package broker is the authenticated HTTP ingress for encrypted
// submissions. It verifies each submission's on-chain commitment and
// enqueues it for the bridge; it never decrypts or runs anything.
package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/config"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
)

// QueueCapacity bounds the submissions waiting for the bridge.
const QueueCapacity = 8

// EnqueueTimeout bounds how long ingress blocks on a full queue before
// returning back-pressure.
const EnqueueTimeout = 10 * time.Second

var (
	// ErrNoEnclave is returned when no enclave identity is currently held.
	ErrNoEnclave = errors.New("not connected to enclave")
	// ErrQueueFull is the back-pressure signal for a saturated queue.
	ErrQueueFull = errors.New("submission queue is full")
)

// IdentityHolder exposes the enclave identity currently held by the bridge.
type IdentityHolder interface {
	CurrentIdentity() (*transport.Identity, bool)
}

// Broker verifies submissions and feeds the bridge queue.
type Broker struct {
	cfg      *config.Server
	client   *chain.Client
	identity IdentityHolder
	tasks    chan *transport.LancerRunTask
	log      *logger.Logger
}

// New creates a broker around the shared chain client and identity holder.
func New(cfg *config.Server, client *chain.Client, identity IdentityHolder, log *logger.Logger) *Broker {
	return &Broker{
		cfg:      cfg,
		client:   client,
		identity: identity,
		tasks:    make(chan *transport.LancerRunTask, QueueCapacity),
		log:      log,
	}
}

// Tasks is the bounded queue consumed by the bridge worker.
func (b *Broker) Tasks() <-chan *transport.LancerRunTask {
	return b.tasks
}

// PublicKey returns the current enclave decryption key in SPKI DER form.
func (b *Broker) PublicKey() ([]byte, error) {
	id, ok := b.identity.CurrentIdentity()
	if !ok {
		return nil, ErrNoEnclave
	}
	return id.DecryptionPublicKey, nil
}

// Accept verifies one submission against its on-chain commitment and
// enqueues it. The task is owned by the queue on success.
func (b *Broker) Accept(ctx context.Context, task *transport.LancerRunTask) error {
	hash := task.SubmissionHash()
	b.log.WithField("finding_id", task.FindingID.String()).
		Infof("received submission, hash %x", hash)

	committed, err := b.committedHash(ctx, task.FindingID)
	if err != nil {
		return err
	}
	if !bytes.Equal(hash, committed) {
		submissionsRejected.Inc()
		return fmt.Errorf("finding_hash does not match")
	}

	select {
	case b.tasks <- task:
		submissionsAccepted.Inc()
		return nil
	case <-time.After(EnqueueTimeout):
		submissionsRejected.Inc()
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// committedHash resolves the finding object, checks its type tag, walks the
// versioned inner object, and extracts its submission_hash field.
func (b *Broker) committedHash(ctx context.Context, findingID chain.ObjectID) ([]byte, error) {
	finding, err := b.client.GetObject(ctx, findingID, chain.ObjectDataOptions{ShowContent: true})
	if err != nil {
		return nil, fmt.Errorf("resolve finding: %w", err)
	}
	if finding.Content == nil || finding.Content.DataType != "moveObject" {
		return nil, fmt.Errorf("finding is not a move object")
	}

	wantTag := chain.StructTag{
		Address: b.cfg.FindingOriginID,
		Module:  "finding",
		Name:    "Finding",
	}
	gotTag, err := chain.ParseStructTag(finding.Content.Type)
	if err != nil {
		return nil, fmt.Errorf("finding type: %w", err)
	}
	if !gotTag.Equal(wantTag) {
		return nil, fmt.Errorf("finding is not a Finding")
	}

	// The finding wraps a Versioned inner: { id: UID, version: u64 }.
	var versioned struct {
		Fields struct {
			ID struct {
				ID chain.ObjectID `json:"id"`
			} `json:"id"`
			Version string `json:"version"`
		} `json:"fields"`
	}
	if err := finding.Content.Fields.Field("inner", &versioned); err != nil {
		return nil, fmt.Errorf("finding inner: %w", err)
	}

	// The versioned payload hangs off the inner UID as a dynamic field
	// keyed by the version number serialized as a decimal string.
	inner, err := b.client.GetDynamicFieldObject(ctx, versioned.Fields.ID.ID, chain.DynamicFieldName{
		Type:  "u64",
		Value: versioned.Fields.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve versioned inner: %w", err)
	}
	if inner.Content == nil {
		return nil, fmt.Errorf("inner content not found")
	}

	// vector<u8> arrives as a JSON array of numbers.
	var value struct {
		Fields struct {
			SubmissionHash []int `json:"submission_hash"`
		} `json:"fields"`
	}
	if err := inner.Content.Fields.Field("value", &value); err != nil {
		return nil, fmt.Errorf("inner value: %w", err)
	}
	if len(value.Fields.SubmissionHash) == 0 {
		return nil, fmt.Errorf("submission_hash not found")
	}
	hash := make([]byte, len(value.Fields.SubmissionHash))
	for i, v := range value.Fields.SubmissionHash {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("submission_hash is not a byte vector")
		}
		hash[i] = byte(v)
	}
	return hash, nil
}
