// Package transport defines the payloads and framing of the host/enclave
// bridge. Payloads are BCS-serialized; frames carry a 4-byte big-endian
// length prefix.
package transport

import (
	"bytes"
	"fmt"

	"github.com/fardream/go-bcs/bcs"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
)

// Identity is the first frame an enclave sends after connecting. Two
// identities are equal iff both fields are bit-identical.
type Identity struct {
	// DecryptionPublicKey is the SPKI DER encoding of the enclave's
	// RSA-2048 submission-unwrapping key.
	DecryptionPublicKey []byte
	// Attestation is the opaque attestation document binding the enclave's
	// signing public key.
	Attestation []byte
}

// Equal reports bit-identity of both fields.
func (i Identity) Equal(o Identity) bool {
	return bytes.Equal(i.DecryptionPublicKey, o.DecryptionPublicKey) &&
		bytes.Equal(i.Attestation, o.Attestation)
}

// LancerRunTask carries one submission across the bridge, fields verbatim
// from the broker.
type LancerRunTask struct {
	IV            []byte
	EncryptedFile []byte
	EncryptedKey  []byte
	BugBountyID   chain.ObjectID
	FindingID     chain.ObjectID
	EscrowID      chain.ObjectID
}

// SubmissionHash recomputes the canonical identity of the submission:
// SHA-256(iv || encrypted_file || encrypted_key || bug_bounty_id).
func (t *LancerRunTask) SubmissionHash() []byte {
	return SubmissionHash(t.IV, t.EncryptedFile, t.EncryptedKey, t.BugBountyID)
}

// EncryptedBlob is an IBE-sealed report together with its content address.
// BlobID is a deterministic function of Sealed.
type EncryptedBlob struct {
	// Sealed is the BCS serialization of the sealed object.
	Sealed []byte
	// BlobID is the storage layer's canonical content address of Sealed.
	BlobID [32]byte
}

// LancerRunResponse is the enclave's result for one task.
type LancerRunResponse struct {
	PublicReport  *EncryptedBlob `bcs:"optional"`
	PrivateReport *EncryptedBlob `bcs:"optional"`
	ErrorMessage  *EncryptedBlob `bcs:"optional"`
	// Signature binds the response to the submission; currently the
	// submission hash.
	Signature []byte
}

// RunResult is the sum type wrapping a response frame:
// Ok(LancerRunResponse) | Err(string).
type RunResult struct {
	Ok  *LancerRunResponse
	Err *string
}

// IsBcsEnum marks RunResult as a BCS enum: the serialized form is the
// variant index of the first non-nil field followed by its value.
func (RunResult) IsBcsEnum() {}

// OkResult wraps a successful response.
func OkResult(resp *LancerRunResponse) RunResult {
	return RunResult{Ok: resp}
}

// ErrResult wraps a failure string.
func ErrResult(msg string) RunResult {
	return RunResult{Err: &msg}
}

// MarshalIdentity serializes an identity frame payload.
func MarshalIdentity(id *Identity) ([]byte, error) {
	return bcs.Marshal(id)
}

// UnmarshalIdentity parses an identity frame payload.
func UnmarshalIdentity(data []byte) (*Identity, error) {
	var id Identity
	if _, err := bcs.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &id, nil
}

// MarshalTask serializes a task frame payload.
func MarshalTask(t *LancerRunTask) ([]byte, error) {
	return bcs.Marshal(t)
}

// UnmarshalTask parses a task frame payload.
func UnmarshalTask(data []byte) (*LancerRunTask, error) {
	var t LancerRunTask
	if _, err := bcs.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}

// MarshalResult serializes a response frame payload.
func MarshalResult(r RunResult) ([]byte, error) {
	return bcs.Marshal(r)
}

// UnmarshalResult parses a response frame payload.
func UnmarshalResult(data []byte) (RunResult, error) {
	var r RunResult
	if _, err := bcs.Unmarshal(data, &r); err != nil {
		return RunResult{}, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}
