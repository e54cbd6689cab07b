package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Signature scheme flag for ed25519 account keys.
const ed25519Flag byte = 0x00

// Transaction-signing intent: scope 0 (transaction data), version 0, app 0.
var transactionIntent = [3]byte{0, 0, 0}

// Wallet signs and executes transactions with one ed25519 account key.
type Wallet struct {
	client  *Client
	priv    ed25519.PrivateKey
	address Address
}

// NewWallet builds a wallet around an ed25519 private key.
func NewWallet(client *Client, priv ed25519.PrivateKey) *Wallet {
	return &Wallet{
		client:  client,
		priv:    priv,
		address: AddressFromPublicKey(priv.Public().(ed25519.PublicKey)),
	}
}

// LoadWallet reads a hex-encoded ed25519 seed from a key file.
func LoadWallet(client *Client, keyFile string) (*Wallet, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read wallet key: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode wallet key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet key: want %d-byte seed, got %d", ed25519.SeedSize, len(seed))
	}
	return NewWallet(client, ed25519.NewKeyFromSeed(seed)), nil
}

// AddressFromPublicKey derives the account address of an ed25519 key:
// blake2b-256 over the scheme flag and the raw public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{ed25519Flag})
	h.Write(pub)
	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// Address returns the wallet's account address.
func (w *Wallet) Address() Address {
	return w.address
}

// Sign produces the serialized account signature over a transaction
// envelope: flag || sig || pubkey over blake2b-256 of the intent message.
func (w *Wallet) Sign(tx TransactionData) (txBytesB64, signatureB64 string, err error) {
	txBytes, err := tx.Marshal()
	if err != nil {
		return "", "", fmt.Errorf("serialize transaction: %w", err)
	}

	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent[:]...)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)

	sig := ed25519.Sign(w.priv, digest[:])
	pub := w.priv.Public().(ed25519.PublicKey)

	serialized := make([]byte, 0, 1+len(sig)+len(pub))
	serialized = append(serialized, ed25519Flag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, pub...)

	return base64.StdEncoding.EncodeToString(txBytes),
		base64.StdEncoding.EncodeToString(serialized), nil
}

// SignAndExecute signs the envelope and submits it, failing on a non-success
// execution status.
func (w *Wallet) SignAndExecute(ctx context.Context, tx TransactionData) (*TransactionBlockResponse, error) {
	txBytes, sig, err := w.Sign(tx)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.ExecuteTransactionBlock(ctx, txBytes, []string{sig})
	if err != nil {
		return nil, fmt.Errorf("execute transaction: %w", err)
	}
	if !resp.Succeeded() {
		status := "missing effects"
		if resp.Effects != nil {
			status = resp.Effects.Status.Error
		}
		return nil, fmt.Errorf("transaction %s failed: %s", resp.Digest, status)
	}
	return resp, nil
}

// GasObject fetches a fresh reference for the wallet's gas coin.
func (w *Wallet) GasObject(ctx context.Context, id ObjectID) (ObjectRef, error) {
	data, err := w.client.GetObject(ctx, id, ObjectDataOptions{})
	if err != nil {
		return ObjectRef{}, err
	}
	return ObjectRef{ID: data.ObjectID, Version: data.Version, Digest: ParseDigest(data.Digest)}, nil
}

// ParseDigest decodes a base58 digest string into its raw bytes.
func ParseDigest(s string) Digest {
	var d Digest
	// Digests arrive base58-encoded from the fullnode; the raw bytes are
	// only needed for BCS re-serialization of object refs.
	decoded := base58Decode(s)
	copy(d[:], decoded)
	return d
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var base58Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i, c := range base58Alphabet {
		idx[c] = int8(i)
	}
	return idx
}()

func base58Decode(s string) []byte {
	out := []byte{0}
	for _, c := range s {
		v := base58Index[c]
		if v < 0 {
			return nil
		}
		carry := int(v)
		for i := len(out) - 1; i >= 0; i-- {
			carry += int(out[i]) * 58
			out[i] = byte(carry & 0xff)
			carry >>= 8
		}
		for carry > 0 {
			out = append([]byte{byte(carry & 0xff)}, out...)
			carry >>= 8
		}
	}
	// Leading '1's encode leading zero bytes.
	var zeros int
	for zeros < len(s) && s[zeros] == '1' {
		zeros++
	}
	for len(out) > 1 && out[0] == 0 {
		out = out[1:]
	}
	prefix := make([]byte, zeros)
	return append(prefix, out...)
}
