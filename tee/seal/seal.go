// Package seal implements the threshold identity-based envelope protecting
// scenario reports. A report is encrypted once under AES-256-GCM; the key
// is split t-of-n and each share is IBE-sealed to one key server, bound to
// the report's identity string.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fardream/go-bcs/bcs"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/config"
)

// Report identity tags. For one finding, the three artifacts differ solely
// in this trailing byte.
const (
	TagPublic  byte = 0
	TagPrivate byte = 1
	TagError   byte = 2
)

// ReportIdentity builds the IBE identity of one report artifact:
// finding_id || tag.
func ReportIdentity(findingID chain.ObjectID, tag byte) []byte {
	return append(findingID.Bytes(), tag)
}

// SealedObject is the serialized form of one sealed report.
type SealedObject struct {
	Version   uint8
	PackageID chain.ObjectID
	// Identity is the full IBE identity the shares are bound to.
	Identity []byte
	// Services lists the key servers holding shares, index-aligned with
	// Shares.
	Services  []chain.ObjectID
	Threshold uint8
	Shares    []EncryptedShare
	// Nonce and Ciphertext hold the AES-256-GCM encryption of the report
	// with the finding id as additional data.
	Nonce      []byte
	Ciphertext []byte
}

// Marshal returns the canonical bytes; the blob's content address is
// computed over exactly these.
func (o *SealedObject) Marshal() ([]byte, error) {
	return bcs.Marshal(o)
}

// UnmarshalSealedObject parses canonical bytes back.
func UnmarshalSealedObject(data []byte) (*SealedObject, error) {
	var o SealedObject
	if _, err := bcs.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode sealed object: %w", err)
	}
	return &o, nil
}

// Sealer seals reports for a configured key-server committee.
type Sealer struct {
	packageID chain.ObjectID
	servers   []chain.ObjectID
	keys      []*IBEPublicKey
	threshold uint8
}

// NewSealer parses the committee configuration.
func NewSealer(packageID chain.ObjectID, cfg config.SealConfig) (*Sealer, error) {
	keys := make([]*IBEPublicKey, len(cfg.PublicKeys))
	for i, encoded := range cfg.PublicKeys {
		raw, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
		if err != nil {
			return nil, fmt.Errorf("seal public key %d: %w", i, err)
		}
		keys[i], err = ParsePublicKey(raw)
		if err != nil {
			return nil, fmt.Errorf("seal public key %d: %w", i, err)
		}
	}
	return &Sealer{
		packageID: packageID,
		servers:   cfg.KeyServers,
		keys:      keys,
		threshold: cfg.Threshold,
	}, nil
}

// Seal encrypts data bound to identity with aad as additional data.
func (s *Sealer) Seal(identity, data, aad []byte) (*SealedObject, error) {
	key, err := randomKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sample nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, data, aad)

	// The IBE identity is namespaced by the package the key servers are
	// governed by.
	fullID := append(s.packageID.Bytes(), identity...)

	shares, err := splitSecret(key, len(s.servers), int(s.threshold))
	if err != nil {
		return nil, err
	}
	sealed := make([]EncryptedShare, len(shares))
	for i, share := range shares {
		enc, err := encryptShare(s.keys[i], fullID, share, i)
		if err != nil {
			return nil, fmt.Errorf("seal share %d: %w", i, err)
		}
		sealed[i] = *enc
	}

	return &SealedObject{
		Version:    0,
		PackageID:  s.packageID,
		Identity:   identity,
		Services:   append([]chain.ObjectID(nil), s.servers...),
		Threshold:  s.threshold,
		Shares:     sealed,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open reverses Seal given threshold-many extracted identity keys, indexed
// by their share position. Test-side counterpart of the decryption service.
func Open(obj *SealedObject, identityKeys map[int]*IdentityKey, aad []byte) ([]byte, error) {
	if len(identityKeys) < int(obj.Threshold) {
		return nil, fmt.Errorf("need %d shares, have %d", obj.Threshold, len(identityKeys))
	}
	fullID := append(obj.PackageID.Bytes(), obj.Identity...)

	var shares [][]byte
	for idx, key := range identityKeys {
		if idx < 0 || idx >= len(obj.Shares) {
			return nil, fmt.Errorf("share index %d out of range", idx)
		}
		share, err := decryptShare(key, &obj.Shares[idx], fullID, idx)
		if err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}

	secret, err := combineShares(shares)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, obj.Nonce, obj.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plaintext, nil
}
