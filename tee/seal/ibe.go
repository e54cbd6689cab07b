package seal

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/crypto/hkdf"
)

// Boneh-Franklin identity-based encryption over BLS12-381. Key servers hold
// master secrets s with public keys s·G2; an identity's decryption key is
// s·H1(id). A ciphertext share carries U = r·G2 and the share masked with a
// key derived from e(H1(id), pk)^r.

// hashToG1DST domain-separates identity hashing.
const hashToG1DST = "LANCER-SEAL-BF-BLS12381-G1"

// IBEPublicKey is one key server's master public key.
type IBEPublicKey struct {
	point bls12381.G2Affine
}

// Bytes returns the compressed encoding of the public key.
func (pk *IBEPublicKey) Bytes() []byte {
	raw := pk.point.Bytes()
	return raw[:]
}

// ParsePublicKey decodes a compressed G2 point.
func ParsePublicKey(raw []byte) (*IBEPublicKey, error) {
	var pk IBEPublicKey
	if _, err := pk.point.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("decode ibe public key: %w", err)
	}
	return &pk, nil
}

// EncryptedShare is one IBE-sealed secret share.
type EncryptedShare struct {
	// U is the compressed ephemeral point r·G2.
	U []byte
	// V is the masked share.
	V []byte
}

// encryptShare seals share to the identity under one server's public key.
func encryptShare(pk *IBEPublicKey, identity, share []byte, index int) (*EncryptedShare, error) {
	qid, err := bls12381.HashToG1(identity, []byte(hashToG1DST))
	if err != nil {
		return nil, fmt.Errorf("hash identity: %w", err)
	}

	var r fr.Element
	if _, err := r.SetRandom(); err != nil {
		return nil, fmt.Errorf("sample ephemeral scalar: %w", err)
	}
	var rBig big.Int
	r.BigInt(&rBig)

	_, _, _, g2 := bls12381.Generators()
	var u bls12381.G2Affine
	u.ScalarMultiplication(&g2, &rBig)

	paired, err := bls12381.Pair([]bls12381.G1Affine{qid}, []bls12381.G2Affine{pk.point})
	if err != nil {
		return nil, fmt.Errorf("pairing: %w", err)
	}
	var gid bls12381.GT
	gid.Exp(paired, &rBig)

	mask, err := deriveMask(&gid, identity, index, len(share))
	if err != nil {
		return nil, err
	}

	v := make([]byte, len(share))
	for i := range share {
		v[i] = share[i] ^ mask[i]
	}

	uBytes := u.Bytes()
	return &EncryptedShare{U: uBytes[:], V: v}, nil
}

// deriveMask expands the pairing output into a share-length mask, bound to
// the identity and the share index.
func deriveMask(gid *bls12381.GT, identity []byte, index, length int) ([]byte, error) {
	seed := gid.Bytes()
	info := append(append([]byte{}, identity...), byte(index))
	kdf := hkdf.New(sha256.New, seed[:], nil, info)
	mask := make([]byte, length)
	if _, err := io.ReadFull(kdf, mask); err != nil {
		return nil, fmt.Errorf("derive mask: %w", err)
	}
	return mask, nil
}

// GenerateMasterKey creates a server master key pair. Used by tests; real
// key servers never reveal their scalar.
func GenerateMasterKey() (*fr.Element, *IBEPublicKey, error) {
	var s fr.Element
	if _, err := s.SetRandom(); err != nil {
		return nil, nil, err
	}
	var sBig big.Int
	s.BigInt(&sBig)
	_, _, _, g2 := bls12381.Generators()
	var pk IBEPublicKey
	pk.point.ScalarMultiplication(&g2, &sBig)
	return &s, &pk, nil
}

// IdentityKey is an extracted per-identity decryption key.
type IdentityKey struct {
	sk bls12381.G1Affine
}

// ExtractKey derives the identity's decryption key under a master scalar.
// Test-side counterpart of the key servers' extraction.
func ExtractKey(master *fr.Element, identity []byte) (*IdentityKey, error) {
	qid, err := bls12381.HashToG1(identity, []byte(hashToG1DST))
	if err != nil {
		return nil, err
	}
	var sBig big.Int
	master.BigInt(&sBig)
	var key IdentityKey
	key.sk.ScalarMultiplication(&qid, &sBig)
	return &key, nil
}

// decryptShare reverses encryptShare given the identity's extracted key.
func decryptShare(key *IdentityKey, share *EncryptedShare, identity []byte, index int) ([]byte, error) {
	var u bls12381.G2Affine
	if _, err := u.SetBytes(share.U); err != nil {
		return nil, fmt.Errorf("decode ephemeral point: %w", err)
	}
	gid, err := bls12381.Pair([]bls12381.G1Affine{key.sk}, []bls12381.G2Affine{u})
	if err != nil {
		return nil, fmt.Errorf("pairing: %w", err)
	}
	mask, err := deriveMask(&gid, identity, index, len(share.V))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(share.V))
	for i := range out {
		out[i] = share.V[i] ^ mask[i]
	}
	return out, nil
}

// randomKey samples a fresh 32-byte symmetric key.
func randomKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("sample key: %w", err)
	}
	return key, nil
}
