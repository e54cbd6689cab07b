// Package keys holds the enclave's key material. Both keys are generated
// once at process start and never leave the enclave; only the public halves
// are emitted through the identity frame and the attestation document.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// Material is the enclave's per-process key set.
type Material struct {
	decryptionKey *rsa.PrivateKey
	signingKey    ed25519.PrivateKey
}

// Generate creates fresh key material: an RSA-2048 key for unwrapping
// submission keys and an ed25519 key bound into the attestation document.
func Generate() (*Material, error) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate decryption key: %w", err)
	}
	_, signingKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &Material{decryptionKey: rsaKey, signingKey: signingKey}, nil
}

// DecryptionPublicKey returns the SPKI DER encoding of the RSA public key.
func (m *Material) DecryptionPublicKey() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&m.decryptionKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode decryption public key: %w", err)
	}
	return der, nil
}

// SigningPublicKey returns the raw ed25519 public key embedded in the
// attestation document.
func (m *Material) SigningPublicKey() ed25519.PublicKey {
	return m.signingKey.Public().(ed25519.PublicKey)
}

// UnwrapKey decrypts an RSA-OAEP(SHA-256) wrapped symmetric key.
func (m *Material) UnwrapKey(encryptedKey []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, m.decryptionKey, encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap submission key: %w", err)
	}
	return key, nil
}

// Sign signs data with the attested signing key.
func (m *Material) Sign(data []byte) []byte {
	return ed25519.Sign(m.signingKey, data)
}
