package keys

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"testing"
)

func TestDecryptionPublicKey_SPKI(t *testing.T) {
	m, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	der, err := m.DecryptionPublicKey()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		t.Fatalf("SPKI DER must parse back: %v", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("expected an RSA key, got %T", parsed)
	}
	if pub.Size() != 256 {
		t.Errorf("expected a 2048-bit key, got %d bytes", pub.Size())
	}
}

func TestUnwrapKey_RoundTrip(t *testing.T) {
	m, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	der, err := m.DecryptionPublicKey()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	parsed, _ := x509.ParsePKIXPublicKey(der)
	pub := parsed.(*rsa.PublicKey)

	aesKey := bytes.Repeat([]byte{7}, 32)
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	got, err := m.UnwrapKey(wrapped)
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if !bytes.Equal(got, aesKey) {
		t.Error("unwrap must return the original key")
	}
}

func TestUnwrapKey_WrongKey(t *testing.T) {
	m1, _ := Generate()
	m2, _ := Generate()
	der, _ := m1.DecryptionPublicKey()
	parsed, _ := x509.ParsePKIXPublicKey(der)
	pub := parsed.(*rsa.PublicKey)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte("key"), nil)
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	if _, err := m2.UnwrapKey(wrapped); err == nil {
		t.Error("unwrapping with a different key must fail")
	}
}

func TestSigningKeysDiffer(t *testing.T) {
	m1, _ := Generate()
	m2, _ := Generate()
	if bytes.Equal(m1.SigningPublicKey(), m2.SigningPublicKey()) {
		t.Error("fresh material must carry fresh signing keys")
	}
}
