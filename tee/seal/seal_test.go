package seal

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/config"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

func TestShamirRoundTrip(t *testing.T) {
	secret := []byte("a thirty-two byte symmetric key!")
	shares, err := splitSecret(secret, 5, 3)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	got, err := combineShares(shares[1:4])
	if err != nil {
		t.Fatalf("combine failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("reconstruction mismatch: %x", got)
	}
}

func TestShamirThreshold(t *testing.T) {
	secret := []byte{0xde, 0xad}
	shares, err := splitSecret(secret, 3, 2)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	// Any two shares suffice; one share alone interpolates garbage with
	// overwhelming probability for a random polynomial, but must not panic.
	if _, err := combineShares(shares[:1]); err != nil {
		t.Fatalf("single-share combine must not error: %v", err)
	}
	got, err := combineShares([][]byte{shares[0], shares[2]})
	if err != nil {
		t.Fatalf("combine failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("reconstruction mismatch: %x", got)
	}
}

// committee builds an n-server test committee and the matching config.
func committee(t *testing.T, n int, threshold uint8) (config.SealConfig, []*fr.Element) {
	t.Helper()
	cfg := config.SealConfig{Threshold: threshold}
	masters := make([]*fr.Element, n)
	for i := 0; i < n; i++ {
		master, pk, err := GenerateMasterKey()
		if err != nil {
			t.Fatalf("generate master key: %v", err)
		}
		masters[i] = master
		raw := pk.point.Bytes()
		cfg.PublicKeys = append(cfg.PublicKeys, hex.EncodeToString(raw[:]))
		cfg.KeyServers = append(cfg.KeyServers, chain.MustObjectID("0x100"))
	}
	return cfg, masters
}

func TestSealOpenRoundTrip(t *testing.T) {
	pkg := chain.MustObjectID("0xaf")
	cfg, masters := committee(t, 3, 2)

	sealer, err := NewSealer(pkg, cfg)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	finding := chain.MustObjectID("0x22")
	identity := ReportIdentity(finding, TagPublic)
	aad := finding.Bytes()
	plaintext := []byte("public report tar bytes")

	obj, err := sealer.Seal(identity, plaintext, aad)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if len(obj.Shares) != 3 || obj.Threshold != 2 {
		t.Fatalf("unexpected committee shape: %d shares threshold %d", len(obj.Shares), obj.Threshold)
	}

	fullID := append(pkg.Bytes(), identity...)
	identityKeys := map[int]*IdentityKey{}
	for _, idx := range []int{0, 2} {
		key, err := ExtractKey(masters[idx], fullID)
		if err != nil {
			t.Fatalf("extract key: %v", err)
		}
		identityKeys[idx] = key
	}

	got, err := Open(obj, identityKeys, aad)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestSealOpen_WrongAAD(t *testing.T) {
	pkg := chain.MustObjectID("0xaf")
	cfg, masters := committee(t, 2, 1)
	sealer, err := NewSealer(pkg, cfg)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	identity := ReportIdentity(chain.MustObjectID("0x22"), TagPrivate)
	obj, err := sealer.Seal(identity, []byte("secret"), []byte("right"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	fullID := append(pkg.Bytes(), identity...)
	key, err := ExtractKey(masters[0], fullID)
	if err != nil {
		t.Fatalf("extract key: %v", err)
	}
	if _, err := Open(obj, map[int]*IdentityKey{0: key}, []byte("wrong")); err == nil {
		t.Error("expected authentication failure with wrong aad")
	}
}

func TestReportIdentity_DomainSeparation(t *testing.T) {
	finding := chain.MustObjectID("0x22")
	public := ReportIdentity(finding, TagPublic)
	private := ReportIdentity(finding, TagPrivate)
	errID := ReportIdentity(finding, TagError)

	if !bytes.Equal(public[:len(public)-1], private[:len(private)-1]) ||
		!bytes.Equal(public[:len(public)-1], errID[:len(errID)-1]) {
		t.Error("identities must share the finding prefix")
	}
	if public[len(public)-1] != 0 || private[len(private)-1] != 1 || errID[len(errID)-1] != 2 {
		t.Error("identities must differ solely in the trailing tag byte")
	}
}

func TestSealedObjectMarshalRoundTrip(t *testing.T) {
	pkg := chain.MustObjectID("0xaf")
	cfg, _ := committee(t, 2, 1)
	sealer, err := NewSealer(pkg, cfg)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	obj, err := sealer.Seal(ReportIdentity(chain.MustObjectID("0x22"), TagError), []byte("boom"), nil)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	data, err := obj.Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	decoded, err := UnmarshalSealedObject(data)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Threshold != obj.Threshold || !bytes.Equal(decoded.Ciphertext, obj.Ciphertext) {
		t.Error("round trip mismatch")
	}
	// The content address must be a deterministic function of these bytes.
	data2, err := decoded.Marshal()
	if err != nil {
		t.Fatalf("re-marshal failed: %v", err)
	}
	if !bytes.Equal(data, data2) {
		t.Error("serialization must be canonical")
	}
}
