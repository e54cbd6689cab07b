package runner

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/config"
	"github.com/dominion-zone/dominion-lancer/internal/storage"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
	"github.com/dominion-zone/dominion-lancer/tee/keys"
	"github.com/dominion-zone/dominion-lancer/tee/seal"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func tarNames(t *testing.T, data []byte) map[string]bool {
	t.Helper()
	names := map[string]bool{}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names
		}
		if err != nil {
			t.Fatalf("read archive: %v", err)
		}
		names[hdr.Name] = true
	}
}

func TestCollectOutput_Error(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "output/error.txt"), []byte("boom"))

	out, err := collectOutput(dir)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if string(out.ErrorMessage) != "boom" {
		t.Errorf("unexpected error message %q", out.ErrorMessage)
	}
	if out.PublicReport != nil || out.PrivateReport != nil {
		t.Error("error output must carry no other artifacts")
	}
}

func TestCollectOutput_PublicPrivate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input/glu/scenario.glu"), []byte("script"))
	writeFile(t, filepath.Join(dir, "output/public_summary.json"), []byte(`{"ok":true}`))
	writeFile(t, filepath.Join(dir, "output/logs.json"), []byte(`[]`))

	out, err := collectOutput(dir)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if out.PublicReport == nil || out.PrivateReport == nil || out.ErrorMessage != nil {
		t.Fatal("expected public and private artifacts")
	}

	public := tarNames(t, out.PublicReport)
	if !public["output/public_summary.json"] {
		t.Error("public tar must carry the summary")
	}
	if public["input/glu/scenario.glu"] {
		t.Error("public tar must not leak the input tree")
	}
	if public["output/logs.json"] {
		t.Error("public tar must not leak the logs")
	}

	private := tarNames(t, out.PrivateReport)
	if !private["input/glu/scenario.glu"] || !private["output/logs.json"] {
		t.Error("private tar must carry the input tree and logs")
	}
}

func TestCollectOutput_PublicOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input/glu/scenario.glu"), []byte("script"))
	writeFile(t, filepath.Join(dir, "somefile.txt"), []byte("data"))

	out, err := collectOutput(dir)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if out.PublicReport == nil || out.PrivateReport != nil || out.ErrorMessage != nil {
		t.Fatal("expected a single public artifact")
	}
	public := tarNames(t, out.PublicReport)
	if !public["somefile.txt"] || !public["input/glu/scenario.glu"] {
		t.Error("public tar must carry the whole working directory")
	}
}

func TestUnpackTar_RejectsEscape(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	tw.WriteHeader(&tar.Header{Name: "../evil.txt", Mode: 0o644, Size: 4})
	tw.Write([]byte("evil"))
	tw.Close()

	if err := unpackTar(buf.Bytes(), t.TempDir()); err == nil {
		t.Error("expected rejection of escaping entry")
	}
}

// buildSubmission encrypts a tar archive the way a researcher's client does.
func buildSubmission(t *testing.T, material *keys.Material, archive []byte) *transport.LancerRunTask {
	t.Helper()
	der, err := material.DecryptionPublicKey()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		t.Fatal(err)
	}
	pub := parsed.(*rsa.PublicKey)

	aesKey := make([]byte, 32)
	rand.Read(aesKey)
	block, _ := aes.NewCipher(aesKey)
	gcm, _ := cipher.NewGCM(block)
	iv := bytes.Repeat([]byte{1}, gcm.NonceSize())
	ciphertext := gcm.Seal(nil, iv, archive, nil)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		t.Fatal(err)
	}

	return &transport.LancerRunTask{
		IV:            iv,
		EncryptedFile: ciphertext,
		EncryptedKey:  wrapped,
		BugBountyID:   chain.MustObjectID("0x11"),
		FindingID:     chain.MustObjectID("0x22"),
		EscrowID:      chain.MustObjectID("0x33"),
	}
}

func testRunner(t *testing.T, material *keys.Material) *Runner {
	t.Helper()
	_, pk, err := seal.GenerateMasterKey()
	if err != nil {
		t.Fatal(err)
	}
	raw := pk.Bytes()
	sealer, err := seal.NewSealer(chain.MustObjectID("0xaf"), config.SealConfig{
		KeyServers: []chain.ObjectID{chain.MustObjectID("0x100")},
		PublicKeys: []string{hex.EncodeToString(raw)},
		Threshold:  1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(material, sealer, storage.NewEncoder(1000), "./lancer-runner", t.TempDir(),
		logger.NewDefault("test"))
}

func TestDecrypt_RoundTrip(t *testing.T) {
	material, err := keys.Generate()
	if err != nil {
		t.Fatal(err)
	}
	r := testRunner(t, material)

	archive := []byte("not really a tar, decrypt only")
	task := buildSubmission(t, material, archive)

	got, err := r.decrypt(task)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, archive) {
		t.Error("decrypt must return the original archive")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	material, err := keys.Generate()
	if err != nil {
		t.Fatal(err)
	}
	r := testRunner(t, material)

	task := buildSubmission(t, material, []byte("payload"))
	task.EncryptedFile[0] ^= 0xff
	if _, err := r.decrypt(task); err == nil {
		t.Error("tampered ciphertext must fail authentication")
	}
}

func TestPrepare_RequiresScenario(t *testing.T) {
	material, _ := keys.Generate()
	r := testRunner(t, material)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	tw.WriteHeader(&tar.Header{Name: "input/", Typeflag: tar.TypeDir, Mode: 0o755})
	tw.Close()

	if _, err := r.prepare(buf.Bytes()); err == nil {
		t.Error("expected rejection without input/glu/scenario.glu")
	}
}

func TestPrepare_RemovesSubmittedOutput(t *testing.T) {
	material, _ := keys.Generate()
	r := testRunner(t, material)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, dir := range []string{"input/", "input/glu/", "output/"} {
		tw.WriteHeader(&tar.Header{Name: dir, Typeflag: tar.TypeDir, Mode: 0o755})
	}
	script := []byte("// scenario")
	tw.WriteHeader(&tar.Header{Name: "input/glu/scenario.glu", Mode: 0o644, Size: int64(len(script))})
	tw.Write(script)
	smuggled := []byte("fake result")
	tw.WriteHeader(&tar.Header{Name: "output/public_summary.json", Mode: 0o644, Size: int64(len(smuggled))})
	tw.Write(smuggled)
	tw.Close()

	dir, err := r.prepare(buf.Bytes())
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer os.RemoveAll(dir)

	if _, err := os.Stat(filepath.Join(dir, "output")); !os.IsNotExist(err) {
		t.Error("pre-existing output tree must be removed")
	}
	if _, err := os.Lstat(filepath.Join(dir, "input/glu/lancer")); err != nil {
		t.Error("framework link must be created")
	}
}

func TestRespond_SignatureIsSubmissionHash(t *testing.T) {
	material, _ := keys.Generate()
	r := testRunner(t, material)
	task := buildSubmission(t, material, []byte("archive"))

	resp, err := r.respond(task, &Output{ErrorMessage: []byte("boom")})
	if err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if !bytes.Equal(resp.Signature, task.SubmissionHash()) {
		t.Error("signature must bind the submission hash")
	}
	if resp.ErrorMessage == nil || resp.PublicReport != nil || resp.PrivateReport != nil {
		t.Error("output trichotomy must be preserved")
	}
	if resp.ErrorMessage.BlobID == [32]byte{} {
		t.Error("blob id must be computed")
	}
}

func TestExecute_CancelKillsChild(t *testing.T) {
	material, _ := keys.Generate()
	r := testRunner(t, material)
	// The child is the command plus the working directory; pointing the
	// runner at sleep turns the directory argument into its duration.
	r.runnerPath = "sleep"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	start := time.Now()
	go func() {
		_, err := r.execute(ctx, "30")
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrKilled) {
			t.Fatalf("expected ErrKilled, got %v", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("cancellation must kill the child promptly")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled child must exit within bounded time")
	}
}
