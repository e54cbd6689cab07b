package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/config"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
)

var (
	findingOrigin = chain.MustObjectID("0xf0")
	findingID     = chain.MustObjectID("0x22")
	innerUID      = chain.MustObjectID("0x77")
)

// fakeChain serves the two reads the verification protocol performs.
type fakeChain struct {
	committedHash []byte
}

func (f *fakeChain) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string            `json:"method"`
			ID     int               `json:"id"`
			Params []json.RawMessage `json:"params"`
		}
		json.Unmarshal(body, &req)

		var result interface{}
		switch req.Method {
		case "sui_getObject":
			result = map[string]interface{}{
				"data": map[string]interface{}{
					"objectId": findingID.String(),
					"version":  "3",
					"digest":   "11111111111111111111111111111111",
					"content": map[string]interface{}{
						"dataType": "moveObject",
						"type":     fmt.Sprintf("%s::finding::Finding", findingOrigin),
						"fields": map[string]interface{}{
							"inner": map[string]interface{}{
								"fields": map[string]interface{}{
									"id":      map[string]interface{}{"id": innerUID.String()},
									"version": "4",
								},
							},
						},
					},
				},
			}
		case "suix_getDynamicFieldObject":
			hashJSON := make([]int, len(f.committedHash))
			for i, b := range f.committedHash {
				hashJSON[i] = int(b)
			}
			result = map[string]interface{}{
				"data": map[string]interface{}{
					"objectId": "0x78",
					"version":  "1",
					"digest":   "11111111111111111111111111111111",
					"content": map[string]interface{}{
						"dataType": "moveObject",
						"type":     "0x2::dynamic_field::Field",
						"fields": map[string]interface{}{
							"value": map[string]interface{}{
								"fields": map[string]interface{}{
									"submission_hash": hashJSON,
								},
							},
						},
					},
				},
			}
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	})
}

type staticIdentity struct {
	identity *transport.Identity
}

func (s *staticIdentity) CurrentIdentity() (*transport.Identity, bool) {
	if s.identity == nil {
		return nil, false
	}
	return s.identity, true
}

func newTestBroker(t *testing.T, fc *fakeChain, identity IdentityHolder) *Broker {
	t.Helper()
	rpc := httptest.NewServer(fc.handler())
	t.Cleanup(rpc.Close)

	client, err := chain.NewClient(chain.Config{RPCURL: rpc.URL})
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Server{
		LancerID:        chain.MustObjectID("0xaf"),
		FindingOriginID: findingOrigin,
		VsockPort:       9300,
		RPCURL:          rpc.URL,
		ListenAddr:      "127.0.0.1:0",
	}
	return New(cfg, client, identity, logger.NewDefault("test"))
}

func sampleTask() *transport.LancerRunTask {
	return &transport.LancerRunTask{
		IV:            bytes.Repeat([]byte{1}, 12),
		EncryptedFile: []byte("ciphertext"),
		EncryptedKey:  []byte("wrapped"),
		BugBountyID:   chain.MustObjectID("0x11"),
		FindingID:     findingID,
		EscrowID:      chain.MustObjectID("0x33"),
	}
}

func TestAccept_MatchingCommitment(t *testing.T) {
	task := sampleTask()
	b := newTestBroker(t, &fakeChain{committedHash: task.SubmissionHash()}, &staticIdentity{})

	if err := b.Accept(context.Background(), task); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	select {
	case queued := <-b.Tasks():
		if queued.FindingID != task.FindingID {
			t.Error("queued task mismatch")
		}
	default:
		t.Error("task must be enqueued")
	}
}

func TestAccept_CommitmentMismatch(t *testing.T) {
	task := sampleTask()
	committed := task.SubmissionHash()
	committed[0] ^= 0xff
	b := newTestBroker(t, &fakeChain{committedHash: committed}, &staticIdentity{})

	err := b.Accept(context.Background(), task)
	if err == nil || !strings.Contains(err.Error(), "finding_hash does not match") {
		t.Fatalf("expected hash mismatch error, got %v", err)
	}
	select {
	case <-b.Tasks():
		t.Error("nothing must be enqueued on mismatch")
	default:
	}
}

func TestPublicKeyEndpoint(t *testing.T) {
	task := sampleTask()
	holder := &staticIdentity{}
	b := newTestBroker(t, &fakeChain{committedHash: task.SubmissionHash()}, holder)
	server := httptest.NewServer(b.Router())
	defer server.Close()

	// No enclave connected: service unavailable.
	resp, err := http.Get(server.URL + "/public_key")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}

	holder.identity = &transport.Identity{DecryptionPublicKey: []byte("spki-der")}
	resp, err = http.Get(server.URL + "/public_key")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(body) != "c3BraS1kZXI=" {
		t.Errorf("expected base64 SPKI, got %q", body)
	}
}

func postMultipart(t *testing.T, url string, task *transport.LancerRunTask, omit string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string][]byte{
		"iv":            task.IV,
		"encryptedFile": task.EncryptedFile,
		"encryptedKey":  task.EncryptedKey,
		"bugBountyId":   []byte(task.BugBountyID.String()),
		"findingId":     []byte(task.FindingID.String()),
		"escrowId":      []byte(task.EscrowID.String()),
	}
	for name, data := range fields {
		if name == omit {
			continue
		}
		fw, _ := mw.CreateFormField(name)
		fw.Write(data)
	}
	mw.Close()

	resp, err := http.Post(url+"/new_finding", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestNewFindingEndpoint(t *testing.T) {
	task := sampleTask()
	b := newTestBroker(t, &fakeChain{committedHash: task.SubmissionHash()}, &staticIdentity{})
	server := httptest.NewServer(b.Router())
	defer server.Close()

	resp := postMultipart(t, server.URL, task, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	select {
	case queued := <-b.Tasks():
		if !bytes.Equal(queued.SubmissionHash(), task.SubmissionHash()) {
			t.Error("queued submission hash mismatch")
		}
	default:
		t.Error("task must be enqueued")
	}
}

func TestNewFindingEndpoint_MissingField(t *testing.T) {
	task := sampleTask()
	b := newTestBroker(t, &fakeChain{committedHash: task.SubmissionHash()}, &staticIdentity{})
	server := httptest.NewServer(b.Router())
	defer server.Close()

	resp := postMultipart(t, server.URL, task, "encryptedKey")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var parsed struct {
		Error string `json:"error"`
	}
	json.NewDecoder(resp.Body).Decode(&parsed)
	if !strings.Contains(parsed.Error, "encryptedKey not found") {
		t.Errorf("unexpected error %q", parsed.Error)
	}
}
