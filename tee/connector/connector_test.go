package connector

import (
	"context"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/config"
	"github.com/dominion-zone/dominion-lancer/internal/storage"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
	"github.com/dominion-zone/dominion-lancer/tee/keys"
	"github.com/dominion-zone/dominion-lancer/tee/runner"
	"github.com/dominion-zone/dominion-lancer/tee/seal"
)

func testConnector(t *testing.T, port uint32) (*Connector, *transport.Identity) {
	t.Helper()
	material, err := keys.Generate()
	if err != nil {
		t.Fatal(err)
	}
	decryptionKey, err := material.DecryptionPublicKey()
	if err != nil {
		t.Fatal(err)
	}
	_, pk, err := seal.GenerateMasterKey()
	if err != nil {
		t.Fatal(err)
	}
	sealer, err := seal.NewSealer(chain.MustObjectID("0xaf"), config.SealConfig{
		KeyServers: []chain.ObjectID{chain.MustObjectID("0x100")},
		PublicKeys: []string{hex.EncodeToString(pk.Bytes())},
		Threshold:  1,
	})
	if err != nil {
		t.Fatal(err)
	}
	r := runner.New(material, sealer, storage.NewEncoder(1000), "./lancer-runner",
		t.TempDir(), logger.NewDefault("test"))

	identity := transport.Identity{
		DecryptionPublicKey: decryptionKey,
		Attestation:         []byte("doc"),
	}
	return New(port, true, identity, r, logger.NewDefault("test")), &identity
}

func TestConnector_IdentityFirstThenErrResponse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	port := uint32(listener.Addr().(*net.TCPAddr).Port)

	c, want := testConnector(t, port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	conn, err := listener.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	framed := transport.NewFramed(conn)

	// First frame must be the identity.
	payload, err := framed.Recv()
	if err != nil {
		t.Fatalf("recv identity: %v", err)
	}
	got, err := transport.UnmarshalIdentity(payload)
	if err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if !got.Equal(*want) {
		t.Error("identity frame mismatch")
	}

	// An undecryptable task must come back as an error result, not tear
	// the loop down.
	task := &transport.LancerRunTask{
		IV:            []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		EncryptedFile: []byte("garbage"),
		EncryptedKey:  []byte("garbage"),
		BugBountyID:   chain.MustObjectID("0x11"),
		FindingID:     chain.MustObjectID("0x22"),
		EscrowID:      chain.MustObjectID("0x33"),
	}
	frame, err := transport.MarshalTask(task)
	if err != nil {
		t.Fatal(err)
	}
	if err := framed.Send(frame); err != nil {
		t.Fatal(err)
	}

	respPayload, err := framed.Recv()
	if err != nil {
		t.Fatalf("recv response: %v", err)
	}
	result, err := transport.UnmarshalResult(respPayload)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Err == nil {
		t.Fatal("expected an error result for an undecryptable submission")
	}
}

func TestConnector_ReconnectsAfterClose(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	port := uint32(listener.Addr().(*net.TCPAddr).Port)

	c, _ := testConnector(t, port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	first, err := listener.Accept()
	if err != nil {
		t.Fatal(err)
	}
	transport.NewFramed(first).Recv() // identity
	first.Close()

	// The connector must dial again after the backoff.
	second := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			second <- conn
		}
	}()
	select {
	case conn := <-second:
		conn.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("connector must reconnect after a lost connection")
	}
}
