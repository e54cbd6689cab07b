// Package bridge owns the host side of the host/enclave channel: the vsock
// listener, the identity handshake, the enclave's on-chain lifecycle, task
// dispatch, and response finalization. All bridge traffic is strictly
// serialized: at most one task is in flight at any time.
package bridge

import (
	"context"
	"net"
	"sync"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/config"
	"github.com/dominion-zone/dominion-lancer/internal/storage"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
)

// registeredEnclave tracks the on-chain object mirroring the connected
// enclave's identity.
type registeredEnclave struct {
	ID                   chain.ObjectID
	InitialSharedVersion chain.SequenceNumber
}

// Bridge is the host-side worker.
type Bridge struct {
	cfg     *config.Server
	client  *chain.Client
	wallet  *chain.Wallet
	storage *storage.Client
	tasks   <-chan *transport.LancerRunTask
	log     *logger.Logger

	// mu guards the held identity and the registration mirroring it.
	// Only the worker goroutine writes; the broker reads.
	mu         sync.RWMutex
	identity   *transport.Identity
	lastSeen   *transport.Identity
	registered *registeredEnclave

	// backlog holds the one task whose delivery failed; it is always
	// retried first on the next connection.
	backlog *transport.LancerRunTask
}

// New creates the bridge worker.
func New(cfg *config.Server, client *chain.Client, wallet *chain.Wallet, store *storage.Client, tasks <-chan *transport.LancerRunTask, log *logger.Logger) *Bridge {
	return &Bridge{
		cfg:     cfg,
		client:  client,
		wallet:  wallet,
		storage: store,
		tasks:   tasks,
		log:     log,
	}
}

// CurrentIdentity returns the identity of the connected enclave, if any.
// Implements broker.IdentityHolder.
func (b *Bridge) CurrentIdentity() (*transport.Identity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.identity == nil {
		return nil, false
	}
	return b.identity, true
}

func (b *Bridge) setIdentity(id *transport.Identity) {
	b.mu.Lock()
	b.identity = id
	if id != nil {
		b.lastSeen = id
	}
	b.mu.Unlock()
}

// Run accepts enclave connections until the context ends. Each connection
// passes through handshake, then serves tasks until the transport is lost.
func (b *Bridge) Run(ctx context.Context) error {
	listener, err := transport.Listen(b.cfg.VsockPort, b.cfg.UseTCP)
	if err != nil {
		return err
	}
	defer listener.Close()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	b.log.Infof("listening for enclave on port %d", b.cfg.VsockPort)

	for {
		// Idle: no identity is held while no enclave is connected.
		b.setIdentity(nil)

		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.WithError(err).Warnf("accept failed")
			continue
		}

		b.serveConn(ctx, conn)
		reconnects.Inc()
	}
}

// serveConn drives one connection: handshake, then the task loop.
func (b *Bridge) serveConn(ctx context.Context, conn net.Conn) {
	framed := transport.NewFramed(conn)
	defer framed.Close()

	// Handshaking: exactly one identity frame.
	payload, err := framed.Recv()
	if err != nil {
		b.log.WithError(err).Warnf("failed to receive identity, connection lost")
		return
	}
	identity, err := transport.UnmarshalIdentity(payload)
	if err != nil {
		b.log.WithError(err).Warnf("bad identity frame")
		return
	}

	if err := b.installIdentity(ctx, identity); err != nil {
		// Registration failure keeps the bridge in Lost: no identity is
		// held and no task is consumed.
		b.log.WithError(err).Errorf("enclave registration failed")
		return
	}

	b.log.Infof("enclave connected")

	// Serving: dequeue, send, receive, finalize; one task in flight.
	for {
		task := b.nextTask(ctx)
		if task == nil {
			return
		}
		taskLog := b.log.WithField("finding_id", task.FindingID.String())
		taskLog.Infof("sending task")

		frame, err := transport.MarshalTask(task)
		if err != nil {
			taskLog.WithError(err).Errorf("failed to serialize task")
			return
		}
		if err := framed.Send(frame); err != nil {
			b.backlog = task
			taskLog.WithError(err).Warnf("failed to send task, connection lost")
			return
		}

		respPayload, err := framed.Recv()
		if err != nil {
			b.backlog = task
			taskLog.WithError(err).Warnf("failed to receive response, connection lost")
			return
		}
		result, err := transport.UnmarshalResult(respPayload)
		if err != nil {
			b.backlog = task
			taskLog.WithError(err).Warnf("bad response frame, connection lost")
			return
		}

		// Past this point the enclave has consumed the submission:
		// finalization failures are logged, never re-queued.
		switch {
		case result.Ok != nil:
			if err := b.finalize(ctx, task, result.Ok); err != nil {
				finalizeFailures.Inc()
				taskLog.WithError(err).Errorf("failed to finalize response")
			} else {
				taskLog.Infof("task finalized")
			}
		case result.Err != nil:
			taskLog.Errorf("enclave returned error: %s", *result.Err)
		default:
			taskLog.Errorf("response carries neither result nor error")
		}
	}
}

// nextTask returns the backlog task if present, else blocks on the queue.
func (b *Bridge) nextTask(ctx context.Context) *transport.LancerRunTask {
	if t := b.backlog; t != nil {
		b.backlog = nil
		return t
	}
	select {
	case t := <-b.tasks:
		return t
	case <-ctx.Done():
		return nil
	}
}
