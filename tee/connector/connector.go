// Package connector is the enclave side of the bridge: a perpetual
// connect-and-serve loop that emits the enclave identity and dispatches
// tasks to the runner one at a time.
package connector

import (
	"context"
	"sync"
	"time"

	"github.com/dominion-zone/dominion-lancer/internal/transport"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
	"github.com/dominion-zone/dominion-lancer/tee/runner"
)

// ReconnectDelay paces the reconnect loop after a lost connection.
const ReconnectDelay = time.Second

// Connector drives the enclave end of the bridge.
type Connector struct {
	port     uint32
	useTCP   bool
	identity transport.Identity
	runner   *runner.Runner
	log      *logger.Logger

	// mu guards the slot of the currently executing task. Only the
	// dispatch path writes it; starting a new task cancels the previous
	// occupant.
	mu      sync.RWMutex
	current *slotEntry
}

// slotEntry is one occupancy of the task slot.
type slotEntry struct {
	cancel context.CancelFunc
}

// New creates a connector. The identity is fixed for the process lifetime:
// a fresh one is produced only by restarting the enclave.
func New(port uint32, useTCP bool, identity transport.Identity, r *runner.Runner, log *logger.Logger) *Connector {
	return &Connector{
		port:     port,
		useTCP:   useTCP,
		identity: identity,
		runner:   r,
		log:      log,
	}
}

// Run reconnects forever until the context ends. Any transport error tears
// the connection down and retries after the backoff.
func (c *Connector) Run(ctx context.Context) error {
	for {
		if err := c.serve(ctx); err != nil {
			c.log.WithError(err).Warnf("connection lost, reconnecting")
		} else {
			c.log.Infof("connection ended, reconnecting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ReconnectDelay):
		}
	}
}

// serve holds one connection: identity first, then task/response pairs.
func (c *Connector) serve(ctx context.Context) error {
	conn, err := transport.Dial(c.port, c.useTCP)
	if err != nil {
		return err
	}
	framed := transport.NewFramed(conn)
	defer framed.Close()

	c.log.Infof("connected to host on port %d", c.port)

	identityFrame, err := transport.MarshalIdentity(&c.identity)
	if err != nil {
		return err
	}
	if err := framed.Send(identityFrame); err != nil {
		return err
	}

	for {
		payload, err := framed.Recv()
		if err != nil {
			return err
		}
		task, err := transport.UnmarshalTask(payload)
		if err != nil {
			return err
		}

		result := c.dispatch(ctx, task)

		resultFrame, err := transport.MarshalResult(result)
		if err != nil {
			return err
		}
		if err := framed.Send(resultFrame); err != nil {
			return err
		}
	}
}

// dispatch installs the task in the slot, cancelling any previous occupant,
// and runs it to completion.
func (c *Connector) dispatch(ctx context.Context, task *transport.LancerRunTask) transport.RunResult {
	taskCtx, cancel := context.WithCancel(ctx)
	entry := &slotEntry{cancel: cancel}

	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
	}
	c.current = entry
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		// The slot may already hold a replacement; only clear our own.
		if c.current == entry {
			c.current = nil
		}
		c.mu.Unlock()
		cancel()
	}()

	resp, err := c.runner.Run(taskCtx, task)
	if err != nil {
		c.log.WithError(err).Errorf("task failed")
		return transport.ErrResult(err.Error())
	}
	return transport.OkResult(resp)
}
