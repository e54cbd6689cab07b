// Package wallet holds the ephemeral keypairs a scenario creates. Keys
// live only for the scenario run unless explicitly retained.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
)

// TempWallet is a concurrency-safe keyring for scenario accounts.
type TempWallet struct {
	mu       sync.RWMutex
	keys     map[chain.Address]ed25519.PrivateKey
	retained bool
}

// New creates an empty wallet.
func New() *TempWallet {
	return &TempWallet{keys: make(map[chain.Address]ed25519.PrivateKey)}
}

// GenerateKeypair creates a fresh account key and returns its address.
func (w *TempWallet) GenerateKeypair() (chain.Address, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return chain.Address{}, fmt.Errorf("generate keypair: %w", err)
	}
	addr := chain.AddressFromPublicKey(pub)
	w.mu.Lock()
	w.keys[addr] = priv
	w.mu.Unlock()
	return addr, nil
}

// Keypair returns the private key of an address, if held.
func (w *TempWallet) Keypair(addr chain.Address) (ed25519.PrivateKey, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	key, ok := w.keys[addr]
	return key, ok
}

// Keys lists the held addresses in stable order.
func (w *TempWallet) Keys() []chain.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]chain.Address, 0, len(w.keys))
	for addr := range w.keys {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// RetainKeys marks the wallet to survive Clear calls.
func (w *TempWallet) RetainKeys() {
	w.mu.Lock()
	w.retained = true
	w.mu.Unlock()
}

// WithKeypairs runs f with the private keys of the given addresses, failing
// if any is unknown. The keys must not escape f.
func (w *TempWallet) WithKeypairs(addrs []chain.Address, f func([]ed25519.PrivateKey) error) error {
	w.mu.RLock()
	keys := make([]ed25519.PrivateKey, 0, len(addrs))
	for _, addr := range addrs {
		key, ok := w.keys[addr]
		if !ok {
			w.mu.RUnlock()
			return fmt.Errorf("key not found for %s", addr)
		}
		keys = append(keys, key)
	}
	w.mu.RUnlock()
	return f(keys)
}

// Clear drops all keys unless the wallet was retained.
func (w *TempWallet) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retained {
		return
	}
	w.keys = make(map[chain.Address]ed25519.PrivateKey)
}
