// Package testutil provides common testing utilities and fake
// implementations of the external boundary collaborators.
package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

type assetKey struct {
	collection string
	tokenID    string
}

// FakeRegistry is an in-memory asset registry for tests. Ownership and
// approvals can be mutated directly to simulate off-channel drift, and the
// transfer primitive can be forced to fail.
type FakeRegistry struct {
	mu        sync.RWMutex
	owners    map[assetKey]string
	approved  map[assetKey]string
	blanket   map[string]map[string]bool // owner -> operator -> approved
	transfers int

	// FailTransfer, when set, makes Transfer return an error without
	// mutating ownership.
	FailTransfer bool
}

// NewFakeRegistry creates an empty registry.
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		owners:   make(map[assetKey]string),
		approved: make(map[assetKey]string),
		blanket:  make(map[string]map[string]bool),
	}
}

// SetOwner records the current owner of an asset.
func (r *FakeRegistry) SetOwner(collection, tokenID, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[assetKey{collection, tokenID}] = owner
}

// SetApproved records a single-asset approval.
func (r *FakeRegistry) SetApproved(collection, tokenID, operator string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approved[assetKey{collection, tokenID}] = operator
}

// SetApprovedForAll records a blanket approval from owner to operator.
func (r *FakeRegistry) SetApprovedForAll(owner, operator string, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blanket[owner] == nil {
		r.blanket[owner] = make(map[string]bool)
	}
	r.blanket[owner][operator] = approved
}

// Transfers returns the number of successful transfers executed.
func (r *FakeRegistry) Transfers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transfers
}

// OwnerOf implements registry.AssetRegistry.
func (r *FakeRegistry) OwnerOf(_ context.Context, collection, tokenID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[assetKey{collection, tokenID}]
	if !ok {
		return "", fmt.Errorf("unknown asset %s/%s", collection, tokenID)
	}
	return owner, nil
}

// ApprovedFor implements registry.AssetRegistry.
func (r *FakeRegistry) ApprovedFor(_ context.Context, collection, tokenID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.approved[assetKey{collection, tokenID}], nil
}

// IsApprovedForAll implements registry.AssetRegistry.
func (r *FakeRegistry) IsApprovedForAll(_ context.Context, _, owner, operator string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blanket[owner][operator], nil
}

// Transfer implements registry.AssetRegistry. It verifies the sender
// actually owns the asset, then reassigns ownership.
func (r *FakeRegistry) Transfer(_ context.Context, collection, tokenID, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailTransfer {
		return fmt.Errorf("registry transfer refused")
	}
	key := assetKey{collection, tokenID}
	owner, ok := r.owners[key]
	if !ok {
		return fmt.Errorf("unknown asset %s/%s", collection, tokenID)
	}
	if owner != from {
		return fmt.Errorf("asset %s/%s not owned by %s", collection, tokenID, from)
	}
	r.owners[key] = to
	delete(r.approved, key)
	r.transfers++
	return nil
}

// FakeLedger is an in-memory settlement-currency ledger for tests.
type FakeLedger struct {
	mu       sync.RWMutex
	balances map[string]*big.Int

	// RejectRecipients lists addresses whose transfers fail, simulating a
	// seller endpoint that refuses value.
	RejectRecipients map[string]bool
}

// NewFakeLedger creates an empty ledger.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		balances:         make(map[string]*big.Int),
		RejectRecipients: make(map[string]bool),
	}
}

// Balance returns the received total for an address.
func (l *FakeLedger) Balance(addr string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Transfer implements registry.ValueLedger.
func (l *FakeLedger) Transfer(_ context.Context, to string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.RejectRecipients[to] {
		return fmt.Errorf("recipient %s rejected transfer", to)
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount")
	}
	if _, ok := l.balances[to]; !ok {
		l.balances[to] = new(big.Int)
	}
	l.balances[to].Add(l.balances[to], amount)
	return nil
}
