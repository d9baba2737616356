package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/iradwatkins/stepperslife-stores-sub005/internal/inventory"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/ledger"
)

// Compile-time contract assertions.
var (
	_ ledger.Store    = (*Memory)(nil)
	_ inventory.Store = (*Memory)(nil)
)

// Memory is an in-memory implementation of the persistence contracts, used
// for tests and ephemeral environments.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]ledger.DebtAccount
	entries  map[string][]ledger.LedgerEntry
	items    map[string]inventory.Record
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]ledger.DebtAccount),
		entries:  make(map[string][]ledger.LedgerEntry),
		items:    make(map[string]inventory.Record),
	}
}

// GetAccount implements ledger.Store.
func (m *Memory) GetAccount(_ context.Context, ownerID string) (ledger.DebtAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[ownerID]
	if !ok {
		return ledger.DebtAccount{}, ledger.ErrAccountNotFound
	}
	return acct, nil
}

// CreateAccount implements ledger.Store.
func (m *Memory) CreateAccount(_ context.Context, acct ledger.DebtAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[acct.OwnerID]; ok {
		return ledger.ErrAccountExists
	}
	m.accounts[acct.OwnerID] = acct
	return nil
}

// UpdateAccount implements ledger.Store. The write happens only while the
// stored revision still equals expectedRevision.
func (m *Memory) UpdateAccount(_ context.Context, acct ledger.DebtAccount, expectedRevision int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.accounts[acct.OwnerID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	if current.Revision != expectedRevision {
		return ledger.ErrRevisionMismatch
	}
	m.accounts[acct.OwnerID] = acct
	return nil
}

// AppendEntry implements ledger.Store.
func (m *Memory) AppendEntry(_ context.Context, entry ledger.LedgerEntry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.entries[entry.OwnerID] = append(m.entries[entry.OwnerID], entry)
	return entry.ID, nil
}

// ListEntries implements ledger.Store, oldest first.
func (m *Memory) ListEntries(_ context.Context, ownerID string) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.entries[ownerID]
	out := make([]ledger.LedgerEntry, len(src))
	copy(out, src)
	return out, nil
}

// GetItem implements inventory.Store.
func (m *Memory) GetItem(_ context.Context, itemRef string) (inventory.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.items[itemRef]
	if !ok {
		return inventory.Record{}, inventory.ErrItemNotFound
	}
	return rec, nil
}

// UpdateItem implements inventory.Store with the same conditional-write
// discipline as UpdateAccount.
func (m *Memory) UpdateItem(_ context.Context, rec inventory.Record, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[rec.ItemRef]
	if !ok {
		return inventory.ErrItemNotFound
	}
	if current.Version != expectedVersion {
		return inventory.ErrVersionMismatch
	}
	m.items[rec.ItemRef] = rec
	return nil
}

// UpsertItem writes rec unconditionally. Administrative seeding only.
func (m *Memory) UpsertItem(_ context.Context, rec inventory.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[rec.ItemRef] = rec
	return nil
}
