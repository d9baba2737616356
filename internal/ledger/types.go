package ledger

import (
	"context"
	"errors"
	"time"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	KindAccrual       EntryKind = "ACCRUAL"
	KindSettlement    EntryKind = "SETTLEMENT"
	KindManualPayment EntryKind = "MANUAL_PAYMENT"
	KindAdjustment    EntryKind = "ADJUSTMENT"
)

// DebtAccount holds the running debt position for one organizer/seller.
// Created on first accrual, never deleted, mutated only through the Engine.
type DebtAccount struct {
	OwnerID            string    `json:"owner_id"`
	TotalAccruedCents  int64     `json:"total_accrued_cents"`
	TotalSettledCents  int64     `json:"total_settled_cents"`
	RemainingOwedCents int64     `json:"remaining_owed_cents"`
	LastAccrualAt      time.Time `json:"last_accrual_at,omitempty"`
	LastSettlementAt   time.Time `json:"last_settlement_at,omitempty"`

	// Revision is the optimistic concurrency stamp checked by conditional
	// writes; every successful mutation increments it by exactly one.
	Revision int64 `json:"revision"`
}

// LedgerEntry is one immutable financial event. Accruals carry positive
// amounts, settlements and manual payments negative ones, adjustments either
// sign; the signed sum over an owner's entries always equals the account's
// RemainingOwedCents.
type LedgerEntry struct {
	ID                    string    `json:"id"`
	OwnerID               string    `json:"owner_id"`
	Kind                  EntryKind `json:"kind"`
	AmountCents           int64     `json:"amount_cents"`
	ResultingBalanceCents int64     `json:"resulting_balance_cents"`
	OrderRef              string    `json:"order_ref,omitempty"`
	Description           string    `json:"description,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// Store is the narrow datastore contract the engine requires: read-by-key,
// insert-append, and revision-conditioned update. Implementations live in
// internal/store.
type Store interface {
	GetAccount(ctx context.Context, ownerID string) (DebtAccount, error)
	CreateAccount(ctx context.Context, acct DebtAccount) error
	// UpdateAccount persists acct only if the stored revision still equals
	// expectedRevision, returning ErrRevisionMismatch otherwise.
	UpdateAccount(ctx context.Context, acct DebtAccount, expectedRevision int64) error

	AppendEntry(ctx context.Context, entry LedgerEntry) (string, error)
	ListEntries(ctx context.Context, ownerID string) ([]LedgerEntry, error)
}

var (
	// ErrAccountNotFound is returned for owners with no debt account.
	ErrAccountNotFound = errors.New("ledger: debt account not found")

	// ErrAccountExists is returned when creating an account that already exists.
	ErrAccountExists = errors.New("ledger: debt account already exists")

	// ErrRevisionMismatch is returned when a conditional write loses the race.
	ErrRevisionMismatch = errors.New("ledger: account revision mismatch")
)
