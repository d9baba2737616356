package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	paycore "github.com/iradwatkins/stepperslife-stores-sub005"
)

// Engine applies all debt mutations. Concurrent writers for the same owner
// are serialized through a bounded compare-and-swap loop against the stored
// account revision, so no update is ever lost regardless of how many server
// instances process orders at once.
type Engine struct {
	store   Store
	fees    FeeSchedule
	metrics *paycore.MetricsCollector
	logger  paycore.Logger

	maxCASRetries int
	now           func() time.Time
	newID         func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetrics attaches a metrics collector.
func WithMetrics(mc *paycore.MetricsCollector) EngineOption {
	return func(e *Engine) { e.metrics = mc }
}

// WithLogger attaches a structured logger.
func WithLogger(logger paycore.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithCASRetries overrides how many conditional-write conflicts are absorbed
// before giving up with VERSION_CONFLICT.
func WithCASRetries(n int) EngineOption {
	return func(e *Engine) { e.maxCASRetries = n }
}

// NewEngine creates a ledger engine over store with the given fee schedule.
func NewEngine(store Store, fees FeeSchedule, opts ...EngineOption) *Engine {
	e := &Engine{
		store:         store,
		fees:          fees,
		maxCASRetries: 5,
		now:           time.Now,
		newID:         func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AccrualResult reports the outcome of AccrueDebt.
type AccrualResult struct {
	FeeOwedCents    int64 `json:"fee_owed_cents"`
	NewBalanceCents int64 `json:"new_balance_cents"`
}

// AccrueDebt records the platform fee owed for an order paid through an
// out-of-band channel. The owner's account is created on first accrual.
func (e *Engine) AccrueDebt(ctx context.Context, ownerID, orderRef string, subtotalCents int64) (AccrualResult, error) {
	if err := requirePositive("subtotal_cents", subtotalCents); err != nil {
		return AccrualResult{}, err
	}

	fee := e.fees.FeeCents(subtotalCents)

	acct, err := e.mutate(ctx, ownerID, true, func(acct *DebtAccount) (*LedgerEntry, error) {
		acct.TotalAccruedCents += fee
		acct.RemainingOwedCents += fee
		acct.LastAccrualAt = e.now()
		return &LedgerEntry{
			Kind:                  KindAccrual,
			AmountCents:           fee,
			ResultingBalanceCents: acct.RemainingOwedCents,
			OrderRef:              orderRef,
			Description:           fmt.Sprintf("platform fee accrued for order %s", orderRef),
		}, nil
	})
	if err != nil {
		e.metrics.RecordLedgerOperation("accrue", "error")
		return AccrualResult{}, err
	}

	e.metrics.RecordLedgerOperation("accrue", "ok")
	if e.logger != nil {
		e.logger.Info("debt accrued", "ownerID", ownerID, "orderRef", orderRef,
			"feeCents", fee, "remainingCents", acct.RemainingOwedCents)
	}
	return AccrualResult{FeeOwedCents: fee, NewBalanceCents: acct.RemainingOwedCents}, nil
}

// SettlementResult reports the outcome of a settlement-like mutation.
type SettlementResult struct {
	SettledCents   int64 `json:"settled_cents"`
	RemainingCents int64 `json:"remaining_cents"`
}

// Settle applies settlement collected through an in-channel digital payment.
// The balance is clamped at zero: excess beyond the owed amount is absorbed
// silently, the caller is responsible for not over-collecting.
func (e *Engine) Settle(ctx context.Context, ownerID, orderRef string, settlementCents int64) (SettlementResult, error) {
	return e.reduceDebt(ctx, ownerID, orderRef, settlementCents, KindSettlement, "settle", "digital",
		fmt.Sprintf("debt settled via digital sale %s", orderRef))
}

// RecordManualPayment applies an operator-recorded out-of-band payment, with
// the same clamping discipline as Settle.
func (e *Engine) RecordManualPayment(ctx context.Context, ownerID, reference string, amountCents int64, description string) (SettlementResult, error) {
	if description == "" {
		description = fmt.Sprintf("manual payment %s", reference)
	}
	return e.reduceDebt(ctx, ownerID, reference, amountCents, KindManualPayment, "manual_payment", "manual", description)
}

func (e *Engine) reduceDebt(ctx context.Context, ownerID, ref string, amountCents int64, kind EntryKind, op, channel, description string) (SettlementResult, error) {
	if err := requirePositive("amount_cents", amountCents); err != nil {
		return SettlementResult{}, err
	}

	var settled int64
	acct, err := e.mutate(ctx, ownerID, false, func(acct *DebtAccount) (*LedgerEntry, error) {
		settled = amountCents
		if settled > acct.RemainingOwedCents {
			settled = acct.RemainingOwedCents
		}
		if settled == 0 {
			// Nothing owed; no totals change and no entry.
			return nil, nil
		}
		acct.TotalSettledCents += settled
		acct.RemainingOwedCents -= settled
		acct.LastSettlementAt = e.now()
		return &LedgerEntry{
			Kind:                  kind,
			AmountCents:           -settled,
			ResultingBalanceCents: acct.RemainingOwedCents,
			OrderRef:              ref,
			Description:           description,
		}, nil
	})
	if err != nil {
		e.metrics.RecordLedgerOperation(op, "error")
		return SettlementResult{}, err
	}

	e.metrics.RecordLedgerOperation(op, "ok")
	e.metrics.RecordSettlement(channel, settled)
	if e.logger != nil {
		e.logger.Info("debt settled", "ownerID", ownerID, "ref", ref, "kind", string(kind),
			"settledCents", settled, "remainingCents", acct.RemainingOwedCents)
	}
	return SettlementResult{SettledCents: settled, RemainingCents: acct.RemainingOwedCents}, nil
}

// ComputeSettlementDue returns how much debt to recover on top of the normal
// platform fee for an imminent digital payment: min(remaining, normalFee).
// At most one extra normal fee per transaction is recovered, bounding the
// customer-visible fee increase to 2x the normal fee no matter how large the
// outstanding debt is. That cap is a product fairness decision, not an
// accounting requirement.
func (e *Engine) ComputeSettlementDue(ctx context.Context, ownerID string, normalPlatformFeeCents int64) (int64, error) {
	if err := requirePositive("normal_platform_fee_cents", normalPlatformFeeCents); err != nil {
		return 0, err
	}

	acct, err := e.store.GetAccount(ctx, ownerID)
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	due := acct.RemainingOwedCents
	if due > normalPlatformFeeCents {
		due = normalPlatformFeeCents
	}
	return due, nil
}

// AdminAdjustment applies an operator correction of either sign. It refuses
// to conjure a credit balance: negative adjustments require an existing
// account and may not push the balance below zero.
func (e *Engine) AdminAdjustment(ctx context.Context, ownerID string, deltaCents int64, description string) (DebtAccount, error) {
	if deltaCents == 0 {
		return DebtAccount{}, &paycore.Error{
			Type:    paycore.ErrorTypeValidation,
			Message: "delta_cents must be non-zero",
		}
	}

	acct, err := e.mutate(ctx, ownerID, deltaCents > 0, func(acct *DebtAccount) (*LedgerEntry, error) {
		if acct.RemainingOwedCents+deltaCents < 0 {
			return nil, &paycore.Error{
				Type:    paycore.ErrorTypeValidation,
				Message: fmt.Sprintf("adjustment of %d would leave balance negative (current %d)", deltaCents, acct.RemainingOwedCents),
			}
		}
		if deltaCents > 0 {
			acct.TotalAccruedCents += deltaCents
		} else {
			acct.TotalSettledCents += -deltaCents
		}
		acct.RemainingOwedCents += deltaCents
		return &LedgerEntry{
			Kind:                  KindAdjustment,
			AmountCents:           deltaCents,
			ResultingBalanceCents: acct.RemainingOwedCents,
			Description:           description,
		}, nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			err = &paycore.Error{
				Type:    paycore.ErrorTypeValidation,
				Message: "cannot create a credit account via negative adjustment",
				Cause:   err,
			}
		}
		e.metrics.RecordLedgerOperation("adjustment", "error")
		return DebtAccount{}, err
	}

	e.metrics.RecordLedgerOperation("adjustment", "ok")
	if e.logger != nil {
		e.logger.Info("admin adjustment applied", "ownerID", ownerID,
			"deltaCents", deltaCents, "remainingCents", acct.RemainingOwedCents)
	}
	return acct, nil
}

// Account returns the owner's current debt position.
func (e *Engine) Account(ctx context.Context, ownerID string) (DebtAccount, error) {
	return e.store.GetAccount(ctx, ownerID)
}

// Trail returns the owner's append-only audit trail, oldest first.
func (e *Engine) Trail(ctx context.Context, ownerID string) ([]LedgerEntry, error) {
	return e.store.ListEntries(ctx, ownerID)
}

// ReconciliationReport compares the account totals against a fresh sum over
// the owner's ledger entries.
type ReconciliationReport struct {
	OwnerID            string `json:"owner_id"`
	LedgerSumCents     int64  `json:"ledger_sum_cents"`
	RemainingOwedCents int64  `json:"remaining_owed_cents"`
	Balanced           bool   `json:"balanced"`
}

// Reconcile recomputes the owner's balance from the trail.
func (e *Engine) Reconcile(ctx context.Context, ownerID string) (ReconciliationReport, error) {
	acct, err := e.store.GetAccount(ctx, ownerID)
	if err != nil {
		return ReconciliationReport{}, err
	}
	entries, err := e.store.ListEntries(ctx, ownerID)
	if err != nil {
		return ReconciliationReport{}, err
	}

	var sum int64
	for _, entry := range entries {
		sum += entry.AmountCents
	}

	return ReconciliationReport{
		OwnerID:            ownerID,
		LedgerSumCents:     sum,
		RemainingOwedCents: acct.RemainingOwedCents,
		Balanced:           sum == acct.RemainingOwedCents,
	}, nil
}

// mutate runs one read-modify-write cycle under optimistic concurrency.
// apply receives the current account and returns the entry to append, or nil
// for a no-op. Revision conflicts re-read and retry up to maxCASRetries.
func (e *Engine) mutate(ctx context.Context, ownerID string, createIfMissing bool, apply func(*DebtAccount) (*LedgerEntry, error)) (DebtAccount, error) {
	if ownerID == "" {
		return DebtAccount{}, &paycore.Error{
			Type:    paycore.ErrorTypeValidation,
			Message: "owner_id is required",
		}
	}

	for attempt := 0; attempt < e.maxCASRetries; attempt++ {
		acct, err := e.store.GetAccount(ctx, ownerID)
		created := false
		switch {
		case errors.Is(err, ErrAccountNotFound):
			if !createIfMissing {
				return DebtAccount{}, err
			}
			acct = DebtAccount{OwnerID: ownerID}
			created = true
		case err != nil:
			return DebtAccount{}, err
		}

		expected := acct.Revision
		entry, err := apply(&acct)
		if err != nil {
			return DebtAccount{}, err
		}
		if entry == nil && !created {
			return acct, nil
		}
		acct.Revision = expected + 1

		if created {
			err = e.store.CreateAccount(ctx, acct)
			if errors.Is(err, ErrAccountExists) {
				// Another writer created the account first; retry over it.
				continue
			}
		} else {
			err = e.store.UpdateAccount(ctx, acct, expected)
			if errors.Is(err, ErrRevisionMismatch) {
				e.metrics.RecordVersionConflict("ledger")
				if e.logger != nil {
					e.logger.Debug("account revision conflict, retrying", "ownerID", ownerID, "attempt", attempt+1)
				}
				continue
			}
		}
		if err != nil {
			return DebtAccount{}, err
		}

		if entry != nil {
			entry.ID = e.newID()
			entry.OwnerID = ownerID
			entry.CreatedAt = e.now()
			if _, err := e.store.AppendEntry(ctx, *entry); err != nil {
				return DebtAccount{}, fmt.Errorf("append ledger entry: %w", err)
			}
		}
		return acct, nil
	}

	e.metrics.RecordError(paycore.ErrorTypeVersionConflict)
	return DebtAccount{}, &paycore.Error{
		Type:    paycore.ErrorTypeVersionConflict,
		Message: fmt.Sprintf("could not serialize account update after %d attempts", e.maxCASRetries),
	}
}

func requirePositive(field string, v int64) error {
	if v <= 0 {
		return &paycore.Error{
			Type:    paycore.ErrorTypeValidation,
			Message: fmt.Sprintf("%s must be positive", field),
		}
	}
	return nil
}
