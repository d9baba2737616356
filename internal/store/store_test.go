package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradwatkins/stepperslife-stores-sub005/internal/inventory"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/ledger"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/store"
)

// backend abstracts the two implementations so every contract test runs
// against both.
type backend interface {
	ledger.Store
	inventory.Store
	UpsertItem(ctx context.Context, rec inventory.Record) error
}

func backends(t *testing.T) map[string]backend {
	t.Helper()

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]backend{
		"memory": store.NewMemory(),
		"sqlite": db,
	}
}

func TestAccountLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetAccount(ctx, "org-1")
			assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

			acct := ledger.DebtAccount{
				OwnerID:            "org-1",
				TotalAccruedCents:  529,
				RemainingOwedCents: 529,
				LastAccrualAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				Revision:           1,
			}
			require.NoError(t, s.CreateAccount(ctx, acct))

			got, err := s.GetAccount(ctx, "org-1")
			require.NoError(t, err)
			assert.Equal(t, int64(529), got.TotalAccruedCents)
			assert.Equal(t, int64(1), got.Revision)
			assert.True(t, got.LastAccrualAt.Equal(acct.LastAccrualAt))
			assert.True(t, got.LastSettlementAt.IsZero())

			assert.ErrorIs(t, s.CreateAccount(ctx, acct), ledger.ErrAccountExists)
		})
	}
}

func TestUpdateAccountConditionalWrite(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			acct := ledger.DebtAccount{OwnerID: "org-1", RemainingOwedCents: 100, Revision: 1}
			require.NoError(t, s.CreateAccount(ctx, acct))

			acct.RemainingOwedCents = 50
			acct.Revision = 2
			require.NoError(t, s.UpdateAccount(ctx, acct, 1))

			// Stale expected revision must be rejected.
			acct.Revision = 3
			assert.ErrorIs(t, s.UpdateAccount(ctx, acct, 1), ledger.ErrRevisionMismatch)

			// Unknown owner distinguishes not-found from mismatch.
			missing := ledger.DebtAccount{OwnerID: "org-ghost", Revision: 1}
			assert.ErrorIs(t, s.UpdateAccount(ctx, missing, 0), ledger.ErrAccountNotFound)

			got, err := s.GetAccount(ctx, "org-1")
			require.NoError(t, err)
			assert.Equal(t, int64(50), got.RemainingOwedCents)
			assert.Equal(t, int64(2), got.Revision)
		})
	}
}

func TestEntriesAppendAndListInOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			for i, amount := range []int64{529, -300, -229} {
				id, err := s.AppendEntry(ctx, ledger.LedgerEntry{
					ID:          "entry-" + string(rune('a'+i)),
					OwnerID:     "org-1",
					Kind:        ledger.KindAccrual,
					AmountCents: amount,
					CreatedAt:   at.Add(time.Duration(i) * time.Second),
				})
				require.NoError(t, err)
				assert.NotEmpty(t, id)
			}

			// Other owners are invisible.
			_, err := s.AppendEntry(ctx, ledger.LedgerEntry{ID: "other", OwnerID: "org-2", Kind: ledger.KindAccrual, AmountCents: 1, CreatedAt: at})
			require.NoError(t, err)

			entries, err := s.ListEntries(ctx, "org-1")
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, int64(529), entries[0].AmountCents)
			assert.Equal(t, int64(-300), entries[1].AmountCents)
			assert.Equal(t, int64(-229), entries[2].AmountCents)

			empty, err := s.ListEntries(ctx, "org-none")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestItemLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetItem(ctx, "ticket-ga")
			assert.ErrorIs(t, err, inventory.ErrItemNotFound)

			rec := inventory.Record{ItemRef: "ticket-ga", QuantityOnHand: 100, TrackInventory: true}
			require.NoError(t, s.UpsertItem(ctx, rec))

			got, err := s.GetItem(ctx, "ticket-ga")
			require.NoError(t, err)
			assert.Equal(t, int64(100), got.QuantityOnHand)
			assert.True(t, got.TrackInventory)
			assert.False(t, got.AllowBackorder)

			// Upsert replaces.
			rec.QuantityOnHand = 50
			rec.AllowBackorder = true
			require.NoError(t, s.UpsertItem(ctx, rec))
			got, err = s.GetItem(ctx, "ticket-ga")
			require.NoError(t, err)
			assert.Equal(t, int64(50), got.QuantityOnHand)
			assert.True(t, got.AllowBackorder)
		})
	}
}

func TestUpdateItemConditionalWrite(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.UpsertItem(ctx, inventory.Record{ItemRef: "ticket-ga", QuantityOnHand: 10}))

			updated := inventory.Record{ItemRef: "ticket-ga", QuantityOnHand: 9, Version: 1}
			require.NoError(t, s.UpdateItem(ctx, updated, 0))

			assert.ErrorIs(t, s.UpdateItem(ctx, updated, 0), inventory.ErrVersionMismatch)
			assert.ErrorIs(t, s.UpdateItem(ctx, inventory.Record{ItemRef: "ghost"}, 0), inventory.ErrItemNotFound)

			got, err := s.GetItem(ctx, "ticket-ga")
			require.NoError(t, err)
			assert.Equal(t, int64(9), got.QuantityOnHand)
			assert.Equal(t, int64(1), got.Version)
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	db, err := store.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.CreateAccount(ctx, ledger.DebtAccount{OwnerID: "org-1", RemainingOwedCents: 529, Revision: 1}))
	require.NoError(t, db.Close())

	db, err = store.OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.GetAccount(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(529), got.RemainingOwedCents)
}
