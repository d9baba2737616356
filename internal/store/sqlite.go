package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/iradwatkins/stepperslife-stores-sub005/internal/inventory"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/ledger"
)

var (
	_ ledger.Store    = (*SQLite)(nil)
	_ inventory.Store = (*SQLite)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS debt_accounts (
	owner_id             TEXT PRIMARY KEY,
	total_accrued_cents  INTEGER NOT NULL,
	total_settled_cents  INTEGER NOT NULL,
	remaining_owed_cents INTEGER NOT NULL,
	last_accrual_at      TEXT NOT NULL DEFAULT '',
	last_settlement_at   TEXT NOT NULL DEFAULT '',
	revision             INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id                      TEXT PRIMARY KEY,
	owner_id                TEXT NOT NULL,
	kind                    TEXT NOT NULL,
	amount_cents            INTEGER NOT NULL,
	resulting_balance_cents INTEGER NOT NULL,
	order_ref               TEXT NOT NULL DEFAULT '',
	description             TEXT NOT NULL DEFAULT '',
	created_at              TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_owner ON ledger_entries(owner_id);

CREATE TABLE IF NOT EXISTS inventory_items (
	item_ref         TEXT PRIMARY KEY,
	quantity_on_hand INTEGER NOT NULL,
	version          INTEGER NOT NULL,
	allow_backorder  INTEGER NOT NULL,
	track_inventory  INTEGER NOT NULL
);
`

// SQLite is the durable store for single-node deployments. Conditional
// writes are expressed as UPDATE ... WHERE revision = ?, so the precondition
// check and the mutation are a single atomic statement.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the database at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetAccount implements ledger.Store.
func (s *SQLite) GetAccount(ctx context.Context, ownerID string) (ledger.DebtAccount, error) {
	var (
		acct                     ledger.DebtAccount
		lastAccrual, lastSettled string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, total_accrued_cents, total_settled_cents, remaining_owed_cents,
		       last_accrual_at, last_settlement_at, revision
		FROM debt_accounts WHERE owner_id = ?`, ownerID).
		Scan(&acct.OwnerID, &acct.TotalAccruedCents, &acct.TotalSettledCents,
			&acct.RemainingOwedCents, &lastAccrual, &lastSettled, &acct.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.DebtAccount{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.DebtAccount{}, err
	}
	acct.LastAccrualAt = parseTime(lastAccrual)
	acct.LastSettlementAt = parseTime(lastSettled)
	return acct, nil
}

// CreateAccount implements ledger.Store.
func (s *SQLite) CreateAccount(ctx context.Context, acct ledger.DebtAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO debt_accounts
			(owner_id, total_accrued_cents, total_settled_cents, remaining_owed_cents,
			 last_accrual_at, last_settlement_at, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		acct.OwnerID, acct.TotalAccruedCents, acct.TotalSettledCents, acct.RemainingOwedCents,
		formatTime(acct.LastAccrualAt), formatTime(acct.LastSettlementAt), acct.Revision)
	if isConstraintErr(err) {
		return ledger.ErrAccountExists
	}
	return err
}

// UpdateAccount implements ledger.Store.
func (s *SQLite) UpdateAccount(ctx context.Context, acct ledger.DebtAccount, expectedRevision int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE debt_accounts
		SET total_accrued_cents = ?, total_settled_cents = ?, remaining_owed_cents = ?,
		    last_accrual_at = ?, last_settlement_at = ?, revision = ?
		WHERE owner_id = ? AND revision = ?`,
		acct.TotalAccruedCents, acct.TotalSettledCents, acct.RemainingOwedCents,
		formatTime(acct.LastAccrualAt), formatTime(acct.LastSettlementAt), acct.Revision,
		acct.OwnerID, expectedRevision)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.GetAccount(ctx, acct.OwnerID); errors.Is(getErr, ledger.ErrAccountNotFound) {
			return ledger.ErrAccountNotFound
		}
		return ledger.ErrRevisionMismatch
	}
	return nil
}

// AppendEntry implements ledger.Store.
func (s *SQLite) AppendEntry(ctx context.Context, entry ledger.LedgerEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(id, owner_id, kind, amount_cents, resulting_balance_cents, order_ref, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OwnerID, string(entry.Kind), entry.AmountCents,
		entry.ResultingBalanceCents, entry.OrderRef, entry.Description, formatTime(entry.CreatedAt))
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// ListEntries implements ledger.Store. Append order is preserved via rowid.
func (s *SQLite) ListEntries(ctx context.Context, ownerID string) ([]ledger.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, kind, amount_cents, resulting_balance_cents, order_ref, description, created_at
		FROM ledger_entries WHERE owner_id = ? ORDER BY rowid ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.LedgerEntry
	for rows.Next() {
		var (
			entry     ledger.LedgerEntry
			kind      string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.OwnerID, &kind, &entry.AmountCents,
			&entry.ResultingBalanceCents, &entry.OrderRef, &entry.Description, &createdAt); err != nil {
			return nil, err
		}
		entry.Kind = ledger.EntryKind(kind)
		entry.CreatedAt = parseTime(createdAt)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// GetItem implements inventory.Store.
func (s *SQLite) GetItem(ctx context.Context, itemRef string) (inventory.Record, error) {
	var rec inventory.Record
	err := s.db.QueryRowContext(ctx, `
		SELECT item_ref, quantity_on_hand, version, allow_backorder, track_inventory
		FROM inventory_items WHERE item_ref = ?`, itemRef).
		Scan(&rec.ItemRef, &rec.QuantityOnHand, &rec.Version, &rec.AllowBackorder, &rec.TrackInventory)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Record{}, inventory.ErrItemNotFound
	}
	if err != nil {
		return inventory.Record{}, err
	}
	return rec, nil
}

// UpdateItem implements inventory.Store.
func (s *SQLite) UpdateItem(ctx context.Context, rec inventory.Record, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_items
		SET quantity_on_hand = ?, version = ?, allow_backorder = ?, track_inventory = ?
		WHERE item_ref = ? AND version = ?`,
		rec.QuantityOnHand, rec.Version, rec.AllowBackorder, rec.TrackInventory,
		rec.ItemRef, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.GetItem(ctx, rec.ItemRef); errors.Is(getErr, inventory.ErrItemNotFound) {
			return inventory.ErrItemNotFound
		}
		return inventory.ErrVersionMismatch
	}
	return nil
}

// UpsertItem writes rec unconditionally. Administrative seeding only.
func (s *SQLite) UpsertItem(ctx context.Context, rec inventory.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (item_ref, quantity_on_hand, version, allow_backorder, track_inventory)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_ref) DO UPDATE SET
			quantity_on_hand = excluded.quantity_on_hand,
			version = excluded.version,
			allow_backorder = excluded.allow_backorder,
			track_inventory = excluded.track_inventory`,
		rec.ItemRef, rec.QuantityOnHand, rec.Version, rec.AllowBackorder, rec.TrackInventory)
	return err
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
