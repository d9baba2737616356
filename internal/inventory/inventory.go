// Package inventory provides version-guarded stock mutation. Writers never
// hold a lock: each decrement names the record version it read, and the
// datastore's conditional write rejects the mutation if the version moved,
// closing the check-then-act race without server-side merging.
package inventory

import (
	"context"
	"errors"
	"fmt"

	paycore "github.com/iradwatkins/stepperslife-stores-sub005"
)

// Record is one tracked stock position.
type Record struct {
	ItemRef        string `json:"item_ref"`
	QuantityOnHand int64  `json:"quantity_on_hand"`
	// Version increases by exactly one on every successful mutation.
	Version        int64 `json:"version"`
	AllowBackorder bool  `json:"allow_backorder"`
	TrackInventory bool  `json:"track_inventory"`
}

// Store is the datastore contract: read-by-key plus a write conditioned on
// the version still matching at write time.
type Store interface {
	GetItem(ctx context.Context, itemRef string) (Record, error)
	// UpdateItem persists rec only if the stored version still equals
	// expectedVersion, returning ErrVersionMismatch otherwise.
	UpdateItem(ctx context.Context, rec Record, expectedVersion int64) error
}

var (
	// ErrItemNotFound is returned for unknown item refs.
	ErrItemNotFound = errors.New("inventory: item not found")

	// ErrVersionMismatch is returned when a conditional write loses the race.
	ErrVersionMismatch = errors.New("inventory: record version mismatch")
)

// Mutation reports a successful stock change.
type Mutation struct {
	ItemRef     string `json:"item_ref"`
	PreviousQty int64  `json:"previous_qty"`
	NewQty      int64  `json:"new_qty"`
	NewVersion  int64  `json:"new_version"`
}

// Counter mutates stock quantities under optimistic locking.
type Counter struct {
	store      Store
	metrics    *paycore.MetricsCollector
	logger     paycore.Logger
	maxRetries int
}

// CounterOption configures a Counter.
type CounterOption func(*Counter)

// WithMetrics attaches a metrics collector.
func WithMetrics(mc *paycore.MetricsCollector) CounterOption {
	return func(c *Counter) { c.metrics = mc }
}

// WithLogger attaches a structured logger.
func WithLogger(logger paycore.Logger) CounterOption {
	return func(c *Counter) { c.logger = logger }
}

// NewCounter creates a counter over store.
func NewCounter(store Store, opts ...CounterOption) *Counter {
	c := &Counter{store: store, maxRetries: 5}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decrement removes quantity units from the item, guarded by the version the
// caller read. A stale expectedVersion fails with VERSION_CONFLICT and the
// caller must re-read and retry the whole operation; an oversell attempt on
// tracked stock without backorder fails with INSUFFICIENT_STOCK.
func (c *Counter) Decrement(ctx context.Context, itemRef string, quantity, expectedVersion int64) (Mutation, error) {
	if quantity <= 0 {
		return Mutation{}, &paycore.Error{
			Type:    paycore.ErrorTypeValidation,
			Message: "quantity must be positive",
		}
	}

	rec, err := c.store.GetItem(ctx, itemRef)
	if err != nil {
		return Mutation{}, err
	}

	if rec.Version != expectedVersion {
		return Mutation{}, c.conflict(itemRef, expectedVersion, rec.Version)
	}

	if rec.TrackInventory && !rec.AllowBackorder && rec.QuantityOnHand < quantity {
		return Mutation{}, &paycore.Error{
			Type:    paycore.ErrorTypeInsufficientStock,
			Message: fmt.Sprintf("requested %d but only %d on hand", quantity, rec.QuantityOnHand),
		}
	}

	prev := rec.QuantityOnHand
	rec.QuantityOnHand -= quantity
	if rec.QuantityOnHand < 0 {
		rec.QuantityOnHand = 0
	}
	rec.Version++

	// The write itself re-checks the version, so two racing decrements that
	// both read the same version cannot both land.
	if err := c.store.UpdateItem(ctx, rec, expectedVersion); err != nil {
		if errors.Is(err, ErrVersionMismatch) {
			return Mutation{}, c.conflict(itemRef, expectedVersion, -1)
		}
		return Mutation{}, err
	}

	if c.logger != nil {
		c.logger.Info("stock decremented", "itemRef", itemRef, "quantity", quantity,
			"previousQty", prev, "newQty", rec.QuantityOnHand, "version", rec.Version)
	}
	return Mutation{ItemRef: itemRef, PreviousQty: prev, NewQty: rec.QuantityOnHand, NewVersion: rec.Version}, nil
}

// Increment restores quantity units (refunds, cancellations). Restoring
// stock cannot oversell, so no caller-supplied version is required; the
// counter retries its own conditional writes until one lands.
func (c *Counter) Increment(ctx context.Context, itemRef string, quantity int64) (Mutation, error) {
	if quantity <= 0 {
		return Mutation{}, &paycore.Error{
			Type:    paycore.ErrorTypeValidation,
			Message: "quantity must be positive",
		}
	}

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		rec, err := c.store.GetItem(ctx, itemRef)
		if err != nil {
			return Mutation{}, err
		}

		expected := rec.Version
		prev := rec.QuantityOnHand
		rec.QuantityOnHand += quantity
		rec.Version++

		err = c.store.UpdateItem(ctx, rec, expected)
		if errors.Is(err, ErrVersionMismatch) {
			c.metrics.RecordVersionConflict("inventory")
			continue
		}
		if err != nil {
			return Mutation{}, err
		}

		if c.logger != nil {
			c.logger.Info("stock restored", "itemRef", itemRef, "quantity", quantity,
				"newQty", rec.QuantityOnHand, "version", rec.Version)
		}
		return Mutation{ItemRef: itemRef, PreviousQty: prev, NewQty: rec.QuantityOnHand, NewVersion: rec.Version}, nil
	}

	return Mutation{}, &paycore.Error{
		Type:    paycore.ErrorTypeVersionConflict,
		Message: fmt.Sprintf("could not restore stock after %d attempts", c.maxRetries),
	}
}

func (c *Counter) conflict(itemRef string, expected, actual int64) *paycore.Error {
	c.metrics.RecordVersionConflict("inventory")
	msg := fmt.Sprintf("expected version %d is stale", expected)
	if actual >= 0 {
		msg = fmt.Sprintf("expected version %d but record is at %d", expected, actual)
	}
	if c.logger != nil {
		c.logger.Debug("inventory version conflict", "itemRef", itemRef, "expectedVersion", expected)
	}
	return &paycore.Error{
		Type:    paycore.ErrorTypeVersionConflict,
		Message: msg,
	}
}
