/*
ledger.go - Stock ledger: the single writer of product stock

PURPOSE:
  The StockLedger is the only component allowed to change a product's
  stock quantity. Every change is paired with a StockMovement row so the
  current stock can always be explained.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE: stock never drops below zero
  2. PAIRED: every mutation appends exactly one StockMovement
  3. SCOPED: mutations only happen inside a sale create/cancel transaction

CHECK THEN DECREMENT:
  CheckAvailability is advisory; it lets the caller collect every short
  line before touching anything. The decrement itself is guarded in the
  database (stock >= qty in the same statement), so a concurrent sale that
  slips in between check and decrement produces ErrLateShortfall rather
  than negative stock.

EXAMPLE FLOW:
  Product stock 10
  1. Sale #1 for 4 units:   Decrement 4  -> stock 6, movement -4 (sale)
  2. Sale #1 cancelled:     Increment 4  -> stock 10, movement +4 (cancellation)

SEE ALSO:
  - store.go: DecrementStock / IncrementStock
  - sales/manager.go: the create/cancel protocol driving the ledger
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STOCK LEDGER
// =============================================================================

// StockLedger is the source of truth for available quantities.
type StockLedger interface {
	// CheckAvailability compares a requested quantity with current stock.
	// Returns a NotFoundError (with Available=false, CurrentStock=0) when the
	// product doesn't resolve to an active product.
	CheckAvailability(ctx context.Context, id ProductID, qty int) (Availability, error)

	// Decrement reduces stock by qty on behalf of a sale.
	Decrement(ctx context.Context, id ProductID, qty int, sale SaleID) error

	// Increment restores qty on behalf of a cancelled sale.
	Increment(ctx context.Context, id ProductID, qty int, sale SaleID) error

	// Movements returns the audit trail of a product.
	Movements(ctx context.Context, id ProductID) ([]StockMovement, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
	Now   func() time.Time
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store, Now: time.Now}
}

func (l *DefaultLedger) CheckAvailability(ctx context.Context, id ProductID, qty int) (Availability, error) {
	stock, found, err := l.Store.ProductStock(ctx, id)
	if err != nil {
		return Availability{}, err
	}
	if !found {
		return Availability{Available: false, CurrentStock: 0, Shortfall: qty},
			&NotFoundError{Kind: "product", ID: int64(id)}
	}

	avail := Availability{Available: stock >= qty, CurrentStock: stock}
	if !avail.Available {
		avail.Shortfall = qty - stock
	}
	return avail, nil
}

func (l *DefaultLedger) Decrement(ctx context.Context, id ProductID, qty int, sale SaleID) error {
	if qty <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	ok, err := l.Store.DecrementStock(ctx, id, qty)
	if err != nil {
		return fmt.Errorf("decrement product %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("decrement product %d by %d: %w", id, qty, ErrLateShortfall)
	}
	return l.record(ctx, id, -qty, sale, MovementSale)
}

func (l *DefaultLedger) Increment(ctx context.Context, id ProductID, qty int, sale SaleID) error {
	if qty <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	ok, err := l.Store.IncrementStock(ctx, id, qty)
	if err != nil {
		return fmt.Errorf("increment product %d: %w", id, err)
	}
	if !ok {
		return &NotFoundError{Kind: "product", ID: int64(id)}
	}
	return l.record(ctx, id, qty, sale, MovementCancellation)
}

func (l *DefaultLedger) Movements(ctx context.Context, id ProductID) ([]StockMovement, error) {
	return l.Store.Movements(ctx, id)
}

func (l *DefaultLedger) record(ctx context.Context, id ProductID, delta int, sale SaleID, reason MovementReason) error {
	return l.Store.AppendMovement(ctx, StockMovement{
		ID:        uuid.NewString(),
		ProductID: id,
		SaleID:    sale,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: l.Now().UTC(),
	})
}
