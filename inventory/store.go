/*
store.go - Persistence contracts for stock, sales and invoices

PURPOSE:
  Defines the interface between the sale/stock logic and the database.
  Implementations: store/sqlite (SQLite), store/postgres (PostgreSQL),
  inventory/store (in-memory, for tests).

KEY INTERFACES:
  Store:   stock reads and guarded mutations, sale persistence, invoice counter
  TxStore: Store plus WithTx for all-or-nothing protocol steps

GUARDED MUTATIONS:
  DecrementStock is a single conditional statement:

    UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?

  It reports whether a row was affected. Zero rows means the stock moved
  under us; the caller treats this as a late shortfall and rolls back.

LOCKING:
  Inside WithTx, ProductStock on stores that support it takes a row lock
  (SELECT ... FOR UPDATE) held until commit. SQLite serialises writers with
  BEGIN IMMEDIATE instead.

SEE ALSO:
  - ledger.go: the only caller of DecrementStock/IncrementStock
  - sequencer.go: the only caller of the invoice counter methods
*/
package inventory

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store is the persistence contract of the core.
type Store interface {
	// ProductStock returns the stock of an active product.
	// found is false when the product is missing or soft-deleted.
	ProductStock(ctx context.Context, id ProductID) (stock int, found bool, err error)

	// DecrementStock subtracts qty when stock >= qty. Returns false if no row changed.
	DecrementStock(ctx context.Context, id ProductID, qty int) (bool, error)

	// IncrementStock adds qty. Returns false if the product row doesn't exist.
	IncrementStock(ctx context.Context, id ProductID, qty int) (bool, error)

	// AppendMovement records a stock mutation. Append-only.
	AppendMovement(ctx context.Context, m StockMovement) error

	// Movements returns the stock movements of a product, oldest first.
	Movements(ctx context.Context, id ProductID) ([]StockMovement, error)

	// InvoiceCounter returns the last issued invoice sequence.
	InvoiceCounter(ctx context.Context) (int64, error)

	// SetInvoiceCounter stores the last issued invoice sequence.
	SetInvoiceCounter(ctx context.Context, n int64) error

	// MaxInvoiceSuffix returns the largest numeric suffix among all
	// historical invoices, voided ones included. 0 when there are none.
	MaxInvoiceSuffix(ctx context.Context) (int64, error)

	// InsertSale persists a header and its lines, assigning sale.ID and line IDs.
	// Returns ErrDuplicateInvoice when the invoice number is taken.
	InsertSale(ctx context.Context, sale *Sale) error

	// GetSale returns a sale with its lines, voided or not. (nil, nil) if missing.
	GetSale(ctx context.Context, id SaleID) (*Sale, error)

	// VoidSale marks an active sale voided. Returns false if it was missing
	// or already voided.
	VoidSale(ctx context.Context, id SaleID) (bool, error)

	// ListSales returns sale headers newest first.
	ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error)

	// ClientExists reports whether an active client exists.
	ClientExists(ctx context.Context, id ClientID) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
