/*
Package inventory provides the core sale and stock model.

PURPOSE:
  This package holds the types, errors and storage contracts shared by the
  sale transaction manager, the SQL stores and the HTTP layer. It knows how
  stock moves and how invoices are numbered; it does not know about HTTP,
  SQL dialects or product management.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal amounts (never float64)
  - Product: catalog record whose stock column is owned by the StockLedger
  - Sale / SaleLine: immutable sale aggregate, voided instead of deleted
  - LineRequest / SaleRequest: input of the create protocol
  - Availability / Shortfall: result of stock checks
  - StockMovement: audit row appended for every stock mutation

DESIGN PRINCIPLES:
  1. Snapshots: a SaleLine copies the unit price at sale time
  2. Precision: money uses decimal.Decimal
  3. Type Safety: distinct ID types for products, sales, clients and users
  4. Lifecycle as state: active/voided and active/deleted are tagged states

SEE ALSO:
  - ledger.go: StockLedger (the only writer of product stock)
  - sequencer.go: invoice numbering
  - store.go: persistence contracts
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is a monetary amount. Two decimal places are used for display; the
// arithmetic itself is exact.
type Money = decimal.Decimal

// NewMoney converts a float literal to Money. Intended for tests and seeds.
func NewMoney(value float64) Money {
	return decimal.NewFromFloat(value)
}

// MustParseMoney parses a decimal string and panics if it is malformed.
// It is meant for literals in seed data and tests.
func MustParseMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID int64
type SaleID int64
type ClientID int64
type UserID int64
type CategoryID int64

// =============================================================================
// LIFECYCLE STATES
// =============================================================================

// RecordState is the soft-delete state of catalog records.
type RecordState string

const (
	RecordActive  RecordState = "active"
	RecordDeleted RecordState = "deleted"
)

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	SaleActive SaleStatus = "active"
	SaleVoided SaleStatus = "voided"
)

// =============================================================================
// PRODUCT
// =============================================================================

// Product is the catalog view of a product. Stock is read here but only ever
// written through a StockLedger.
type Product struct {
	ID            ProductID
	Code          string
	Name          string
	Description   string
	CategoryID    *CategoryID
	PurchasePrice Money
	SalePrice     Money
	Stock         int
	MinStock      int
	State         RecordState
}

func (p Product) IsActive() bool   { return p.State == RecordActive }
func (p Product) IsLowStock() bool { return p.Stock <= p.MinStock }

// =============================================================================
// SALE AGGREGATE
// =============================================================================

// Sale is a committed sale header with its lines.
// INVARIANT: Total == Subtotal - Discount and Total >= 0.
type Sale struct {
	ID            SaleID
	InvoiceNumber string
	ClientID      ClientID
	UserID        UserID
	Subtotal      Money
	Discount      Money
	Total         Money
	Status        SaleStatus
	CreatedAt     time.Time
	Lines         []SaleLine
}

func (s *Sale) IsVoided() bool { return s.Status == SaleVoided }

// SaleLine is one immutable line of a sale.
// INVARIANT: Subtotal == Quantity * UnitPrice, Quantity > 0.
type SaleLine struct {
	ID        int64
	SaleID    SaleID
	ProductID ProductID
	Quantity  int
	UnitPrice Money
	Subtotal  Money
}

// LineRequest is one requested line of a new sale.
type LineRequest struct {
	ProductID ProductID
	Quantity  int
	UnitPrice Money
}

// Subtotal returns Quantity * UnitPrice.
func (l LineRequest) Subtotal() Money {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SaleRequest is the input of the create protocol. Discount defaults to zero.
type SaleRequest struct {
	ClientID ClientID
	UserID   UserID
	Lines    []LineRequest
	Discount Money
}

// =============================================================================
// STOCK CHECKS
// =============================================================================

// Availability is the result of checking a requested quantity against stock.
type Availability struct {
	Available    bool
	CurrentStock int
	Shortfall    int
}

// Shortfall describes one product that cannot cover its requested quantity.
// Missing is set when the product does not resolve to an active product.
type Shortfall struct {
	ProductID ProductID
	Requested int
	Available int
	Shortfall int
	Missing   bool
}

// =============================================================================
// STOCK MOVEMENTS - audit trail of ledger mutations
// =============================================================================

type MovementReason string

const (
	MovementSale         MovementReason = "sale"
	MovementCancellation MovementReason = "cancellation"
)

// StockMovement records a single stock mutation. Append-only.
type StockMovement struct {
	ID        string
	ProductID ProductID
	SaleID    SaleID
	Delta     int
	Reason    MovementReason
	CreatedAt time.Time
}

// =============================================================================
// QUERIES
// =============================================================================

// SaleFilter narrows sale listings. Voided sales are excluded unless
// IncludeVoided is set. From is inclusive, To is exclusive.
type SaleFilter struct {
	From          *time.Time
	To            *time.Time
	ClientID      *ClientID
	IncludeVoided bool
	Limit         int
}
