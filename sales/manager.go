/*
Package sales implements the sale transaction protocol and sale queries.

PURPOSE:
  Manager turns a sale request into a committed sale, or a committed sale
  into a voided one, as a single all-or-nothing unit. Records answers the
  read-side questions (by id, by date range, by client, today).

CREATE PROTOCOL (one storage transaction):
  1. Reject empty or malformed lines (ValidationError, nothing touched)
  2. Check the client exists (NotFoundError)
  3. Check every product's requested quantity; collect ALL short lines
  4. Any short line -> InsufficientStockError with the full report
  5. Compute line subtotals, subtotal, total; reject discount > subtotal
  6. Draw the next invoice number
  7. Insert header + lines
  8. Guarded decrement of every line; a decrement that affects no row
     means another sale won the race -> InsufficientStockError
  9. Commit

CANCEL PROTOCOL (one storage transaction):
  1. Sale must exist and be active (NotFoundError otherwise)
  2. Increment stock by every line's original quantity
  3. Mark the sale voided (guarded: a concurrent cancel loses)

ERRORS:
  Validation, stock and not-found errors pass through unchanged. Anything
  else that aborts the transaction becomes a PersistenceError. Duplicate
  invoice numbers and transaction conflicts are retried from scratch, at
  most DefaultMaxAttempts times unless WithMaxAttempts says otherwise.

SEE ALSO:
  - inventory/ledger.go: the stock ledger used inside the transaction
  - inventory/sequencer.go: invoice numbering
  - records.go: read-side queries
*/
package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sciv/sales-engine/inventory"
	"github.com/sciv/sales-engine/obs"
)

// DefaultMaxAttempts bounds retries of retryable persistence failures.
const DefaultMaxAttempts = 3

// =============================================================================
// MANAGER
// =============================================================================

// Manager runs the create/cancel protocols against a transactional store.
type Manager struct {
	store       inventory.TxStore
	now         func() time.Time
	maxAttempts int
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for sale timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMaxAttempts sets how often a retryable failure is retried.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithLogger sets the logger; obs.Logger is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(store inventory.TxStore, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return obs.Logger
}

// =============================================================================
// CREATE
// =============================================================================

// CreateSale validates, records and commits a sale, decrementing stock.
func (m *Manager) CreateSale(ctx context.Context, req inventory.SaleRequest) (*inventory.Sale, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var sale *inventory.Sale
	err := m.withRetry(ctx, "create sale", func() error {
		return m.store.WithTx(ctx, func(s inventory.Store) error {
			created, err := m.createInTx(ctx, s, req)
			if err != nil {
				return err
			}
			sale = created
			return nil
		})
	})
	if err != nil {
		var stockErr *inventory.InsufficientStockError
		if errors.As(err, &stockErr) {
			m.log().Info("sale rejected: insufficient stock",
				"client_id", req.ClientID, "short_lines", len(stockErr.Shortfalls))
		}
		return nil, err
	}

	m.log().Info("sale created",
		"sale_id", sale.ID,
		"invoice", sale.InvoiceNumber,
		"total", sale.Total.StringFixed(2),
		"lines", len(sale.Lines))
	return sale, nil
}

// requestedQty is the total quantity asked for one product across lines.
type requestedQty struct {
	productID inventory.ProductID
	qty       int
}

func (m *Manager) createInTx(ctx context.Context, s inventory.Store, req inventory.SaleRequest) (*inventory.Sale, error) {
	exists, err := s.ClientExists(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("check client: %w", err)
	}
	if !exists {
		return nil, &inventory.NotFoundError{Kind: "client", ID: int64(req.ClientID)}
	}

	ledger := inventory.NewLedger(s)
	ledger.Now = m.now

	requested := aggregate(req.Lines)
	var shortfalls []inventory.Shortfall
	for _, r := range requested {
		avail, err := ledger.CheckAvailability(ctx, r.productID, r.qty)
		if err != nil {
			if inventory.IsNotFound(err) {
				shortfalls = append(shortfalls, inventory.Shortfall{
					ProductID: r.productID,
					Requested: r.qty,
					Shortfall: r.qty,
					Missing:   true,
				})
				continue
			}
			return nil, fmt.Errorf("check stock: %w", err)
		}
		if !avail.Available {
			shortfalls = append(shortfalls, inventory.Shortfall{
				ProductID: r.productID,
				Requested: r.qty,
				Available: avail.CurrentStock,
				Shortfall: avail.Shortfall,
			})
		}
	}
	if len(shortfalls) > 0 {
		return nil, &inventory.InsufficientStockError{Shortfalls: shortfalls}
	}

	sale, err := buildSale(req)
	if err != nil {
		return nil, err
	}

	number, err := inventory.NewInvoiceSequencer(s).NextInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}
	sale.InvoiceNumber = number
	sale.Status = inventory.SaleActive
	sale.CreatedAt = m.now().UTC()

	if err := s.InsertSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("insert sale: %w", err)
	}

	decremented := make(map[inventory.ProductID]int, len(requested))
	for _, line := range sale.Lines {
		err := ledger.Decrement(ctx, line.ProductID, line.Quantity, sale.ID)
		if errors.Is(err, inventory.ErrLateShortfall) {
			return nil, m.lateShortfall(ctx, s, line.ProductID, requested, decremented[line.ProductID])
		}
		if err != nil {
			return nil, err
		}
		decremented[line.ProductID] += line.Quantity
	}
	return sale, nil
}

// lateShortfall rebuilds the report for a product whose guarded decrement
// failed after the availability check passed. Quantities already taken for
// the same product in this transaction are added back to "available".
func (m *Manager) lateShortfall(ctx context.Context, s inventory.Store, id inventory.ProductID, requested []requestedQty, taken int) error {
	var want int
	for _, r := range requested {
		if r.productID == id {
			want = r.qty
		}
	}

	short := inventory.Shortfall{ProductID: id, Requested: want}
	stock, found, err := s.ProductStock(ctx, id)
	if err != nil {
		return fmt.Errorf("recheck stock: %w", err)
	}
	if !found {
		short.Missing = true
		short.Shortfall = want
	} else {
		short.Available = stock + taken
		short.Shortfall = want - short.Available
	}

	m.log().Warn("late stock shortfall", "product_id", id, "requested", want, "available", short.Available)
	return &inventory.InsufficientStockError{Shortfalls: []inventory.Shortfall{short}}
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelSale restores the stock of every line and voids the sale.
func (m *Manager) CancelSale(ctx context.Context, id inventory.SaleID) error {
	var restored int
	err := m.withRetry(ctx, "cancel sale", func() error {
		return m.store.WithTx(ctx, func(s inventory.Store) error {
			sale, err := s.GetSale(ctx, id)
			if err != nil {
				return fmt.Errorf("load sale: %w", err)
			}
			if sale == nil || sale.IsVoided() {
				return &inventory.NotFoundError{Kind: "sale", ID: int64(id)}
			}

			ledger := inventory.NewLedger(s)
			ledger.Now = m.now
			restored = 0
			for _, line := range sale.Lines {
				if err := ledger.Increment(ctx, line.ProductID, line.Quantity, sale.ID); err != nil {
					return err
				}
				restored += line.Quantity
			}

			voided, err := s.VoidSale(ctx, id)
			if err != nil {
				return fmt.Errorf("void sale: %w", err)
			}
			if !voided {
				return &inventory.NotFoundError{Kind: "sale", ID: int64(id)}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	m.log().Info("sale cancelled", "sale_id", id, "units_restored", restored)
	return nil
}

// =============================================================================
// STOCK QUERY
// =============================================================================

// CheckStock reports whether qty units of a product are available right now.
// The answer is advisory; CreateSale re-checks inside its transaction.
func (m *Manager) CheckStock(ctx context.Context, id inventory.ProductID, qty int) (inventory.Availability, error) {
	if qty <= 0 {
		return inventory.Availability{}, &inventory.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return inventory.NewLedger(m.store).CheckAvailability(ctx, id, qty)
}

// =============================================================================
// HELPERS
// =============================================================================

// withRetry runs op, retrying retryable persistence failures, and maps
// storage failures to PersistenceError.
func (m *Manager) withRetry(ctx context.Context, opName string, op func() error) error {
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !inventory.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		m.log().Warn("retrying after conflict", "op", opName, "attempt", attempt, "error", err)
	}
	return classify(opName, err)
}

func classify(opName string, err error) error {
	if inventory.IsClientError(err) || inventory.IsNotFound(err) {
		return err
	}
	var pe *inventory.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &inventory.PersistenceError{Op: opName, Err: err}
}

// MaxQuantity caps the total quantity of one product in a single sale.
const MaxQuantity = 1_000_000

// moneyScale is the number of decimal places amounts are stored with.
const moneyScale = 2

func validateRequest(req inventory.SaleRequest) error {
	if len(req.Lines) == 0 {
		return &inventory.ValidationError{Field: "lines", Reason: "at least one line is required"}
	}
	perProduct := make(map[inventory.ProductID]int, len(req.Lines))
	for i, line := range req.Lines {
		if line.ProductID <= 0 {
			return &inventory.ValidationError{Field: fmt.Sprintf("lines[%d].product_id", i), Reason: "required"}
		}
		if line.Quantity <= 0 {
			return &inventory.ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Reason: "must be positive"}
		}
		// Each term is at most MaxQuantity, so the sum cannot overflow.
		if line.Quantity > MaxQuantity || perProduct[line.ProductID]+line.Quantity > MaxQuantity {
			return &inventory.ValidationError{
				Field:  fmt.Sprintf("lines[%d].quantity", i),
				Reason: fmt.Sprintf("total per product must not exceed %d", MaxQuantity),
			}
		}
		perProduct[line.ProductID] += line.Quantity
		if line.UnitPrice.IsNegative() {
			return &inventory.ValidationError{Field: fmt.Sprintf("lines[%d].unit_price", i), Reason: "must not be negative"}
		}
		if !hasMoneyScale(line.UnitPrice) {
			return &inventory.ValidationError{Field: fmt.Sprintf("lines[%d].unit_price", i), Reason: "at most 2 decimal places"}
		}
	}
	if req.Discount.IsNegative() {
		return &inventory.ValidationError{Field: "discount", Reason: "must not be negative"}
	}
	if !hasMoneyScale(req.Discount) {
		return &inventory.ValidationError{Field: "discount", Reason: "at most 2 decimal places"}
	}
	return nil
}

// hasMoneyScale reports whether m is exact at cent precision. Trailing zeros
// such as "1.500" are accepted.
func hasMoneyScale(m inventory.Money) bool {
	return m.Equal(m.Round(moneyScale))
}

// aggregate sums quantities per product, ordered by product id so that
// row locks are always taken in the same order.
func aggregate(lines []inventory.LineRequest) []requestedQty {
	index := make(map[inventory.ProductID]int, len(lines))
	var result []requestedQty
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			result[i].qty += l.Quantity
			continue
		}
		index[l.ProductID] = len(result)
		result = append(result, requestedQty{productID: l.ProductID, qty: l.Quantity})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].productID < result[j].productID })
	return result
}

// buildSale computes line subtotals and totals.
func buildSale(req inventory.SaleRequest) (*inventory.Sale, error) {
	sale := &inventory.Sale{
		ClientID: req.ClientID,
		UserID:   req.UserID,
		Lines:    make([]inventory.SaleLine, 0, len(req.Lines)),
	}

	subtotal := decimal.Zero
	for _, l := range req.Lines {
		lineTotal := l.Subtotal()
		sale.Lines = append(sale.Lines, inventory.SaleLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	if req.Discount.GreaterThan(subtotal) {
		return nil, &inventory.ValidationError{Field: "discount", Reason: "exceeds subtotal"}
	}
	sale.Subtotal = subtotal
	sale.Discount = req.Discount
	sale.Total = subtotal.Sub(req.Discount)
	return sale, nil
}
