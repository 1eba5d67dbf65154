package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// InvoicePrefix precedes the zero-padded sequence of every invoice number.
const InvoicePrefix = "FACT-"

// FormatInvoiceNumber renders a sequence as FACT-NNNNNN.
func FormatInvoiceNumber(n int64) string {
	return fmt.Sprintf("%s%06d", InvoicePrefix, n)
}

// ParseInvoiceNumber extracts the numeric suffix of an invoice number.
func ParseInvoiceNumber(s string) (int64, bool) {
	if !strings.HasPrefix(s, InvoicePrefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(s, InvoicePrefix), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// InvoiceSequencer hands out invoice numbers.
//
// The next number is one past the larger of the stored counter and the
// highest suffix ever issued, voided invoices included. The counter row is
// written in the caller's transaction, so two sales cannot draw the same
// number: the second writer blocks on the counter (or on BEGIN IMMEDIATE
// in SQLite) until the first commits.
type InvoiceSequencer struct {
	Store Store
}

func NewInvoiceSequencer(store Store) *InvoiceSequencer {
	return &InvoiceSequencer{Store: store}
}

// NextInvoiceNumber advances the counter and returns the formatted number.
// Must run inside the same transaction as the sale insert.
func (s *InvoiceSequencer) NextInvoiceNumber(ctx context.Context) (string, error) {
	counter, err := s.Store.InvoiceCounter(ctx)
	if err != nil {
		return "", fmt.Errorf("read invoice counter: %w", err)
	}
	highest, err := s.Store.MaxInvoiceSuffix(ctx)
	if err != nil {
		return "", fmt.Errorf("read invoice suffix: %w", err)
	}

	next := max(counter, highest) + 1
	if err := s.Store.SetInvoiceCounter(ctx, next); err != nil {
		return "", fmt.Errorf("advance invoice counter: %w", err)
	}
	return FormatInvoiceNumber(next), nil
}
