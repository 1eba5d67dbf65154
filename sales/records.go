package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/sciv/sales-engine/inventory"
)

// =============================================================================
// RECORDS - read-side queries over committed sales
// =============================================================================

// Records answers sale queries. Listings return headers only and exclude
// voided sales; GetByID returns any sale, voided or not, with its lines.
type Records struct {
	Store inventory.Store

	// Now and Location define "today". Defaults: time.Now and time.Local.
	Now      func() time.Time
	Location *time.Location
}

func NewRecords(store inventory.Store) *Records {
	return &Records{Store: store, Now: time.Now, Location: time.Local}
}

// GetByID returns a sale with its lines.
func (r *Records) GetByID(ctx context.Context, id inventory.SaleID) (*inventory.Sale, error) {
	sale, err := r.Store.GetSale(ctx, id)
	if err != nil {
		return nil, &inventory.PersistenceError{Op: "get sale", Err: err}
	}
	if sale == nil {
		return nil, &inventory.NotFoundError{Kind: "sale", ID: int64(id)}
	}
	return sale, nil
}

// ListByDateRange returns active sales created in [start, end), newest first.
func (r *Records) ListByDateRange(ctx context.Context, start, end time.Time) ([]inventory.Sale, error) {
	if end.Before(start) {
		return nil, &inventory.ValidationError{Field: "end", Reason: "must not be before start"}
	}
	return r.list(ctx, inventory.SaleFilter{From: &start, To: &end})
}

// ListByClient returns the active sales of one client, newest first.
func (r *Records) ListByClient(ctx context.Context, client inventory.ClientID) ([]inventory.Sale, error) {
	if client <= 0 {
		return nil, &inventory.ValidationError{Field: "client_id", Reason: "required"}
	}
	return r.list(ctx, inventory.SaleFilter{ClientID: &client})
}

// ListToday returns the active sales of the current local calendar day.
func (r *Records) ListToday(ctx context.Context) ([]inventory.Sale, error) {
	start, end := DayBounds(r.Now(), r.location())
	return r.ListByDateRange(ctx, start, end)
}

// List runs an arbitrary filter. Used by the HTTP layer for combined filters.
func (r *Records) List(ctx context.Context, filter inventory.SaleFilter) ([]inventory.Sale, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, &inventory.ValidationError{Field: "to", Reason: "must not be before from"}
	}
	if filter.Limit < 0 {
		return nil, &inventory.ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	return r.list(ctx, filter)
}

func (r *Records) list(ctx context.Context, filter inventory.SaleFilter) ([]inventory.Sale, error) {
	sales, err := r.Store.ListSales(ctx, filter)
	if err != nil {
		return nil, &inventory.PersistenceError{Op: "list sales", Err: err}
	}
	return sales, nil
}

func (r *Records) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary aggregates a listing.
type Summary struct {
	Count int
	Total inventory.Money
}

// Summarize counts sales and sums their totals.
func Summarize(sales []inventory.Sale) Summary {
	s := Summary{}
	for _, sale := range sales {
		s.Count++
		s.Total = s.Total.Add(sale.Total)
	}
	return s
}

// DayBounds returns [midnight, next midnight) of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ParseDay parses a YYYY-MM-DD date as midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, &inventory.ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", s)}
	}
	return day, nil
}
