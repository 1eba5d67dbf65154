/*
handlers.go - HTTP API handlers for the sales engine

PURPOSE:
  Exposes sale recording, cancellation and queries via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the sales
  package. Product and client endpoints live in products.go.

ENDPOINTS:
  Sales:
    GET    /api/sales                  List sales (from, to, client_id, limit, include_voided)
    GET    /api/sales/today            Sales of the current local day
    GET    /api/sales/stock-check      Check stock for a product and quantity
    GET    /api/sales/{id}             Get sale with lines (voided included)
    POST   /api/sales                  Record a sale (issuer from X-User-ID)
    DELETE /api/sales/{id}             Cancel a sale and restore stock

  Clients:
    GET    /api/clients/{id}/sales     Sales of one client

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: transactional store (also used for resets and movements)
  - Catalog: product and client records
  - Sales: create/cancel protocol
  - Records: read-side queries

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Sale, product or client not found
  - 409: Insufficient stock, details carry every short line
  - 500: Persistence failures (no internal detail is returned)

DATES:
  from/to are YYYY-MM-DD in the server's location. Both ends are inclusive
  days; they are converted to a half-open range [from 00:00, to+1 00:00).

SEE ALSO:
  - dto.go: Request/response data structures
  - products.go: Catalog handlers
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sciv/sales-engine/catalog"
	"github.com/sciv/sales-engine/inventory"
	"github.com/sciv/sales-engine/obs"
	"github.com/sciv/sales-engine/sales"
)

// UserHeader carries the id of the user recording a sale.
const UserHeader = "X-User-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the transactional store plus the reset used by demo scenarios.
type Backend interface {
	inventory.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Backend
	Catalog *catalog.Catalog
	Sales   *sales.Manager
	Records *sales.Records

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the sales manager and record queries over store. loc
// defines "today" and date filters; nil means time.Local.
func NewHandler(store Backend, cat *catalog.Catalog, loc *time.Location) *Handler {
	records := sales.NewRecords(store)
	if loc != nil {
		records.Location = loc
	}
	return &Handler{
		Store:   store,
		Catalog: cat,
		Sales:   sales.NewManager(store),
		Records: records,
	}
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

// CreateSale records a sale.
// POST /api/sales
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	userID, err := userFromHeader(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	saleReq, err := h.toSaleRequest(r.Context(), req, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sale, err := h.Sales.CreateSale(r.Context(), saleReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSaleDTO(*sale))
}

// toSaleRequest fills omitted unit prices from the catalog. Lines whose
// product cannot be resolved keep a zero price; the sale manager reports
// them as unavailable.
func (h *Handler) toSaleRequest(ctx context.Context, req CreateSaleRequest, user inventory.UserID) (inventory.SaleRequest, error) {
	out := inventory.SaleRequest{
		ClientID: inventory.ClientID(req.ClientID),
		UserID:   user,
		Lines:    make([]inventory.LineRequest, 0, len(req.Lines)),
	}
	if req.Discount != nil {
		out.Discount = *req.Discount
	}

	for _, l := range req.Lines {
		line := inventory.LineRequest{
			ProductID: inventory.ProductID(l.ProductID),
			Quantity:  l.Quantity,
		}
		switch {
		case l.UnitPrice != nil:
			line.UnitPrice = *l.UnitPrice
		case l.ProductID > 0:
			p, err := h.Catalog.GetProduct(ctx, line.ProductID)
			if err != nil && !inventory.IsNotFound(err) {
				return inventory.SaleRequest{}, err
			}
			if err == nil && p.IsActive() {
				line.UnitPrice = p.SalePrice
			}
		}
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}

// GetSale returns a sale with its lines.
// GET /api/sales/{id}
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sale, err := h.Records.GetByID(r.Context(), inventory.SaleID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSaleDTO(*sale))
}

// CancelSale voids a sale and restores its stock.
// DELETE /api/sales/{id}
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Sales.CancelSale(r.Context(), inventory.SaleID(id)); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"status": string(inventory.SaleVoided),
	})
}

// ListSales lists sale headers with a summary.
// GET /api/sales?from=YYYY-MM-DD&to=YYYY-MM-DD&client_id=&limit=&include_voided=
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseSaleFilter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	list, err := h.Records.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListSalesResponse(list))
}

// ListToday lists the sales of the current local day.
// GET /api/sales/today
func (h *Handler) ListToday(w http.ResponseWriter, r *http.Request) {
	list, err := h.Records.ListToday(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListSalesResponse(list))
}

// ListClientSales lists the sales of one client.
// GET /api/clients/{id}/sales
func (h *Handler) ListClientSales(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	list, err := h.Records.ListByClient(r.Context(), inventory.ClientID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListSalesResponse(list))
}

// CheckStock reports whether a quantity of a product can be sold now.
// GET /api/sales/stock-check?product_id=&quantity=
func (h *Handler) CheckStock(w http.ResponseWriter, r *http.Request) {
	productID, err := queryInt(r, "product_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	qty, err := queryInt(r, "quantity")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	avail, err := h.Sales.CheckStock(r.Context(), inventory.ProductID(productID), int(qty))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityDTO{
		ProductID:    productID,
		Requested:    int(qty),
		Available:    avail.Available,
		CurrentStock: avail.CurrentStock,
		Shortfall:    avail.Shortfall,
	})
}

func (h *Handler) parseSaleFilter(r *http.Request) (inventory.SaleFilter, error) {
	q := r.URL.Query()
	loc := h.Records.Location
	var filter inventory.SaleFilter

	if v := q.Get("from"); v != "" {
		day, err := sales.ParseDay(v, loc)
		if err != nil {
			return filter, &inventory.ValidationError{Field: "from", Reason: "must be YYYY-MM-DD"}
		}
		filter.From = &day
	}
	if v := q.Get("to"); v != "" {
		day, err := sales.ParseDay(v, loc)
		if err != nil {
			return filter, &inventory.ValidationError{Field: "to", Reason: "must be YYYY-MM-DD"}
		}
		end := day.AddDate(0, 0, 1)
		filter.To = &end
	}
	if q.Get("client_id") != "" {
		id, err := queryInt(r, "client_id")
		if err != nil {
			return filter, err
		}
		client := inventory.ClientID(id)
		filter.ClientID = &client
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, &inventory.ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		filter.Limit = n
	}
	if v := q.Get("include_voided"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, &inventory.ValidationError{Field: "include_voided", Reason: "must be true or false"}
		}
		filter.IncludeVoided = b
	}
	return filter, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the error taxonomy to HTTP statuses. Persistence
// failures are logged and answered without internal detail.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation *inventory.ValidationError
		stock      *inventory.InsufficientStockError
		notFound   *inventory.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   validation.Error(),
			Code:    "validation",
			Details: map[string]string{"field": validation.Field, "reason": validation.Reason},
		})
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Insufficient stock",
			Code:    "insufficient_stock",
			Details: toShortfallDTOs(stock.Shortfalls),
		})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: notFound.Error(),
			Code:  "not_found",
		})
	case errors.Is(err, inventory.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation"})
	default:
		obs.Logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Internal error, please retry",
			Code:  "internal",
		})
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &inventory.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, &inventory.ValidationError{Field: name, Reason: "required"}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &inventory.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return n, nil
}

func userFromHeader(r *http.Request) (inventory.UserID, error) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		return 0, &inventory.ValidationError{Field: "user_id", Reason: UserHeader + " header is required"}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &inventory.ValidationError{Field: "user_id", Reason: "must be a positive integer"}
	}
	return inventory.UserID(id), nil
}
