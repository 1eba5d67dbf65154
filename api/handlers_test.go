/*
handlers_test.go - HTTP tests for the sales, product and client endpoints

Tests run the full router against an in-memory SQLite store.
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciv/sales-engine/catalog"
	"github.com/sciv/sales-engine/sales"
	"github.com/sciv/sales-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gdb, err := catalog.Open("sqlite", store.DB(), false)
	require.NoError(t, err)

	h := NewHandler(store, catalog.New(gdb), time.UTC)
	return &testServer{t: t, handler: h, router: NewRouter(h, nil)}
}

// do sends a request with X-User-ID: 1 and returns the recorder.
func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.doAs(method, path, body, "1")
}

func (s *testServer) doAs(method, path string, body any, user string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createProduct(code string, stock int, price string) ProductDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/products", map[string]any{
		"code":           code,
		"name":           "Product " + code,
		"purchase_price": "1.00",
		"sale_price":     price,
		"stock":          stock,
		"min_stock":      2,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ProductDTO](s.t, rec)
}

func (s *testServer) createClient(name string) ClientDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/clients", ClientRequest{Name: name})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ClientDTO](s.t, rec)
}

func (s *testServer) sell(client, product int64, qty int) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/sales", map[string]any{
		"client_id": client,
		"lines":     []map[string]any{{"product_id": product, "quantity": qty}},
	})
}

// =============================================================================
// SALES
// =============================================================================

func TestCreateSale_Success(t *testing.T) {
	// GIVEN: a product with stock 10 priced 50.00
	// WHEN: selling 4 units with a 20.00 discount
	// THEN: 201 with totals 200/20/180, invoice FACT-000001, stock 6
	s := newTestServer(t)
	p := s.createProduct("A", 10, "50.00")
	c := s.createClient("Ana Lopez")

	rec := s.do(http.MethodPost, "/api/sales", map[string]any{
		"client_id": c.ID,
		"discount":  "20.00",
		"lines": []map[string]any{
			{"product_id": p.ID, "quantity": 4, "unit_price": "50.00"},
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decode[SaleDTO](t, rec)
	assert.Equal(t, "FACT-000001", sale.InvoiceNumber)
	assert.Equal(t, "200.00", sale.Subtotal)
	assert.Equal(t, "20.00", sale.Discount)
	assert.Equal(t, "180.00", sale.Total)
	assert.Equal(t, int64(1), sale.UserID)
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, "200.00", sale.Lines[0].Subtotal)

	got := decode[ProductDTO](t, s.do(http.MethodGet, fmt.Sprintf("/api/products/%d", p.ID), nil))
	assert.Equal(t, 6, got.Stock)
}

func TestCreateSale_DefaultsUnitPriceToSalePrice(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("A", 10, "12.50")
	c := s.createClient("Ana Lopez")

	rec := s.sell(c.ID, p.ID, 2)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decode[SaleDTO](t, rec)
	assert.Equal(t, "12.50", sale.Lines[0].UnitPrice)
	assert.Equal(t, "25.00", sale.Total)
}

func TestCreateSale_RequiresUser(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("A", 10, "1.00")
	c := s.createClient("Ana Lopez")

	for _, user := range []string{"", "abc", "0"} {
		rec := s.doAs(http.MethodPost, "/api/sales", map[string]any{
			"client_id": c.ID,
			"lines":     []map[string]any{{"product_id": p.ID, "quantity": 1}},
		}, user)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "user %q", user)
		assert.Equal(t, "validation", decode[ErrorResponse](t, rec).Code)
	}
}

func TestCreateSale_ValidationErrors(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("A", 10, "1.00")
	c := s.createClient("Ana Lopez")

	tests := []struct {
		name string
		body any
	}{
		{"no lines", map[string]any{"client_id": c.ID, "lines": []any{}}},
		{"zero quantity", map[string]any{"client_id": c.ID, "lines": []map[string]any{{"product_id": p.ID, "quantity": 0}}}},
		{"negative discount", map[string]any{"client_id": c.ID, "discount": "-1", "lines": []map[string]any{{"product_id": p.ID, "quantity": 1}}}},
		{"discount above subtotal", map[string]any{"client_id": c.ID, "discount": "5", "lines": []map[string]any{{"product_id": p.ID, "quantity": 1}}}},
		{"sub-cent unit price", map[string]any{"client_id": c.ID, "lines": []map[string]any{
			{"product_id": p.ID, "quantity": 1, "unit_price": "0.005"},
			{"product_id": p.ID, "quantity": 1, "unit_price": "0.005"},
		}}},
		{"sub-cent discount", map[string]any{"client_id": c.ID, "discount": "0.001", "lines": []map[string]any{{"product_id": p.ID, "quantity": 1}}}},
		{"quantity above cap", map[string]any{"client_id": c.ID, "lines": []map[string]any{{"product_id": p.ID, "quantity": sales.MaxQuantity + 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/sales", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := s.doAs(http.MethodPost, "/api/sales", nil, "1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSale_InsufficientStockReportsEveryLine(t *testing.T) {
	// GIVEN: A has 5, B has 0
	// WHEN: selling 6 A and 1 B
	// THEN: 409 listing both lines, nothing changes
	s := newTestServer(t)
	a := s.createProduct("A", 5, "1.00")
	b := s.createProduct("B", 0, "1.00")
	c := s.createClient("Ana Lopez")

	rec := s.do(http.MethodPost, "/api/sales", map[string]any{
		"client_id": c.ID,
		"lines": []map[string]any{
			{"product_id": a.ID, "quantity": 6},
			{"product_id": b.ID, "quantity": 1},
		},
	})

	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var resp struct {
		Code    string         `json:"code"`
		Details []ShortfallDTO `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient_stock", resp.Code)
	require.Len(t, resp.Details, 2)
	assert.Equal(t, ShortfallDTO{ProductID: a.ID, Requested: 6, Available: 5, Shortfall: 1}, resp.Details[0])
	assert.Equal(t, b.ID, resp.Details[1].ProductID)

	got := decode[ProductDTO](t, s.do(http.MethodGet, fmt.Sprintf("/api/products/%d", a.ID), nil))
	assert.Equal(t, 5, got.Stock)
}

func TestCreateSale_UnknownClient(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("A", 5, "1.00")

	rec := s.sell(999, p.ID, 1)

	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestGetAndCancelSale(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("A", 10, "3.00")
	c := s.createClient("Ana Lopez")
	sale := decode[SaleDTO](t, s.sell(c.ID, p.ID, 4))
	path := fmt.Sprintf("/api/sales/%d", sale.ID)

	rec := s.do(http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[SaleDTO](t, s.do(http.MethodGet, path, nil))
	assert.Equal(t, "voided", got.Status)
	assert.Len(t, got.Lines, 1)

	product := decode[ProductDTO](t, s.do(http.MethodGet, fmt.Sprintf("/api/products/%d", p.ID), nil))
	assert.Equal(t, 10, product.Stock)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/sales/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/sales/abc", nil).Code)
}

func TestListSales_FiltersAndSummary(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("A", 10, "2.50")
	ana := s.createClient("Ana Lopez")
	bob := s.createClient("Bob Stone")
	s.sell(ana.ID, p.ID, 1)
	s.sell(bob.ID, p.ID, 2)
	voided := decode[SaleDTO](t, s.sell(ana.ID, p.ID, 3))
	s.do(http.MethodDelete, fmt.Sprintf("/api/sales/%d", voided.ID), nil)
	today := time.Now().UTC().Format(time.DateOnly)

	all := decode[ListSalesResponse](t, s.do(http.MethodGet, "/api/sales?from="+today+"&to="+today, nil))
	assert.Equal(t, 2, all.Summary.Count)
	assert.Equal(t, "7.50", all.Summary.Total)
	assert.Empty(t, all.Sales[0].Lines)

	withVoided := decode[ListSalesResponse](t, s.do(http.MethodGet, "/api/sales?include_voided=true", nil))
	assert.Equal(t, 3, withVoided.Summary.Count)

	byClient := decode[ListSalesResponse](t, s.do(http.MethodGet, fmt.Sprintf("/api/clients/%d/sales", ana.ID), nil))
	assert.Equal(t, 1, byClient.Summary.Count)
	assert.Equal(t, "2.50", byClient.Summary.Total)

	filtered := decode[ListSalesResponse](t, s.do(http.MethodGet, fmt.Sprintf("/api/sales?client_id=%d", bob.ID), nil))
	assert.Equal(t, 1, filtered.Summary.Count)

	limited := decode[ListSalesResponse](t, s.do(http.MethodGet, "/api/sales?limit=1", nil))
	assert.Len(t, limited.Sales, 1)

	todayList := decode[ListSalesResponse](t, s.do(http.MethodGet, "/api/sales/today", nil))
	assert.Equal(t, 2, todayList.Summary.Count)

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(time.DateOnly)
	none := decode[ListSalesResponse](t, s.do(http.MethodGet, "/api/sales?from="+yesterday+"&to="+yesterday, nil))
	assert.Equal(t, 0, none.Summary.Count)
	assert.Equal(t, "0.00", none.Summary.Total)
	assert.NotNil(t, none.Sales)
}

func TestListSales_BadParameters(t *testing.T) {
	s := newTestServer(t)

	for _, query := range []string{
		"from=01/05/2024",
		"to=yesterday",
		"from=2024-05-03&to=2024-05-01",
		"client_id=x",
		"limit=-1",
		"include_voided=maybe",
	} {
		rec := s.do(http.MethodGet, "/api/sales?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestCheckStock(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("A", 5, "1.00")

	ok := decode[AvailabilityDTO](t, s.do(http.MethodGet, fmt.Sprintf("/api/sales/stock-check?product_id=%d&quantity=5", p.ID), nil))
	assert.True(t, ok.Available)
	assert.Equal(t, 5, ok.CurrentStock)

	short := decode[AvailabilityDTO](t, s.do(http.MethodGet, fmt.Sprintf("/api/sales/stock-check?product_id=%d&quantity=8", p.ID), nil))
	assert.False(t, short.Available)
	assert.Equal(t, 3, short.Shortfall)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/sales/stock-check?product_id=999&quantity=1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, fmt.Sprintf("/api/sales/stock-check?product_id=%d", p.ID), nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, fmt.Sprintf("/api/sales/stock-check?product_id=%d&quantity=0", p.ID), nil).Code)
}

// =============================================================================
// PRODUCTS & CLIENTS
// =============================================================================

func TestProductLifecycle(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("A", 10, "1.00")
	path := fmt.Sprintf("/api/products/%d", p.ID)

	// Update never changes stock
	rec := s.do(http.MethodPut, path, map[string]any{
		"code": "A", "name": "Renamed", "purchase_price": "1", "sale_price": "2", "stock": 0, "min_stock": 20,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[ProductDTO](t, rec)
	assert.Equal(t, 10, updated.Stock)
	assert.Equal(t, "2.00", updated.SalePrice)
	assert.True(t, updated.LowStock)

	low := decode[[]ProductDTO](t, s.do(http.MethodGet, "/api/products/low-stock", nil))
	require.Len(t, low, 1)
	assert.Equal(t, p.ID, low[0].ID)

	// Duplicate code
	dup := s.do(http.MethodPost, "/api/products", map[string]any{"code": "A", "name": "Other", "sale_price": "1"})
	assert.Equal(t, http.StatusBadRequest, dup.Code)

	// Soft delete and restore
	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, path, nil).Code)
	assert.Empty(t, decode[[]ProductDTO](t, s.do(http.MethodGet, "/api/products", nil)))
	assert.Equal(t, "deleted", decode[ProductDTO](t, s.do(http.MethodGet, path, nil)).State)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, path+"/restore", nil).Code)
	assert.Len(t, decode[[]ProductDTO](t, s.do(http.MethodGet, "/api/products", nil)), 1)
}

func TestProductMovements(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("A", 10, "1.00")
	c := s.createClient("Ana Lopez")
	sale := decode[SaleDTO](t, s.sell(c.ID, p.ID, 4))
	s.do(http.MethodDelete, fmt.Sprintf("/api/sales/%d", sale.ID), nil)

	movements := decode[[]MovementDTO](t, s.do(http.MethodGet, fmt.Sprintf("/api/products/%d/movements", p.ID), nil))

	require.Len(t, movements, 2)
	assert.Equal(t, -4, movements[0].Delta)
	assert.Equal(t, "sale", movements[0].Reason)
	assert.Equal(t, 4, movements[1].Delta)
	assert.Equal(t, "cancellation", movements[1].Reason)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/products/999/movements", nil).Code)
}

func TestCategories(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/products/categories", CategoryRequest{Name: "Tools"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cat := decode[CategoryDTO](t, rec)

	rec = s.do(http.MethodPost, "/api/products", map[string]any{
		"code": "H", "name": "Hammer", "sale_price": "9.99", "stock": 1, "category_id": cat.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, decode[ProductDTO](t, rec).CategoryID)

	list := decode[[]CategoryDTO](t, s.do(http.MethodGet, "/api/products/categories", nil))
	assert.Equal(t, []CategoryDTO{cat}, list)
}

func TestClients(t *testing.T) {
	s := newTestServer(t)
	c := s.createClient("Ana Lopez")
	path := fmt.Sprintf("/api/clients/%d", c.ID)

	assert.Equal(t, "Ana Lopez", decode[ClientDTO](t, s.do(http.MethodGet, path, nil)).Name)
	assert.Len(t, decode[[]ClientDTO](t, s.do(http.MethodGet, "/api/clients", nil)), 1)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/clients", ClientRequest{Name: "Al"}).Code)

	rec := s.do(http.MethodPut, path, ClientRequest{Name: "Ana M. Lopez", Document: "20-123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[ClientDTO](t, rec)
	assert.Equal(t, "Ana M. Lopez", updated.Name)
	assert.Equal(t, "20-123", updated.Document)

	// Document is unique among active clients
	rec = s.do(http.MethodPost, "/api/clients", ClientRequest{Name: "Other Ana", Document: "20-123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	details := decode[struct {
		Details map[string]string `json:"details"`
	}](t, rec).Details
	assert.Equal(t, "document", details["field"])

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, path, ClientRequest{Name: "Ana Lopez"}).Code)

	// A deleted client cannot buy
	p := s.createProduct("A", 1, "1.00")
	assert.Equal(t, http.StatusNotFound, s.sell(c.ID, p.ID, 1).Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
