/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates categories, products and clients,
	and optionally records sales through the normal sale protocol.

AVAILABLE SCENARIOS:

	small-shop: Catalog of a corner hardware shop, three clients, no sales
	busy-day:   small-shop plus a morning of sales, one of them cancelled

HOW SCENARIOS WORK:
 1. Reset database (clear all data, invoice counter back to zero)
 2. Create categories, products and clients via the catalog
 3. Optionally record sales via the sales manager

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-day"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenarioByID

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and error mapping
  - catalog/catalog.go: Product and client creation rules
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sciv/sales-engine/catalog"
	"github.com/sciv/sales-engine/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-shop",
		Name:        "Small Shop",
		Description: "Hardware shop catalog with three clients and one product running low",
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "Small shop after a morning of sales, including a cancelled one",
	},
}

// demoUser records the scenario sales.
const demoUser inventory.UserID = 1

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.CurrentScenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// CurrentScenario returns the id of the last loaded scenario.
func (h *Handler) CurrentScenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// LoadScenarioByID resets the database and loads a scenario. Loads are
// serialised so two requests never interleave their data.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "small-shop":
		load = func(ctx context.Context) error {
			_, err := h.loadSmallShopScenario(ctx)
			return err
		}
	case "busy-day":
		load = h.loadBusyDayScenario
	default:
		return &inventory.ValidationError{Field: "scenario_id", Reason: fmt.Sprintf("unknown scenario %q", id)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return &inventory.PersistenceError{Op: "reset database", Err: err}
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}
	h.currentScenario = id
	return nil
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeDomainError(w, &inventory.PersistenceError{Op: "reset database", Err: err})
		return
	}
	h.currentScenario = ""

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// shop holds the ids created by the small-shop loader, keyed by product
// code and client name.
type shop struct {
	products map[string]*inventory.Product
	clients  map[string]*catalog.Client
}

func (h *Handler) loadSmallShopScenario(ctx context.Context) (*shop, error) {
	categories := map[string]*catalog.Category{}
	for _, c := range []struct{ name, description string }{
		{"Tools", "Hand tools"},
		{"Fasteners", "Screws, nails and anchors"},
		{"Paint", "Paint and brushes"},
	} {
		created, err := h.Catalog.CreateCategory(ctx, c.name, c.description)
		if err != nil {
			return nil, err
		}
		categories[c.name] = created
	}

	s := &shop{
		products: map[string]*inventory.Product{},
		clients:  map[string]*catalog.Client{},
	}

	products := []struct {
		code, name, category string
		cost, price          string
		stock, min           int
	}{
		{"HAM-16", "Claw hammer 16oz", "Tools", "8.40", "14.90", 25, 5},
		{"SCR-PH2", "Phillips screwdriver PH2", "Tools", "2.10", "4.50", 40, 10},
		{"WSCR-4x40", "Wood screws 4x40 (box of 100)", "Fasteners", "3.00", "6.25", 60, 15},
		{"ANC-8", "Wall anchors 8mm (box of 50)", "Fasteners", "2.75", "5.80", 12, 10},
		{"PNT-W5", "White wall paint 5L", "Paint", "21.00", "34.99", 8, 3},
		{"BRS-50", "Flat brush 50mm", "Paint", "1.20", "2.95", 3, 5},
	}
	for _, p := range products {
		categoryID := categories[p.category].ID
		created, err := h.Catalog.CreateProduct(ctx, catalog.ProductInput{
			Code:          p.code,
			Name:          p.name,
			CategoryID:    &categoryID,
			PurchasePrice: inventory.MustParseMoney(p.cost),
			SalePrice:     inventory.MustParseMoney(p.price),
			Stock:         p.stock,
			MinStock:      p.min,
		})
		if err != nil {
			return nil, err
		}
		s.products[p.code] = created
	}

	clients := []catalog.Client{
		{Name: "Walk-in customer"},
		{Name: "Marta Ruiz", Document: "40.123.456", Email: "marta@example.com", Phone: "555-0101"},
		{Name: "Northside Builders", Document: "30-71234567-8", Email: "orders@northside.example", Address: "12 Quarry Rd"},
	}
	for _, c := range clients {
		created, err := h.Catalog.CreateClient(ctx, c)
		if err != nil {
			return nil, err
		}
		s.clients[c.Name] = created
	}

	return s, nil
}

func (h *Handler) loadBusyDayScenario(ctx context.Context) error {
	s, err := h.loadSmallShopScenario(ctx)
	if err != nil {
		return err
	}

	type line struct {
		code string
		qty  int
	}
	orders := []struct {
		client   string
		discount string
		lines    []line
	}{
		{"Walk-in customer", "0", []line{{"HAM-16", 1}, {"SCR-PH2", 2}}},
		{"Northside Builders", "10.00", []line{{"WSCR-4x40", 12}, {"ANC-8", 4}, {"PNT-W5", 2}}},
		{"Marta Ruiz", "0", []line{{"PNT-W5", 1}, {"BRS-50", 2}}},
		{"Walk-in customer", "0", []line{{"SCR-PH2", 1}}},
	}

	var created []inventory.SaleID
	for _, o := range orders {
		req := inventory.SaleRequest{
			ClientID: s.clients[o.client].ID,
			UserID:   demoUser,
			Discount: inventory.MustParseMoney(o.discount),
		}
		for _, l := range o.lines {
			p := s.products[l.code]
			req.Lines = append(req.Lines, inventory.LineRequest{
				ProductID: p.ID,
				Quantity:  l.qty,
				UnitPrice: p.SalePrice,
			})
		}
		sale, err := h.Sales.CreateSale(ctx, req)
		if err != nil {
			return err
		}
		created = append(created, sale.ID)
	}

	// The last walk-in customer changed their mind.
	return h.Sales.CancelSale(ctx, created[len(created)-1])
}
