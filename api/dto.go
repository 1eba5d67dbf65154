/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are rendered as strings with two decimals ("180.00"). Requests
  accept either JSON numbers or strings; both decode into decimal.Decimal
  without passing through float64.

VALIDATION:
  Validation is done by the sales manager and the catalog, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go, products.go: Use these types
*/
package api

import (
	"time"

	"github.com/sciv/sales-engine/catalog"
	"github.com/sciv/sales-engine/inventory"
	"github.com/sciv/sales-engine/sales"
)

// =============================================================================
// SALES
// =============================================================================

// SaleLineRequest is one line of a new sale. UnitPrice defaults to the
// product's current sale price when omitted.
type SaleLineRequest struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *inventory.Money `json:"unit_price,omitempty"`
}

// CreateSaleRequest is the request to record a sale.
type CreateSaleRequest struct {
	ClientID int64             `json:"client_id"`
	Discount *inventory.Money  `json:"discount,omitempty"`
	Lines    []SaleLineRequest `json:"lines"`
}

// SaleDTO represents a sale in API responses. Lines are omitted in listings.
type SaleDTO struct {
	ID            int64         `json:"id"`
	InvoiceNumber string        `json:"invoice_number"`
	ClientID      int64         `json:"client_id"`
	UserID        int64         `json:"user_id"`
	Subtotal      string        `json:"subtotal"`
	Discount      string        `json:"discount"`
	Total         string        `json:"total"`
	Status        string        `json:"status"`
	CreatedAt     string        `json:"created_at"`
	Lines         []SaleLineDTO `json:"lines,omitempty"`
}

// SaleLineDTO represents one line of a sale.
type SaleLineDTO struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

// SummaryDTO aggregates a sale listing.
type SummaryDTO struct {
	Count int    `json:"count"`
	Total string `json:"total"`
}

// ListSalesResponse wraps a listing with its summary.
type ListSalesResponse struct {
	Sales   []SaleDTO  `json:"sales"`
	Summary SummaryDTO `json:"summary"`
}

// AvailabilityDTO is the result of a stock check.
type AvailabilityDTO struct {
	ProductID    int64 `json:"product_id"`
	Requested    int   `json:"requested"`
	Available    bool  `json:"available"`
	CurrentStock int   `json:"current_stock"`
	Shortfall    int   `json:"shortfall"`
}

// ShortfallDTO describes one line that stock cannot cover.
type ShortfallDTO struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
	Shortfall int   `json:"shortfall"`
	Missing   bool  `json:"missing,omitempty"`
}

// MovementDTO represents one stock movement.
type MovementDTO struct {
	ID        string `json:"id"`
	ProductID int64  `json:"product_id"`
	SaleID    int64  `json:"sale_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// CATALOG
// =============================================================================

// ProductRequest creates or updates a product. Stock is ignored on update.
type ProductRequest struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	CategoryID    *int64          `json:"category_id,omitempty"`
	PurchasePrice inventory.Money `json:"purchase_price"`
	SalePrice     inventory.Money `json:"sale_price"`
	Stock         int             `json:"stock"`
	MinStock      int             `json:"min_stock"`
}

// ProductDTO represents a product in API responses.
type ProductDTO struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	CategoryID    *int64 `json:"category_id,omitempty"`
	PurchasePrice string `json:"purchase_price"`
	SalePrice     string `json:"sale_price"`
	Stock         int    `json:"stock"`
	MinStock      int    `json:"min_stock"`
	LowStock      bool   `json:"low_stock"`
	State         string `json:"state"`
}

// CategoryRequest creates a category.
type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CategoryDTO represents a product category.
type CategoryDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ClientRequest creates or updates a client.
type ClientRequest struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Document  string `json:"document,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(m inventory.Money) string {
	return m.StringFixed(2)
}

func toSaleDTO(s inventory.Sale) SaleDTO {
	dto := SaleDTO{
		ID:            int64(s.ID),
		InvoiceNumber: s.InvoiceNumber,
		ClientID:      int64(s.ClientID),
		UserID:        int64(s.UserID),
		Subtotal:      money(s.Subtotal),
		Discount:      money(s.Discount),
		Total:         money(s.Total),
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
	}
	for _, l := range s.Lines {
		dto.Lines = append(dto.Lines, SaleLineDTO{
			ID:        l.ID,
			ProductID: int64(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: money(l.UnitPrice),
			Subtotal:  money(l.Subtotal),
		})
	}
	return dto
}

func toListSalesResponse(list []inventory.Sale) ListSalesResponse {
	dtos := make([]SaleDTO, len(list))
	for i, s := range list {
		dtos[i] = toSaleDTO(s)
	}
	summary := sales.Summarize(list)
	return ListSalesResponse{
		Sales:   dtos,
		Summary: SummaryDTO{Count: summary.Count, Total: money(summary.Total)},
	}
}

func toShortfallDTOs(shortfalls []inventory.Shortfall) []ShortfallDTO {
	dtos := make([]ShortfallDTO, len(shortfalls))
	for i, s := range shortfalls {
		dtos[i] = ShortfallDTO{
			ProductID: int64(s.ProductID),
			Requested: s.Requested,
			Available: s.Available,
			Shortfall: s.Shortfall,
			Missing:   s.Missing,
		}
	}
	return dtos
}

func toMovementDTOs(movements []inventory.StockMovement) []MovementDTO {
	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = MovementDTO{
			ID:        m.ID,
			ProductID: int64(m.ProductID),
			SaleID:    int64(m.SaleID),
			Delta:     m.Delta,
			Reason:    string(m.Reason),
			CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		}
	}
	return dtos
}

func toProductDTO(p inventory.Product) ProductDTO {
	dto := ProductDTO{
		ID:            int64(p.ID),
		Code:          p.Code,
		Name:          p.Name,
		Description:   p.Description,
		PurchasePrice: money(p.PurchasePrice),
		SalePrice:     money(p.SalePrice),
		Stock:         p.Stock,
		MinStock:      p.MinStock,
		LowStock:      p.IsLowStock(),
		State:         string(p.State),
	}
	if p.CategoryID != nil {
		id := int64(*p.CategoryID)
		dto.CategoryID = &id
	}
	return dto
}

func toProductDTOs(products []inventory.Product) []ProductDTO {
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	return dtos
}

func (req ProductRequest) toInput() catalog.ProductInput {
	in := catalog.ProductInput{
		Code:          req.Code,
		Name:          req.Name,
		Description:   req.Description,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		Stock:         req.Stock,
		MinStock:      req.MinStock,
	}
	if req.CategoryID != nil {
		id := inventory.CategoryID(*req.CategoryID)
		in.CategoryID = &id
	}
	return in
}

func (r ClientRequest) toClient() catalog.Client {
	return catalog.Client{
		Name:     r.Name,
		Document: r.Document,
		Email:    r.Email,
		Phone:    r.Phone,
		Address:  r.Address,
	}
}

func toClientDTO(c catalog.Client) ClientDTO {
	dto := ClientDTO{
		ID:       int64(c.ID),
		Name:     c.Name,
		Document: c.Document,
		Email:    c.Email,
		Phone:    c.Phone,
		Address:  c.Address,
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	return dto
}
