package api

import (
	"encoding/json"
	"net/http"

	"github.com/sciv/sales-engine/inventory"
)

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns active products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

// CreateProduct registers a product with its initial stock.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Catalog.CreateProduct(r.Context(), req.toInput())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(*p))
}

// GetProduct returns a product in any state.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	p, err := h.Catalog.GetProduct(r.Context(), inventory.ProductID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// UpdateProduct replaces the editable fields of a product. Stock is
// ignored: it only moves through sales and cancellations.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Catalog.UpdateProduct(r.Context(), inventory.ProductID(id), req.toInput())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// DeleteProduct soft-deletes a product.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Catalog.DeleteProduct(r.Context(), inventory.ProductID(id)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": string(inventory.RecordDeleted)})
}

// RestoreProduct reactivates a soft-deleted product.
func (h *Handler) RestoreProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Catalog.RestoreProduct(r.Context(), inventory.ProductID(id)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": string(inventory.RecordActive)})
}

// LowStock lists active products at or below their minimum stock.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.LowStock(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

// ProductMovements returns the stock audit trail of a product, oldest first.
func (h *Handler) ProductMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := h.Catalog.GetProduct(r.Context(), inventory.ProductID(id)); err != nil {
		writeDomainError(w, err)
		return
	}

	movements, err := inventory.NewLedger(h.Store).Movements(r.Context(), inventory.ProductID(id))
	if err != nil {
		writeDomainError(w, &inventory.PersistenceError{Op: "list movements", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(movements))
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// ListCategories returns active categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Catalog.Categories(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = CategoryDTO{ID: int64(c.ID), Name: c.Name, Description: c.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCategory adds a category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Catalog.CreateCategory(r.Context(), req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CategoryDTO{ID: int64(c.ID), Name: c.Name, Description: c.Description})
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns active clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Catalog.ListClients(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClient registers a client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Catalog.CreateClient(r.Context(), req.toClient())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(*c))
}

// GetClient returns an active client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	c, err := h.Catalog.GetClient(r.Context(), inventory.ClientID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// UpdateClient replaces a client's contact fields.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Catalog.UpdateClient(r.Context(), inventory.ClientID(id), req.toClient())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// DeleteClient soft-deletes a client. Past sales keep referencing it.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Catalog.DeleteClient(r.Context(), inventory.ClientID(id)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": string(inventory.RecordDeleted)})
}
