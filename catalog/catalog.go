/*
Package catalog manages products, categories and clients.

PURPOSE:
  The sale core only reads and moves stock. Everything else about a
  product (code, name, prices, thresholds, lifecycle) and about a client
  is owned here, on top of gorm, against the same database as the store.

RULES:
  - A product code is unique among active products
  - Names have at least 3 characters
  - Prices, stock and minimum stock are never negative
  - Stock is set once, at creation. UpdateProduct never touches it; from
    then on only the stock ledger moves it
  - Deletion is a state change (active -> deleted), never a row delete
  - Restoring a product fails if its code was reused in the meantime

SEE ALSO:
  - inventory/ledger.go: the only writer of stock after creation
  - open.go: gorm over the store's connection
*/
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sciv/sales-engine/inventory"
)

const minNameLength = 3

// Catalog is the gorm-backed product/client registry.
type Catalog struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// =============================================================================
// MODELS
// =============================================================================

// Category groups products. Products reference it by id only.
type Category struct {
	ID          inventory.CategoryID `gorm:"primaryKey"`
	Name        string
	Description string
	State       inventory.RecordState
}

// Client is a buyer referenced by sales.
type Client struct {
	ID        inventory.ClientID `gorm:"primaryKey"`
	Name      string
	Document  string
	Email     string
	Phone     string
	Address   string
	State     inventory.RecordState
	CreatedAt time.Time
}

// ProductInput carries the editable fields of a product. Stock is only
// read by CreateProduct.
type ProductInput struct {
	Code          string
	Name          string
	Description   string
	CategoryID    *inventory.CategoryID
	PurchasePrice inventory.Money
	SalePrice     inventory.Money
	Stock         int
	MinStock      int
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return &inventory.ValidationError{Field: "code", Reason: "required"}
	}
	if len([]rune(strings.TrimSpace(in.Name))) < minNameLength {
		return &inventory.ValidationError{Field: "name", Reason: "must have at least 3 characters"}
	}
	if in.PurchasePrice.IsNegative() {
		return &inventory.ValidationError{Field: "purchase_price", Reason: "must not be negative"}
	}
	if in.SalePrice.IsNegative() {
		return &inventory.ValidationError{Field: "sale_price", Reason: "must not be negative"}
	}
	if in.Stock < 0 {
		return &inventory.ValidationError{Field: "stock", Reason: "must not be negative"}
	}
	if in.MinStock < 0 {
		return &inventory.ValidationError{Field: "min_stock", Reason: "must not be negative"}
	}
	return nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

// CreateProduct registers an active product with its initial stock.
func (c *Catalog) CreateProduct(ctx context.Context, in ProductInput) (*inventory.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.Code)
	if err := c.ensureCodeFree(ctx, code, 0); err != nil {
		return nil, err
	}

	p := inventory.Product{
		Code:          code,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		CategoryID:    in.CategoryID,
		PurchasePrice: in.PurchasePrice,
		SalePrice:     in.SalePrice,
		Stock:         in.Stock,
		MinStock:      in.MinStock,
		State:         inventory.RecordActive,
	}
	if err := c.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, mapWriteError("create product", err)
	}
	return &p, nil
}

// GetProduct returns a product in any state.
func (c *Catalog) GetProduct(ctx context.Context, id inventory.ProductID) (*inventory.Product, error) {
	var p inventory.Product
	err := c.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &inventory.NotFoundError{Kind: "product", ID: int64(id)}
	}
	if err != nil {
		return nil, &inventory.PersistenceError{Op: "get product", Err: err}
	}
	return &p, nil
}

// GetProductByCode returns the active product holding a code.
func (c *Catalog) GetProductByCode(ctx context.Context, code string) (*inventory.Product, error) {
	var p inventory.Product
	err := c.db.WithContext(ctx).
		Where("code = ? AND state = ?", strings.TrimSpace(code), inventory.RecordActive).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &inventory.NotFoundError{Kind: "product", ID: 0}
	}
	if err != nil {
		return nil, &inventory.PersistenceError{Op: "get product by code", Err: err}
	}
	return &p, nil
}

// ListProducts returns active products ordered by name.
func (c *Catalog) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	products := make([]inventory.Product, 0)
	err := c.db.WithContext(ctx).
		Where("state = ?", inventory.RecordActive).
		Order("name ASC").
		Find(&products).Error
	if err != nil {
		return nil, &inventory.PersistenceError{Op: "list products", Err: err}
	}
	return products, nil
}

// UpdateProduct changes every editable field of an active product. in.Stock
// is ignored.
func (c *Catalog) UpdateProduct(ctx context.Context, id inventory.ProductID, in ProductInput) (*inventory.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.Code)
	if err := c.ensureCodeFree(ctx, code, id); err != nil {
		return nil, err
	}

	res := c.db.WithContext(ctx).
		Model(&inventory.Product{}).
		Where("id = ? AND state = ?", id, inventory.RecordActive).
		Updates(map[string]interface{}{
			"code":           code,
			"name":           strings.TrimSpace(in.Name),
			"description":    in.Description,
			"category_id":    in.CategoryID,
			"purchase_price": in.PurchasePrice,
			"sale_price":     in.SalePrice,
			"min_stock":      in.MinStock,
		})
	if res.Error != nil {
		return nil, mapWriteError("update product", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &inventory.NotFoundError{Kind: "product", ID: int64(id)}
	}
	return c.GetProduct(ctx, id)
}

// DeleteProduct soft-deletes an active product.
func (c *Catalog) DeleteProduct(ctx context.Context, id inventory.ProductID) error {
	return c.setProductState(ctx, id, inventory.RecordActive, inventory.RecordDeleted)
}

// RestoreProduct reactivates a deleted product unless its code is taken.
func (c *Catalog) RestoreProduct(ctx context.Context, id inventory.ProductID) error {
	p, err := c.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if p.IsActive() {
		return &inventory.NotFoundError{Kind: "deleted product", ID: int64(id)}
	}
	if err := c.ensureCodeFree(ctx, p.Code, id); err != nil {
		return err
	}
	return c.setProductState(ctx, id, inventory.RecordDeleted, inventory.RecordActive)
}

// LowStock returns active products at or below their minimum, lowest stock first.
func (c *Catalog) LowStock(ctx context.Context) ([]inventory.Product, error) {
	products := make([]inventory.Product, 0)
	err := c.db.WithContext(ctx).
		Where("state = ? AND stock <= min_stock", inventory.RecordActive).
		Order("stock ASC").
		Order("name ASC").
		Find(&products).Error
	if err != nil {
		return nil, &inventory.PersistenceError{Op: "list low stock", Err: err}
	}
	return products, nil
}

func (c *Catalog) setProductState(ctx context.Context, id inventory.ProductID, from, to inventory.RecordState) error {
	res := c.db.WithContext(ctx).
		Model(&inventory.Product{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if res.Error != nil {
		return mapWriteError("set product state", res.Error)
	}
	if res.RowsAffected == 0 {
		return &inventory.NotFoundError{Kind: "product", ID: int64(id)}
	}
	return nil
}

// ensureCodeFree fails when another active product holds code.
func (c *Catalog) ensureCodeFree(ctx context.Context, code string, except inventory.ProductID) error {
	var count int64
	err := c.db.WithContext(ctx).
		Model(&inventory.Product{}).
		Where("code = ? AND state = ? AND id <> ?", code, inventory.RecordActive, except).
		Count(&count).Error
	if err != nil {
		return &inventory.PersistenceError{Op: "check product code", Err: err}
	}
	if count > 0 {
		return &inventory.ValidationError{Field: "code", Reason: "already used by another product"}
	}
	return nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (c *Catalog) CreateCategory(ctx context.Context, name, description string) (*Category, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < minNameLength {
		return nil, &inventory.ValidationError{Field: "name", Reason: "must have at least 3 characters"}
	}
	cat := Category{Name: name, Description: description, State: inventory.RecordActive}
	if err := c.db.WithContext(ctx).Create(&cat).Error; err != nil {
		return nil, mapWriteError("create category", err)
	}
	return &cat, nil
}

// Categories returns active categories ordered by name.
func (c *Catalog) Categories(ctx context.Context) ([]Category, error) {
	categories := make([]Category, 0)
	err := c.db.WithContext(ctx).
		Where("state = ?", inventory.RecordActive).
		Order("name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, &inventory.PersistenceError{Op: "list categories", Err: err}
	}
	return categories, nil
}

// =============================================================================
// CLIENTS
// =============================================================================

func (c *Catalog) CreateClient(ctx context.Context, client Client) (*Client, error) {
	if err := normalizeClient(&client); err != nil {
		return nil, err
	}
	if err := c.ensureDocumentFree(ctx, client.Document, 0); err != nil {
		return nil, err
	}
	client.ID = 0
	client.State = inventory.RecordActive
	if err := c.db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, mapWriteError("create client", err)
	}
	return &client, nil
}

// UpdateClient replaces the contact fields of an active client.
func (c *Catalog) UpdateClient(ctx context.Context, id inventory.ClientID, client Client) (*Client, error) {
	if err := normalizeClient(&client); err != nil {
		return nil, err
	}
	if err := c.ensureDocumentFree(ctx, client.Document, id); err != nil {
		return nil, err
	}

	res := c.db.WithContext(ctx).
		Model(&Client{}).
		Where("id = ? AND state = ?", id, inventory.RecordActive).
		Updates(map[string]interface{}{
			"name":     client.Name,
			"document": client.Document,
			"email":    client.Email,
			"phone":    client.Phone,
			"address":  client.Address,
		})
	if res.Error != nil {
		return nil, &inventory.PersistenceError{Op: "update client", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return nil, &inventory.NotFoundError{Kind: "client", ID: int64(id)}
	}
	return c.GetClient(ctx, id)
}

func normalizeClient(client *Client) error {
	client.Name = strings.TrimSpace(client.Name)
	client.Document = strings.TrimSpace(client.Document)
	if len([]rune(client.Name)) < minNameLength {
		return &inventory.ValidationError{Field: "name", Reason: "must have at least 3 characters"}
	}
	return nil
}

// ensureDocumentFree rejects a tax document already held by another active
// client. Clients without a document are not checked.
func (c *Catalog) ensureDocumentFree(ctx context.Context, document string, except inventory.ClientID) error {
	if document == "" {
		return nil
	}
	var count int64
	err := c.db.WithContext(ctx).
		Model(&Client{}).
		Where("document = ? AND state = ? AND id <> ?", document, inventory.RecordActive, except).
		Count(&count).Error
	if err != nil {
		return &inventory.PersistenceError{Op: "check client document", Err: err}
	}
	if count > 0 {
		return &inventory.ValidationError{Field: "document", Reason: "already used by another client"}
	}
	return nil
}

// GetClient returns an active client.
func (c *Catalog) GetClient(ctx context.Context, id inventory.ClientID) (*Client, error) {
	var client Client
	err := c.db.WithContext(ctx).
		Where("id = ? AND state = ?", id, inventory.RecordActive).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &inventory.NotFoundError{Kind: "client", ID: int64(id)}
	}
	if err != nil {
		return nil, &inventory.PersistenceError{Op: "get client", Err: err}
	}
	return &client, nil
}

// ListClients returns active clients ordered by name.
func (c *Catalog) ListClients(ctx context.Context) ([]Client, error) {
	clients := make([]Client, 0)
	err := c.db.WithContext(ctx).
		Where("state = ?", inventory.RecordActive).
		Order("name ASC").
		Find(&clients).Error
	if err != nil {
		return nil, &inventory.PersistenceError{Op: "list clients", Err: err}
	}
	return clients, nil
}

// DeleteClient soft-deletes a client. Its past sales are untouched.
func (c *Catalog) DeleteClient(ctx context.Context, id inventory.ClientID) error {
	res := c.db.WithContext(ctx).
		Model(&Client{}).
		Where("id = ? AND state = ?", id, inventory.RecordActive).
		Update("state", inventory.RecordDeleted)
	if res.Error != nil {
		return mapWriteError("delete client", res.Error)
	}
	if res.RowsAffected == 0 {
		return &inventory.NotFoundError{Kind: "client", ID: int64(id)}
	}
	return nil
}

// mapWriteError turns a duplicate key that slipped past ensureCodeFree into
// a validation error.
func mapWriteError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &inventory.ValidationError{Field: "code", Reason: "already used by another product"}
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return &inventory.ValidationError{Field: "category_id", Reason: "unknown category"}
	}
	return &inventory.PersistenceError{Op: op, Err: err}
}
