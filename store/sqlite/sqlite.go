/*
Package sqlite provides a SQLite-backed implementation of inventory.TxStore.

PURPOSE:
  Persists products' stock, sales, sale lines, stock movements and the
  invoice counter. Catalog records (products, clients, categories) live in
  the same database and are managed by the catalog package through gorm;
  this package only owns the schema and the sale-side statements.

KEY TABLES:
  products:         catalog + stock (stock CHECK >= 0 as a last line of defence)
  clients:          buyers; sales reference them
  categories:       product grouping
  sales:            sale headers, invoice_number UNIQUE
  sale_lines:       immutable lines of a sale
  stock_movements:  append-only audit of every stock mutation
  invoice_counter:  single row holding the last issued invoice sequence

INDEXES:
  - idx_products_active_code: code unique among active products
  - idx_sales_created_at:      date range listings (hot path)
  - idx_sales_client:          per-client listings
  - idx_movements_product:     stock audit per product

CONCURRENCY:
  The pool is limited to one connection and transactions start with
  BEGIN IMMEDIATE (_txlock=immediate), so every WithTx call holds the write
  lock for its whole duration. Code running inside WithTx must only use the
  transaction handle; touching the pool from inside would wait forever for
  the single connection.

TIMESTAMPS:
  Sale and movement timestamps are stored as fixed-width UTC text
  (timeLayout) so that string comparison matches time order.

USAGE:
  store, err := sqlite.New("./data/sales.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  manager := sales.NewManager(store)

SEE ALSO:
  - inventory/store.go: interface definitions
  - store/postgres: the PostgreSQL implementation
  - catalog: product and client management over DB()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sciv/sales-engine/inventory"
)

// timeLayout sorts lexicographically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// qb builds statements with ? placeholders.
var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Store implements inventory.TxStore using SQLite.
type Store struct {
	conn
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" a single database and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{conn: conn{r: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the catalog layer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'active'
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category_id INTEGER REFERENCES categories(id),
		purchase_price TEXT NOT NULL DEFAULT '0',
		sale_price TEXT NOT NULL DEFAULT '0',
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		min_stock INTEGER NOT NULL DEFAULT 0 CHECK (min_stock >= 0),
		state TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- A code may be reused once the product holding it is soft-deleted
	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_active_code
		ON products(code) WHERE state = 'active';

	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		document TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_number TEXT NOT NULL UNIQUE,
		client_id INTEGER NOT NULL REFERENCES clients(id),
		user_id INTEGER NOT NULL,
		subtotal TEXT NOT NULL,
		discount TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_created_at
		ON sales(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sales_client
		ON sales(client_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS sale_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sales(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price TEXT NOT NULL,
		subtotal TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sale_lines_sale
		ON sale_lines(sale_id);

	-- Append-only: no UPDATE or DELETE is ever issued against this table
	CREATE TABLE IF NOT EXISTS stock_movements (
		id TEXT PRIMARY KEY,
		product_id INTEGER NOT NULL REFERENCES products(id),
		sale_id INTEGER NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_product
		ON stock_movements(product_id, created_at);

	CREATE TABLE IF NOT EXISTS invoice_counter (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_number INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO invoice_counter (id, last_number) VALUES (1, 0);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{r: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// STATEMENTS - shared by the pool and the transaction view
// =============================================================================

// conn runs every statement against either the pool or one transaction.
type conn struct {
	r sq.StdSqlCtx
}

func (c *conn) ProductStock(ctx context.Context, id inventory.ProductID) (int, bool, error) {
	var stock int
	err := qb.Select("stock").
		From("products").
		Where(sq.Eq{"id": id, "state": string(inventory.RecordActive)}).
		RunWith(c.r).
		QueryRowContext(ctx).
		Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read stock: %w", err)
	}
	return stock, true, nil
}

func (c *conn) DecrementStock(ctx context.Context, id inventory.ProductID, qty int) (bool, error) {
	res, err := qb.Update("products").
		Set("stock", sq.Expr("stock - ?", qty)).
		Where(sq.Eq{"id": id, "state": string(inventory.RecordActive)}).
		Where(sq.GtOrEq{"stock": qty}).
		RunWith(c.r).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return affectedOne(res)
}

func (c *conn) IncrementStock(ctx context.Context, id inventory.ProductID, qty int) (bool, error) {
	res, err := qb.Update("products").
		Set("stock", sq.Expr("stock + ?", qty)).
		Where(sq.Eq{"id": id}).
		RunWith(c.r).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to increment stock: %w", err)
	}
	return affectedOne(res)
}

func (c *conn) AppendMovement(ctx context.Context, m inventory.StockMovement) error {
	_, err := qb.Insert("stock_movements").
		SetMap(map[string]interface{}{
			"id":         m.ID,
			"product_id": m.ProductID,
			"sale_id":    m.SaleID,
			"delta":      m.Delta,
			"reason":     string(m.Reason),
			"created_at": formatTime(m.CreatedAt),
		}).
		RunWith(c.r).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

func (c *conn) Movements(ctx context.Context, id inventory.ProductID) ([]inventory.StockMovement, error) {
	rows, err := qb.Select("id", "product_id", "sale_id", "delta", "reason", "created_at").
		From("stock_movements").
		Where(sq.Eq{"product_id": id}).
		OrderBy("created_at ASC", "rowid ASC").
		RunWith(c.r).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []inventory.StockMovement
	for rows.Next() {
		var (
			m         inventory.StockMovement
			reason    string
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &m.SaleID, &m.Delta, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.Reason = inventory.MovementReason(reason)
		m.CreatedAt = parseTime(createdAt)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (c *conn) InvoiceCounter(ctx context.Context) (int64, error) {
	var n int64
	err := qb.Select("last_number").
		From("invoice_counter").
		Where(sq.Eq{"id": 1}).
		RunWith(c.r).
		QueryRowContext(ctx).
		Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read invoice counter: %w", err)
	}
	return n, nil
}

func (c *conn) SetInvoiceCounter(ctx context.Context, n int64) error {
	_, err := qb.Insert("invoice_counter").
		Columns("id", "last_number").
		Values(1, n).
		Suffix("ON CONFLICT(id) DO UPDATE SET last_number = excluded.last_number").
		RunWith(c.r).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to write invoice counter: %w", err)
	}
	return nil
}

func (c *conn) MaxInvoiceSuffix(ctx context.Context) (int64, error) {
	column := fmt.Sprintf("COALESCE(MAX(CAST(SUBSTR(invoice_number, %d) AS INTEGER)), 0)",
		len(inventory.InvoicePrefix)+1)
	var n int64
	err := qb.Select(column).
		From("sales").
		Where(sq.Like{"invoice_number": inventory.InvoicePrefix + "%"}).
		RunWith(c.r).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to read invoice history: %w", err)
	}
	return n, nil
}

func (c *conn) InsertSale(ctx context.Context, sale *inventory.Sale) error {
	if sale.Status == "" {
		sale.Status = inventory.SaleActive
	}
	res, err := qb.Insert("sales").
		SetMap(map[string]interface{}{
			"invoice_number": sale.InvoiceNumber,
			"client_id":      sale.ClientID,
			"user_id":        sale.UserID,
			"subtotal":       sale.Subtotal.String(),
			"discount":       sale.Discount.String(),
			"total":          sale.Total.String(),
			"status":         string(sale.Status),
			"created_at":     formatTime(sale.CreatedAt),
		}).
		RunWith(c.r).
		ExecContext(ctx)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "invoice_number") {
			return inventory.ErrDuplicateInvoice
		}
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read sale id: %w", err)
	}
	sale.ID = inventory.SaleID(id)

	for i := range sale.Lines {
		line := &sale.Lines[i]
		line.SaleID = sale.ID
		res, err := qb.Insert("sale_lines").
			SetMap(map[string]interface{}{
				"sale_id":    line.SaleID,
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
				"unit_price": line.UnitPrice.String(),
				"subtotal":   line.Subtotal.String(),
			}).
			RunWith(c.r).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert sale line: %w", err)
		}
		if line.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read sale line id: %w", err)
		}
	}
	return nil
}

var saleColumns = []string{
	"id", "invoice_number", "client_id", "user_id",
	"subtotal", "discount", "total", "status", "created_at",
}

func (c *conn) GetSale(ctx context.Context, id inventory.SaleID) (*inventory.Sale, error) {
	row := qb.Select(saleColumns...).
		From("sales").
		Where(sq.Eq{"id": id}).
		RunWith(c.r).
		QueryRowContext(ctx)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := qb.Select("id", "sale_id", "product_id", "quantity", "unit_price", "subtotal").
		From("sale_lines").
		Where(sq.Eq{"sale_id": id}).
		OrderBy("id ASC").
		RunWith(c.r).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l inventory.SaleLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, fmt.Errorf("failed to scan sale line: %w", err)
		}
		sale.Lines = append(sale.Lines, l)
	}
	return &sale, rows.Err()
}

func (c *conn) VoidSale(ctx context.Context, id inventory.SaleID) (bool, error) {
	res, err := qb.Update("sales").
		Set("status", string(inventory.SaleVoided)).
		Where(sq.Eq{"id": id, "status": string(inventory.SaleActive)}).
		RunWith(c.r).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to void sale: %w", err)
	}
	return affectedOne(res)
}

func (c *conn) ListSales(ctx context.Context, filter inventory.SaleFilter) ([]inventory.Sale, error) {
	query := qb.Select(saleColumns...).From("sales")
	if !filter.IncludeVoided {
		query = query.Where(sq.Eq{"status": string(inventory.SaleActive)})
	}
	if filter.ClientID != nil {
		query = query.Where(sq.Eq{"client_id": *filter.ClientID})
	}
	if filter.From != nil {
		query = query.Where(sq.GtOrEq{"created_at": formatTime(*filter.From)})
	}
	if filter.To != nil {
		query = query.Where(sq.Lt{"created_at": formatTime(*filter.To)})
	}
	query = query.OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	rows, err := query.RunWith(c.r).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	sales := make([]inventory.Sale, 0)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (c *conn) ClientExists(ctx context.Context, id inventory.ClientID) (bool, error) {
	var count int
	err := qb.Select("COUNT(*)").
		From("clients").
		Where(sq.Eq{"id": id, "state": string(inventory.RecordActive)}).
		RunWith(c.r).
		QueryRowContext(ctx).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check client: %w", err)
	}
	return count > 0, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tables := []string{"stock_movements", "sale_lines", "sales", "products", "categories", "clients"}
	for _, table := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM sqlite_sequence"); err != nil {
		return err
	}
	if _, err := sqlTx.ExecContext(ctx, "UPDATE invoice_counter SET last_number = 0"); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and squirrel's RowScanner.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (inventory.Sale, error) {
	var (
		sale      inventory.Sale
		status    string
		createdAt string
	)
	err := row.Scan(
		&sale.ID, &sale.InvoiceNumber, &sale.ClientID, &sale.UserID,
		&sale.Subtotal, &sale.Discount, &sale.Total, &status, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return sale, err
	}
	if err != nil {
		return sale, fmt.Errorf("failed to scan sale: %w", err)
	}
	sale.Status = inventory.SaleStatus(status)
	sale.CreatedAt = parseTime(createdAt)
	return sale, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
