// Package store provides an in-memory inventory.TxStore.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/sciv/sales-engine/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	state    memoryState
	nextSale inventory.SaleID
	nextLine int64
	nextProd inventory.ProductID
}

type memoryState struct {
	products  map[inventory.ProductID]inventory.Product
	clients   map[inventory.ClientID]bool
	sales     map[inventory.SaleID]inventory.Sale
	invoices  map[string]inventory.SaleID
	movements []inventory.StockMovement
	counter   int64
}

func NewMemory() *Memory {
	return &Memory{
		state: memoryState{
			products: make(map[inventory.ProductID]inventory.Product),
			clients:  make(map[inventory.ClientID]bool),
			sales:    make(map[inventory.SaleID]inventory.Sale),
			invoices: make(map[string]inventory.SaleID),
		},
	}
}

// PutProduct inserts or replaces a product. A zero ID gets the next free one.
func (m *Memory) PutProduct(p inventory.Product) inventory.ProductID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextProd++
		p.ID = m.nextProd
	} else if p.ID > m.nextProd {
		m.nextProd = p.ID
	}
	if p.State == "" {
		p.State = inventory.RecordActive
	}
	m.state.products[p.ID] = p
	return p.ID
}

// Product returns a copy of a stored product.
func (m *Memory) Product(id inventory.ProductID) (inventory.Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.state.products[id]
	return p, ok
}

// PutClient registers an active client id.
func (m *Memory) PutClient(id inventory.ClientID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.clients[id] = true
}

func (m *Memory) ProductStock(_ context.Context, id inventory.ProductID) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.productStockLocked(id)
}

func (m *Memory) DecrementStock(_ context.Context, id inventory.ProductID, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decrementLocked(id, qty), nil
}

func (m *Memory) IncrementStock(_ context.Context, id inventory.ProductID, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementLocked(id, qty), nil
}

func (m *Memory) AppendMovement(_ context.Context, mv inventory.StockMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.movements = append(m.state.movements, mv)
	return nil
}

func (m *Memory) Movements(_ context.Context, id inventory.ProductID) ([]inventory.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.movementsLocked(id), nil
}

func (m *Memory) InvoiceCounter(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.counter, nil
}

func (m *Memory) SetInvoiceCounter(_ context.Context, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.counter = n
	return nil
}

func (m *Memory) MaxInvoiceSuffix(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxSuffixLocked(), nil
}

func (m *Memory) InsertSale(_ context.Context, sale *inventory.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSaleLocked(sale)
}

func (m *Memory) GetSale(_ context.Context, id inventory.SaleID) (*inventory.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSaleLocked(id), nil
}

func (m *Memory) VoidSale(_ context.Context, id inventory.SaleID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voidLocked(id), nil
}

func (m *Memory) ListSales(_ context.Context, filter inventory.SaleFilter) ([]inventory.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(filter), nil
}

func (m *Memory) ClientExists(_ context.Context, id inventory.ClientID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clients[id], nil
}

// -----------------------------------------------------------------------------
// locked helpers, shared by Memory and the transactional view
// -----------------------------------------------------------------------------

func (m *Memory) productStockLocked(id inventory.ProductID) (int, bool, error) {
	p, ok := m.state.products[id]
	if !ok || !p.IsActive() {
		return 0, false, nil
	}
	return p.Stock, true, nil
}

func (m *Memory) decrementLocked(id inventory.ProductID, qty int) bool {
	p, ok := m.state.products[id]
	if !ok || !p.IsActive() || p.Stock < qty {
		return false
	}
	p.Stock -= qty
	m.state.products[id] = p
	return true
}

func (m *Memory) incrementLocked(id inventory.ProductID, qty int) bool {
	p, ok := m.state.products[id]
	if !ok {
		return false
	}
	p.Stock += qty
	m.state.products[id] = p
	return true
}

func (m *Memory) movementsLocked(id inventory.ProductID) []inventory.StockMovement {
	var result []inventory.StockMovement
	for _, mv := range m.state.movements {
		if mv.ProductID == id {
			result = append(result, mv)
		}
	}
	return result
}

func (m *Memory) maxSuffixLocked() int64 {
	var highest int64
	for number := range m.state.invoices {
		if n, ok := inventory.ParseInvoiceNumber(number); ok && n > highest {
			highest = n
		}
	}
	return highest
}

func (m *Memory) insertSaleLocked(sale *inventory.Sale) error {
	if _, taken := m.state.invoices[sale.InvoiceNumber]; taken {
		return inventory.ErrDuplicateInvoice
	}
	m.nextSale++
	sale.ID = m.nextSale
	if sale.Status == "" {
		sale.Status = inventory.SaleActive
	}
	lines := make([]inventory.SaleLine, len(sale.Lines))
	for i, l := range sale.Lines {
		m.nextLine++
		l.ID = m.nextLine
		l.SaleID = sale.ID
		lines[i] = l
	}
	sale.Lines = lines

	stored := *sale
	stored.Lines = append([]inventory.SaleLine(nil), lines...)
	m.state.sales[sale.ID] = stored
	m.state.invoices[sale.InvoiceNumber] = sale.ID
	return nil
}

func (m *Memory) getSaleLocked(id inventory.SaleID) *inventory.Sale {
	s, ok := m.state.sales[id]
	if !ok {
		return nil
	}
	s.Lines = append([]inventory.SaleLine(nil), s.Lines...)
	return &s
}

func (m *Memory) voidLocked(id inventory.SaleID) bool {
	s, ok := m.state.sales[id]
	if !ok || s.IsVoided() {
		return false
	}
	s.Status = inventory.SaleVoided
	m.state.sales[id] = s
	return true
}

func (m *Memory) listLocked(filter inventory.SaleFilter) []inventory.Sale {
	result := make([]inventory.Sale, 0)
	for _, s := range m.state.sales {
		if s.IsVoided() && !filter.IncludeVoided {
			continue
		}
		if filter.ClientID != nil && s.ClientID != *filter.ClientID {
			continue
		}
		if filter.From != nil && s.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !s.CreatedAt.Before(*filter.To) {
			continue
		}
		s.Lines = nil
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole call, which serialises transactions.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	state    memoryState
	nextSale inventory.SaleID
	nextLine int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memoryState{
		products:  make(map[inventory.ProductID]inventory.Product, len(tm.state.products)),
		clients:   make(map[inventory.ClientID]bool, len(tm.state.clients)),
		sales:     make(map[inventory.SaleID]inventory.Sale, len(tm.state.sales)),
		invoices:  make(map[string]inventory.SaleID, len(tm.state.invoices)),
		movements: append([]inventory.StockMovement(nil), tm.state.movements...),
		counter:   tm.state.counter,
	}
	for k, v := range tm.state.products {
		s.products[k] = v
	}
	for k, v := range tm.state.clients {
		s.clients[k] = v
	}
	for k, v := range tm.state.sales {
		s.sales[k] = v
	}
	for k, v := range tm.state.invoices {
		s.invoices[k] = v
	}
	return memorySnapshot{state: s, nextSale: tm.nextSale, nextLine: tm.nextLine}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.state = s.state
	tm.nextSale = s.nextSale
	tm.nextLine = s.nextLine
}

// txMemoryView runs against the parent's state without taking its lock;
// WithTx already holds it.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) ProductStock(_ context.Context, id inventory.ProductID) (int, bool, error) {
	return tv.parent.productStockLocked(id)
}

func (tv *txMemoryView) DecrementStock(_ context.Context, id inventory.ProductID, qty int) (bool, error) {
	return tv.parent.decrementLocked(id, qty), nil
}

func (tv *txMemoryView) IncrementStock(_ context.Context, id inventory.ProductID, qty int) (bool, error) {
	return tv.parent.incrementLocked(id, qty), nil
}

func (tv *txMemoryView) AppendMovement(_ context.Context, mv inventory.StockMovement) error {
	tv.parent.state.movements = append(tv.parent.state.movements, mv)
	return nil
}

func (tv *txMemoryView) Movements(_ context.Context, id inventory.ProductID) ([]inventory.StockMovement, error) {
	return tv.parent.movementsLocked(id), nil
}

func (tv *txMemoryView) InvoiceCounter(_ context.Context) (int64, error) {
	return tv.parent.state.counter, nil
}

func (tv *txMemoryView) SetInvoiceCounter(_ context.Context, n int64) error {
	tv.parent.state.counter = n
	return nil
}

func (tv *txMemoryView) MaxInvoiceSuffix(_ context.Context) (int64, error) {
	return tv.parent.maxSuffixLocked(), nil
}

func (tv *txMemoryView) InsertSale(_ context.Context, sale *inventory.Sale) error {
	return tv.parent.insertSaleLocked(sale)
}

func (tv *txMemoryView) GetSale(_ context.Context, id inventory.SaleID) (*inventory.Sale, error) {
	return tv.parent.getSaleLocked(id), nil
}

func (tv *txMemoryView) VoidSale(_ context.Context, id inventory.SaleID) (bool, error) {
	return tv.parent.voidLocked(id), nil
}

func (tv *txMemoryView) ListSales(_ context.Context, filter inventory.SaleFilter) ([]inventory.Sale, error) {
	return tv.parent.listLocked(filter), nil
}

func (tv *txMemoryView) ClientExists(_ context.Context, id inventory.ClientID) (bool, error) {
	return tv.parent.state.clients[id], nil
}
