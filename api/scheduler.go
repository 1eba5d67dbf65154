/*
scheduler.go - Periodic low-stock monitor

PURPOSE:
  Periodically lists active products at or below their minimum stock and
  reports them, so restocking does not depend on someone opening the
  low-stock page.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Checks once immediately on start, then on every tick
  - An interval of zero (or less) disables the monitor
  - Start and Stop are idempotent; Stop waits for the goroutine to exit

USAGE:
  monitor := NewLowStockMonitor(catalog, 5*time.Minute)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - products.go: LowStock endpoint (on-demand check)
  - catalog/catalog.go: LowStock query
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sciv/sales-engine/catalog"
	"github.com/sciv/sales-engine/inventory"
	"github.com/sciv/sales-engine/obs"
)

// LowStockMonitor reports low-stock products on a ticker.
type LowStockMonitor struct {
	Catalog  *catalog.Catalog
	Interval time.Duration
	Logger   *slog.Logger

	// OnAlert, when set, receives every non-empty check result.
	OnAlert func([]inventory.Product)

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewLowStockMonitor creates a monitor. It does nothing until Start.
func NewLowStockMonitor(cat *catalog.Catalog, interval time.Duration) *LowStockMonitor {
	return &LowStockMonitor{Catalog: cat, Interval: interval}
}

func (m *LowStockMonitor) log() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return obs.Logger
}

// Start begins periodic checks.
func (m *LowStockMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Interval <= 0 {
		m.log().Info("low-stock monitor disabled")
		return
	}
	if m.running {
		return
	}

	m.ticker = time.NewTicker(m.Interval)
	m.stop = make(chan struct{})
	m.running = true
	m.wg.Add(1)

	go m.run(m.ticker, m.stop)

	m.log().Info("low-stock monitor started", "interval", m.Interval.String())
}

// Stop halts the monitor and waits for an in-flight check to finish.
func (m *LowStockMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.ticker.Stop()
	close(m.stop)
	m.wg.Wait()
	m.running = false
	m.log().Info("low-stock monitor stopped")
}

func (m *LowStockMonitor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.Check(ctx)
	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-stop:
			return
		}
	}
}

// Check runs one low-stock pass and returns the products it reported.
func (m *LowStockMonitor) Check(ctx context.Context) []inventory.Product {
	products, err := m.Catalog.LowStock(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.log().Error("low-stock check failed", "error", err)
		}
		return nil
	}
	if len(products) == 0 {
		return nil
	}

	for _, p := range products {
		m.log().Warn("product low on stock",
			"product_id", int64(p.ID),
			"code", p.Code,
			"stock", p.Stock,
			"min_stock", p.MinStock)
	}
	if m.OnAlert != nil {
		m.OnAlert(products)
	}
	return products
}
