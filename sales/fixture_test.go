package sales_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sciv/sales-engine/inventory"
	"github.com/sciv/sales-engine/inventory/store"
	"github.com/sciv/sales-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP - every protocol test runs against each backend
// =============================================================================

type fixture struct {
	store      inventory.TxStore
	addProduct func(code string, stock int) inventory.ProductID
	addClient  func() inventory.ClientID
	stockOf    func(id inventory.ProductID) int
}

func memoryFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewTxMemory()
	var nextClient inventory.ClientID
	return &fixture{
		store: mem,
		addProduct: func(code string, stock int) inventory.ProductID {
			return mem.PutProduct(inventory.Product{
				Code: code, Name: "Product " + code, Stock: stock,
				SalePrice: inventory.NewMoney(50),
			})
		},
		addClient: func() inventory.ClientID {
			nextClient++
			mem.PutClient(nextClient)
			return nextClient
		},
		stockOf: func(id inventory.ProductID) int {
			p, ok := mem.Product(id)
			require.True(t, ok)
			return p.Stock
		},
	}
}

func sqliteFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &fixture{
		store: s,
		addProduct: func(code string, stock int) inventory.ProductID {
			res, err := s.DB().Exec(
				`INSERT INTO products (code, name, sale_price, stock) VALUES (?, ?, '50.00', ?)`,
				code, "Product "+code, stock)
			require.NoError(t, err)
			id, err := res.LastInsertId()
			require.NoError(t, err)
			return inventory.ProductID(id)
		},
		addClient: func() inventory.ClientID {
			res, err := s.DB().Exec(`INSERT INTO clients (name) VALUES ('Client')`)
			require.NoError(t, err)
			id, err := res.LastInsertId()
			require.NoError(t, err)
			return inventory.ClientID(id)
		},
		stockOf: func(id inventory.ProductID) int {
			var stock int
			require.NoError(t, s.DB().QueryRow(`SELECT stock FROM products WHERE id = ?`, id).Scan(&stock))
			return stock
		},
	}
}

// eachBackend runs fn once per storage backend as a subtest.
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	backends := map[string]func(*testing.T) *fixture{
		"memory": memoryFixture,
		"sqlite": sqliteFixture,
	}
	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, build(t))
		})
	}
}

func line(p inventory.ProductID, qty int, price string) inventory.LineRequest {
	return inventory.LineRequest{ProductID: p, Quantity: qty, UnitPrice: inventory.MustParseMoney(price)}
}
