package ledger

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borsibaar/ledger/internal/model"
)

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{keys: make(map[string]bool)}
}

func (g *memoryGuard) Acquire(ctx context.Context, organizationID int64, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *memoryGuard) Release(ctx context.Context, organizationID int64, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

type recordingObserver struct {
	mu      sync.Mutex
	changed []int64
}

func (o *recordingObserver) InventoryChanged(ctx context.Context, inv *model.Inventory) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changed = append(o.changed, inv.ProductID)
	return nil
}

func saleOf(items ...model.SaleItem) model.SaleRequest {
	return model.SaleRequest{Items: items}
}

func item(productID int64, qty string) model.SaleItem {
	return model.SaleItem{ProductID: productID, Quantity: d(qty)}
}

func TestSaleRaisesPriceUpToMax(t *testing.T) {
	f := newFixture(t, Config{PriceIncrease: d("2.00"), MaxRetries: 5})
	p := f.product(t, "Beer", "2.00", "", "3.00")
	f.stock(t, p, "10")

	sale, err := f.svc.ProcessSale(context.Background(), manager, saleOf(item(p.ID, "1")))
	require.NoError(t, err)
	require.Len(t, sale.Items, 1)
	assert.True(t, sale.Items[0].UnitPrice.Equal(d("2.00")))
	assert.True(t, sale.TotalAmount.Equal(d("2.00")))

	inv, err := f.svc.GetInventory(context.Background(), manager, p.ID)
	require.NoError(t, err)
	assert.True(t, inv.CurrentPrice.Equal(d("3.00")), "got %s", inv.CurrentPrice)
	assert.True(t, inv.Quantity.Equal(d("9")))
}

func TestSaleEntries(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.product(t, "Beer", "2.00", "", "")
	f.stock(t, p, "10")
	station, err := f.store.CreateStation(ctx, org, "Main Bar")
	require.NoError(t, err)

	req := saleOf(item(p.ID, "2"), item(p.ID, "1"))
	req.BarStationID = &station.ID
	req.Notes = "table 4"

	sale, err := f.svc.ProcessSale(ctx, manager, req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sale.SaleID, "SALE-"))
	assert.Equal(t, "table 4", sale.Notes)
	assert.False(t, sale.Timestamp.IsZero())

	// 2 x 2.00, then the price has moved to 2.50.
	require.Len(t, sale.Items, 2)
	assert.True(t, sale.Items[0].TotalPrice.Equal(d("4.00")))
	assert.True(t, sale.Items[1].UnitPrice.Equal(d("2.50")))
	assert.True(t, sale.TotalAmount.Equal(d("6.50")))

	inv, _ := f.svc.GetInventory(ctx, manager, p.ID)
	assert.True(t, inv.Quantity.Equal(d("7")))
	assert.True(t, inv.CurrentPrice.Equal(d("3.00")))

	history := requireChained(t, f.store, inv.ID)
	for _, tx := range history[:2] {
		assert.Equal(t, model.TransactionSale, tx.TransactionType)
		assert.Equal(t, sale.SaleID, tx.ReferenceID)
		assert.Equal(t, "POS Sale", tx.Notes)
		require.NotNil(t, tx.BarStationID)
		assert.Equal(t, station.ID, *tx.BarStationID)
	}
}

func TestSalePerItemKeepsEarlierLines(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	beer := f.product(t, "Beer", "2.00", "", "")
	wine := f.product(t, "Wine", "5.00", "", "")
	f.stock(t, beer, "5")
	f.stock(t, wine, "1")

	_, err := f.svc.ProcessSale(ctx, manager, saleOf(item(beer.ID, "1"), item(wine.ID, "3")))
	require.ErrorIs(t, err, model.ErrInsufficientStock)

	inv, _ := f.svc.GetInventory(ctx, manager, beer.ID)
	assert.True(t, inv.Quantity.Equal(d("4")), "first line stays committed")

	sales, err := f.store.SaleTransactions(ctx, org)
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	inv, _ = f.svc.GetInventory(ctx, manager, wine.ID)
	assert.True(t, inv.Quantity.Equal(d("1")))
}

func TestSaleAtomicCommitsNothingOnFailure(t *testing.T) {
	f := newFixture(t, Config{PriceIncrease: d("0.50"), MaxRetries: 5, SaleMode: SaleAtomic})
	ctx := context.Background()
	beer := f.product(t, "Beer", "2.00", "", "")
	wine := f.product(t, "Wine", "5.00", "", "")
	f.stock(t, beer, "5")
	f.stock(t, wine, "1")

	_, err := f.svc.ProcessSale(ctx, manager, saleOf(item(beer.ID, "1"), item(wine.ID, "3")))
	require.ErrorIs(t, err, model.ErrInsufficientStock)

	inv, _ := f.svc.GetInventory(ctx, manager, beer.ID)
	assert.True(t, inv.Quantity.Equal(d("5")))

	sales, err := f.store.SaleTransactions(ctx, org)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestSaleAtomicRepeatedProduct(t *testing.T) {
	f := newFixture(t, Config{PriceIncrease: d("0.50"), MaxRetries: 5, SaleMode: SaleAtomic})
	ctx := context.Background()
	p := f.product(t, "Beer", "2.00", "", "")
	f.stock(t, p, "3")

	sale, err := f.svc.ProcessSale(ctx, manager, saleOf(item(p.ID, "2"), item(p.ID, "1")))
	require.NoError(t, err)
	assert.True(t, sale.TotalAmount.Equal(d("6.50")))

	inv, _ := f.svc.GetInventory(ctx, manager, p.ID)
	assert.True(t, inv.Quantity.IsZero())
	requireChained(t, f.store, inv.ID)

	_, err = f.svc.ProcessSale(ctx, manager, saleOf(item(p.ID, "1")))
	assert.ErrorIs(t, err, model.ErrInsufficientStock)
}

func TestSaleValidation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.product(t, "Beer", "2.00", "", "")
	f.stock(t, p, "5")

	_, err := f.svc.ProcessSale(ctx, manager, saleOf())
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.ProcessSale(ctx, manager, saleOf(item(p.ID, "0")))
	assert.ErrorIs(t, err, model.ErrValidation)

	many := make([]model.SaleItem, model.MaxSaleItems+1)
	for i := range many {
		many[i] = item(p.ID, "1")
	}
	_, err = f.svc.ProcessSale(ctx, manager, saleOf(many...))
	assert.ErrorIs(t, err, model.ErrValidation)

	missing := int64(999)
	req := saleOf(item(p.ID, "1"))
	req.BarStationID = &missing
	_, err = f.svc.ProcessSale(ctx, manager, req)
	assert.ErrorIs(t, err, model.ErrNotFound)

	foreign, err := f.store.CreateStation(ctx, 2, "Other Bar")
	require.NoError(t, err)
	req.BarStationID = &foreign.ID
	_, err = f.svc.ProcessSale(ctx, manager, req)
	assert.ErrorIs(t, err, model.ErrForbidden)

	inv, _ := f.svc.GetInventory(ctx, manager, p.ID)
	assert.True(t, inv.Quantity.Equal(d("5")))
}

func TestSaleWithoutInventoryRecord(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	p := f.product(t, "Beer", "2.00", "", "")

	_, err := f.svc.ProcessSale(context.Background(), manager, saleOf(item(p.ID, "1")))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSaleIdempotencyKey(t *testing.T) {
	guard := newMemoryGuard()
	f := newFixture(t, DefaultConfig(), WithIdempotencyGuard(guard))
	ctx := context.Background()
	p := f.product(t, "Beer", "2.00", "", "")
	f.stock(t, p, "1")

	req := saleOf(item(p.ID, "2"))
	req.IdempotencyKey = "till-1-0001"

	_, err := f.svc.ProcessSale(ctx, manager, req)
	require.ErrorIs(t, err, model.ErrInsufficientStock)

	// Nothing was committed, so the key is free again.
	req.Items = []model.SaleItem{item(p.ID, "1")}
	_, err = f.svc.ProcessSale(ctx, manager, req)
	require.NoError(t, err)

	_, err = f.svc.ProcessSale(ctx, manager, req)
	assert.ErrorIs(t, err, model.ErrDuplicateRequest)
}

func TestObserverSeesEveryCommit(t *testing.T) {
	obs := &recordingObserver{}
	f := newFixture(t, DefaultConfig(), WithObserver(obs))
	ctx := context.Background()
	p := f.product(t, "Beer", "2.00", "", "")

	f.stock(t, p, "3")
	_, err := f.svc.ProcessSale(ctx, manager, saleOf(item(p.ID, "1")))
	require.NoError(t, err)
	_, err = f.svc.UpdatePrice(ctx, manager, p.ID, d("4.00"), "")
	require.NoError(t, err)

	assert.Equal(t, []int64{p.ID, p.ID, p.ID}, obs.changed)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t, Config{PriceIncrease: d("0.10"), MaxRetries: 100})
	p := f.product(t, "Beer", "2.00", "", "")
	f.stock(t, p, "5")

	const buyers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ProcessSale(context.Background(), manager, saleOf(item(p.ID, "1")))
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, model.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, sold)
	inv, err := f.svc.GetInventory(context.Background(), manager, p.ID)
	require.NoError(t, err)
	assert.True(t, inv.Quantity.IsZero())
	assert.True(t, inv.CurrentPrice.Equal(d("2.50")), "got %s", inv.CurrentPrice)
	requireChained(t, f.store, inv.ID)
}
