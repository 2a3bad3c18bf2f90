// Package stats derives sales statistics and enriched histories from the
// inventory ledger. It only reads; results are snapshots.
package stats

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/borsibaar/ledger/internal/model"
)

const (
	unknownUserName  = "Unknown User"
	unknownUserEmail = "unknown@email.com"
)

// Source is the read side of the ledger and catalog the aggregator needs.
type Source interface {
	SaleTransactions(ctx context.Context, organizationID int64) ([]model.Transaction, error)
	FindByOrgAndProduct(ctx context.Context, organizationID, productID int64) (*model.Inventory, error)
	History(ctx context.Context, inventoryID int64) ([]model.Transaction, error)
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]*model.Product, error)
	UsersByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error)
	StationsByIDs(ctx context.Context, ids []int64) (map[int64]*model.BarStation, error)
}

// Aggregator computes statistics over SALE entries.
type Aggregator struct {
	src Source
}

// New creates an Aggregator.
func New(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// lookups holds the entities referenced by a set of entries.
type lookups struct {
	products map[int64]*model.Product
	users    map[int64]*model.User
	stations map[int64]*model.BarStation
}

// resolve batch-loads everything txs refer to, one query per entity kind.
func (a *Aggregator) resolve(ctx context.Context, txs []model.Transaction) (*lookups, error) {
	productIDs := newIDSet()
	userIDs := newIDSet()
	stationIDs := newIDSet()
	for _, tx := range txs {
		productIDs.add(tx.ProductID)
		if tx.CreatedBy != nil {
			userIDs.add(*tx.CreatedBy)
		}
		if tx.BarStationID != nil {
			stationIDs.add(*tx.BarStationID)
		}
	}

	l := &lookups{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		l.products, err = a.src.ProductsByIDs(gctx, productIDs.ids)
		return err
	})
	g.Go(func() error {
		var err error
		l.users, err = a.src.UsersByIDs(gctx, userIDs.ids)
		return err
	})
	g.Go(func() error {
		var err error
		l.stations, err = a.src.StationsByIDs(gctx, stationIDs.ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return l, nil
}

// revenue returns the amount at base price and the amount actually charged
// for one SALE entry.
func (l *lookups) revenue(tx model.Transaction) (base, charged decimal.Decimal) {
	qty := tx.QuantityChange.Abs()
	charged = qty.Mul(tx.PriceBefore)
	if p, ok := l.products[tx.ProductID]; ok {
		base = qty.Mul(p.BasePrice)
	}
	return base, charged
}

func (l *lookups) stationName(id *int64) string {
	if id == nil {
		return ""
	}
	if st, ok := l.stations[*id]; ok {
		return st.Name
	}
	return ""
}

type userStationKey struct {
	userID     int64
	stationID  int64
	hasStation bool
}

type bucket struct {
	sales   map[string]struct{}
	revenue decimal.Decimal
	charged decimal.Decimal
}

func newBucket() *bucket {
	return &bucket{sales: make(map[string]struct{})}
}

func (b *bucket) add(tx model.Transaction, base, charged decimal.Decimal) {
	if tx.ReferenceID != "" {
		b.sales[tx.ReferenceID] = struct{}{}
	}
	b.revenue = b.revenue.Add(base)
	b.charged = b.charged.Add(charged)
}

// UserSalesStats groups the organization's sales by user and station.
// Revenue is valued at each product's base price; ChargedRevenue uses the
// price in effect when the line was sold.
func (a *Aggregator) UserSalesStats(ctx context.Context, organizationID int64) ([]model.UserSalesStats, error) {
	txs, err := a.src.SaleTransactions(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	var attributed []model.Transaction
	for _, tx := range txs {
		if tx.CreatedBy != nil {
			attributed = append(attributed, tx)
		}
	}

	l, err := a.resolve(ctx, attributed)
	if err != nil {
		return nil, err
	}

	buckets := make(map[userStationKey]*bucket)
	var order []userStationKey
	for _, tx := range attributed {
		key := userStationKey{userID: *tx.CreatedBy}
		if tx.BarStationID != nil {
			key.stationID = *tx.BarStationID
			key.hasStation = true
		}
		b, ok := buckets[key]
		if !ok {
			b = newBucket()
			buckets[key] = b
			order = append(order, key)
		}
		base, charged := l.revenue(tx)
		b.add(tx, base, charged)
	}

	result := make([]model.UserSalesStats, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		s := model.UserSalesStats{
			UserID:         key.userID,
			UserName:       unknownUserName,
			UserEmail:      unknownUserEmail,
			SalesCount:     len(b.sales),
			TotalRevenue:   b.revenue,
			ChargedRevenue: b.charged,
		}
		if u, ok := l.users[key.userID]; ok {
			s.UserName = u.Name
			s.UserEmail = u.Email
		}
		if key.hasStation {
			id := key.stationID
			s.BarStationID = &id
			s.BarStationName = l.stationName(&id)
		}
		result = append(result, s)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SalesCount > result[j].SalesCount
	})
	return result, nil
}

// StationSalesStats groups the organization's sales by bar station. Sales
// made without a station are left out.
func (a *Aggregator) StationSalesStats(ctx context.Context, organizationID int64) ([]model.StationSalesStats, error) {
	txs, err := a.src.SaleTransactions(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	var atStation []model.Transaction
	for _, tx := range txs {
		if tx.BarStationID != nil {
			atStation = append(atStation, tx)
		}
	}

	l, err := a.resolve(ctx, atStation)
	if err != nil {
		return nil, err
	}

	buckets := make(map[int64]*bucket)
	var order []int64
	for _, tx := range atStation {
		id := *tx.BarStationID
		b, ok := buckets[id]
		if !ok {
			b = newBucket()
			buckets[id] = b
			order = append(order, id)
		}
		base, charged := l.revenue(tx)
		b.add(tx, base, charged)
	}

	result := make([]model.StationSalesStats, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		result = append(result, model.StationSalesStats{
			BarStationID:   id,
			BarStationName: l.stationName(&id),
			SalesCount:     len(b.sales),
			TotalRevenue:   b.revenue,
			ChargedRevenue: b.charged,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SalesCount > result[j].SalesCount
	})
	return result, nil
}

// TransactionHistory returns the ledger of one product, most recent first,
// with the acting user's name and email filled in.
func (a *Aggregator) TransactionHistory(ctx context.Context, organizationID, productID int64) ([]model.Transaction, error) {
	inv, err := a.src.FindByOrgAndProduct(ctx, organizationID, productID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, model.Errorf(model.ErrNotFound, "No inventory found for product: %d", productID)
	}

	txs, err := a.src.History(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	userIDs := newIDSet()
	for _, tx := range txs {
		if tx.CreatedBy != nil {
			userIDs.add(*tx.CreatedBy)
		}
	}
	users, err := a.src.UsersByIDs(ctx, userIDs.ids)
	if err != nil {
		return nil, err
	}

	for i := range txs {
		if txs[i].CreatedBy == nil {
			continue
		}
		if u, ok := users[*txs[i].CreatedBy]; ok {
			txs[i].CreatedByName = u.Name
			txs[i].CreatedByEmail = u.Email
		} else {
			txs[i].CreatedByName = unknownUserName
			txs[i].CreatedByEmail = unknownUserEmail
		}
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	return txs, nil
}

type idSet struct {
	seen map[int64]struct{}
	ids  []int64
}

func newIDSet() *idSet {
	return &idSet{seen: make(map[int64]struct{})}
}

func (s *idSet) add(id int64) {
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}
