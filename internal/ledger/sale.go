package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/borsibaar/ledger/internal/model"
)

const saleNotes = "POS Sale"

// ProcessSale sells every line of req at the current prices. All SALE entries
// share one reference id. How a failing line affects the others depends on
// the configured SaleMode.
func (s *Service) ProcessSale(ctx context.Context, actor Actor, req model.SaleRequest) (*model.Sale, error) {
	if err := validateSale(req); err != nil {
		return nil, err
	}
	if req.BarStationID != nil {
		if err := s.checkStation(ctx, actor, *req.BarStationID); err != nil {
			return nil, err
		}
	}

	if req.IdempotencyKey != "" && s.guard != nil {
		ok, err := s.guard.Acquire(ctx, actor.OrganizationID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, model.Errorf(model.ErrDuplicateRequest, "Sale %q was already submitted", req.IdempotencyKey)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating sale id: %w", err)
	}
	sale := &model.Sale{
		SaleID:      "SALE-" + id.String(),
		Items:       make([]model.SaleLine, 0, len(req.Items)),
		TotalAmount: decimal.Zero,
		Notes:       req.Notes,
	}

	if s.cfg.SaleMode == SaleAtomic {
		err = s.sellAtomic(ctx, actor, req, sale)
	} else {
		err = s.sellPerItem(ctx, actor, req, sale)
	}

	if err != nil && len(sale.Items) == 0 && req.IdempotencyKey != "" && s.guard != nil {
		if relErr := s.guard.Release(ctx, actor.OrganizationID, req.IdempotencyKey); relErr != nil {
			slog.Warn("failed to release idempotency key", "key", req.IdempotencyKey, "error", relErr)
		}
	}
	if err != nil {
		return nil, err
	}

	sale.Timestamp = time.Now().UTC()
	slog.Info("sale processed", "sale_id", sale.SaleID, "items", len(sale.Items), "total", sale.TotalAmount.String())
	return sale, nil
}

func validateSale(req model.SaleRequest) error {
	if len(req.Items) == 0 {
		return model.Errorf(model.ErrValidation, "Sale must contain at least one item")
	}
	if len(req.Items) > model.MaxSaleItems {
		return model.Errorf(model.ErrValidation, "Sale must not contain more than %d items", model.MaxSaleItems)
	}
	for _, item := range req.Items {
		if err := requirePositive(item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkStation(ctx context.Context, actor Actor, stationID int64) error {
	st, err := s.catalog.GetStation(ctx, stationID)
	if err != nil {
		return err
	}
	if st == nil {
		return model.Errorf(model.ErrNotFound, "Bar station not found: %d", stationID)
	}
	if st.OrganizationID != actor.OrganizationID {
		return model.Errorf(model.ErrForbidden, "Bar station does not belong to your organization")
	}
	return nil
}

// sellPerItem commits the lines one by one. sale.Items holds the lines that
// were committed before any failure.
func (s *Service) sellPerItem(ctx context.Context, actor Actor, req model.SaleRequest, sale *model.Sale) error {
	for _, item := range req.Items {
		p, err := s.activeProduct(ctx, actor, item.ProductID)
		if err != nil {
			return err
		}

		var line model.SaleLine
		var updated *model.Inventory
		err = s.withRetry(ctx, "sale", func() error {
			inv, err := s.record(ctx, p)
			if err != nil {
				return err
			}

			next, entry, l, err := s.sellLine(actor, req, sale.SaleID, p, *inv, item.Quantity)
			if err != nil {
				return err
			}
			line = l

			updated, err = s.store.Commit(ctx, next, []model.Transaction{entry})
			return err
		})
		if err != nil {
			return err
		}

		sale.Items = append(sale.Items, line)
		sale.TotalAmount = sale.TotalAmount.Add(line.TotalPrice)
		s.notify(ctx, updated)
	}
	return nil
}

// sellAtomic applies every line in memory and commits them in one
// transaction. A product appearing on several lines is sold from the same
// running record.
func (s *Service) sellAtomic(ctx context.Context, actor Actor, req model.SaleRequest, sale *model.Sale) error {
	products := make(map[int64]*model.Product, len(req.Items))
	for _, item := range req.Items {
		if _, ok := products[item.ProductID]; ok {
			continue
		}
		p, err := s.activeProduct(ctx, actor, item.ProductID)
		if err != nil {
			return err
		}
		products[item.ProductID] = p
	}

	var lines []model.SaleLine
	var updated []model.Inventory
	err := s.withRetry(ctx, "sale", func() error {
		lines = lines[:0]
		var mutations []model.Mutation
		index := make(map[int64]int, len(products))

		for _, item := range req.Items {
			p := products[item.ProductID]

			i, seen := index[p.ID]
			if !seen {
				inv, err := s.record(ctx, p)
				if err != nil {
					return err
				}
				mutations = append(mutations, model.Mutation{Inventory: *inv})
				i = len(mutations) - 1
				index[p.ID] = i
			}

			m := &mutations[i]
			next, entry, line, err := s.sellLine(actor, req, sale.SaleID, p, m.Inventory, item.Quantity)
			if err != nil {
				return err
			}
			m.Inventory.Quantity = next.Quantity
			m.Inventory.CurrentPrice = next.CurrentPrice
			m.Transactions = append(m.Transactions, entry)
			lines = append(lines, line)
		}

		var err error
		updated, err = s.store.CommitBatch(ctx, mutations)
		return err
	})
	if err != nil {
		return err
	}

	for _, line := range lines {
		sale.Items = append(sale.Items, line)
		sale.TotalAmount = sale.TotalAmount.Add(line.TotalPrice)
	}
	for i := range updated {
		s.notify(ctx, &updated[i])
	}
	return nil
}

// sellLine computes the state after selling qty units from inv: the charged
// line, the lowered quantity, the raised price and the SALE entry.
func (s *Service) sellLine(actor Actor, req model.SaleRequest, saleID string, p *model.Product, inv model.Inventory, qty decimal.Decimal) (model.Inventory, model.Transaction, model.SaleLine, error) {
	if inv.Quantity.LessThan(qty) {
		return inv, model.Transaction{}, model.SaleLine{}, model.Errorf(model.ErrInsufficientStock,
			"Insufficient stock for %s. Available: %s, Requested: %s", p.Name, inv.Quantity, qty)
	}

	unit := inv.CurrentPrice
	line := model.SaleLine{
		ProductID:  p.ID,
		Name:       p.Name,
		Quantity:   qty,
		UnitPrice:  unit,
		TotalPrice: unit.Mul(qty),
	}

	next := inv
	next.Quantity = inv.Quantity.Sub(qty)
	next.CurrentPrice = s.nextPrice(p, unit)

	entry := model.Transaction{
		TransactionType: model.TransactionSale,
		QuantityChange:  qty.Neg(),
		QuantityBefore:  inv.Quantity,
		QuantityAfter:   next.Quantity,
		PriceBefore:     unit,
		PriceAfter:      next.CurrentPrice,
		ReferenceID:     saleID,
		Notes:           saleNotes,
		CreatedBy:       actor.createdBy(),
		BarStationID:    req.BarStationID,
	}
	return next, entry, line, nil
}
