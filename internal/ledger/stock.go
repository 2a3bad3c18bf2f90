package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/borsibaar/ledger/internal/model"
)

// AddStock receives qty units of a product, creating its inventory record on
// first use. The record and its INITIAL entry commit before the purchase, so a
// failed purchase leaves an empty record behind.
func (s *Service) AddStock(ctx context.Context, actor Actor, productID int64, qty decimal.Decimal, notes string) (*model.Inventory, error) {
	if err := requirePositive(qty); err != nil {
		return nil, err
	}
	p, err := s.activeProduct(ctx, actor, productID)
	if err != nil {
		return nil, err
	}

	var updated *model.Inventory
	err = s.withRetry(ctx, "add_stock", func() error {
		inv, err := s.store.GetOrCreate(ctx, p)
		if err != nil {
			return err
		}

		next := *inv
		next.Quantity = inv.Quantity.Add(qty)

		updated, err = s.store.Commit(ctx, next, []model.Transaction{{
			TransactionType: model.TransactionPurchase,
			QuantityChange:  qty,
			QuantityBefore:  inv.Quantity,
			QuantityAfter:   next.Quantity,
			PriceBefore:     inv.CurrentPrice,
			PriceAfter:      inv.CurrentPrice,
			Notes:           notes,
			CreatedBy:       actor.createdBy(),
		}})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("stock added", "product_id", p.ID, "quantity", qty.String(), "total", updated.Quantity.String())
	s.notify(ctx, updated)
	return updated, nil
}

// RemoveStock takes qty units out of stock. The whole quantity must be
// available; nothing is removed otherwise.
func (s *Service) RemoveStock(ctx context.Context, actor Actor, productID int64, qty decimal.Decimal, referenceID, notes string) (*model.Inventory, error) {
	if err := requirePositive(qty); err != nil {
		return nil, err
	}
	p, err := s.activeProduct(ctx, actor, productID)
	if err != nil {
		return nil, err
	}

	var updated *model.Inventory
	err = s.withRetry(ctx, "remove_stock", func() error {
		inv, err := s.record(ctx, p)
		if err != nil {
			return err
		}

		if inv.Quantity.LessThan(qty) {
			return model.Errorf(model.ErrInsufficientStock,
				"Insufficient stock. Available: %s, Requested: %s", inv.Quantity, qty)
		}

		next := *inv
		next.Quantity = inv.Quantity.Sub(qty)

		updated, err = s.store.Commit(ctx, next, []model.Transaction{{
			TransactionType: model.TransactionAdjustment,
			QuantityChange:  qty.Neg(),
			QuantityBefore:  inv.Quantity,
			QuantityAfter:   next.Quantity,
			PriceBefore:     inv.CurrentPrice,
			PriceAfter:      inv.CurrentPrice,
			ReferenceID:     referenceID,
			Notes:           notes,
			CreatedBy:       actor.createdBy(),
		}})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("stock removed", "product_id", p.ID, "quantity", qty.String(), "total", updated.Quantity.String())
	s.notify(ctx, updated)
	return updated, nil
}

// AdjustStock sets the on-hand quantity to an absolute value, typically after
// a stock count. It works on inactive products too.
func (s *Service) AdjustStock(ctx context.Context, actor Actor, productID int64, newQuantity decimal.Decimal, notes string) (*model.Inventory, error) {
	if newQuantity.IsNegative() {
		return nil, model.Errorf(model.ErrValidation, "Quantity must not be negative")
	}
	p, err := s.product(ctx, actor, productID)
	if err != nil {
		return nil, err
	}

	var updated *model.Inventory
	err = s.withRetry(ctx, "adjust_stock", func() error {
		inv, err := s.record(ctx, p)
		if err != nil {
			return err
		}

		next := *inv
		next.Quantity = newQuantity

		updated, err = s.store.Commit(ctx, next, []model.Transaction{{
			TransactionType: model.TransactionAdjustment,
			QuantityChange:  newQuantity.Sub(inv.Quantity),
			QuantityBefore:  inv.Quantity,
			QuantityAfter:   newQuantity,
			PriceBefore:     inv.CurrentPrice,
			PriceAfter:      inv.CurrentPrice,
			Notes:           notes,
			CreatedBy:       actor.createdBy(),
		}})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("stock adjusted", "product_id", p.ID, "total", updated.Quantity.String())
	s.notify(ctx, updated)
	return updated, nil
}

// GetInventory returns the inventory record of one product.
func (s *Service) GetInventory(ctx context.Context, actor Actor, productID int64) (*model.Inventory, error) {
	p, err := s.product(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, p)
}

// ListInventory returns the actor's organization inventory, optionally
// filtered by category.
func (s *Service) ListInventory(ctx context.Context, actor Actor, categoryID *int64) ([]model.Inventory, error) {
	items, err := s.store.FindByOrg(ctx, actor.OrganizationID, categoryID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Inventory{}
	}
	return items, nil
}
