package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/borsibaar/ledger/internal/model"
)

// UpdatePrice sets a product's current price manually. The price must lie
// within the product's bounds, both inclusive.
func (s *Service) UpdatePrice(ctx context.Context, actor Actor, productID int64, newPrice decimal.Decimal, notes string) (*model.Inventory, error) {
	p, err := s.product(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	if err := checkPrice(p, newPrice); err != nil {
		return nil, err
	}

	var updated *model.Inventory
	err = s.withRetry(ctx, "update_price", func() error {
		inv, err := s.record(ctx, p)
		if err != nil {
			return err
		}

		next := *inv
		next.CurrentPrice = newPrice

		updated, err = s.store.Commit(ctx, next, []model.Transaction{{
			TransactionType: model.TransactionAdjustment,
			QuantityChange:  decimal.Zero,
			QuantityBefore:  inv.Quantity,
			QuantityAfter:   inv.Quantity,
			PriceBefore:     inv.CurrentPrice,
			PriceAfter:      newPrice,
			Notes:           notes,
			CreatedBy:       actor.createdBy(),
		}})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("price updated", "product_id", p.ID, "price", newPrice.String())
	s.notify(ctx, updated)
	return updated, nil
}

func checkPrice(p *model.Product, price decimal.Decimal) error {
	if price.IsNegative() {
		return model.Errorf(model.ErrValidation, "Price must not be negative")
	}
	if p.MinPrice.Valid && price.LessThan(p.MinPrice.Decimal) {
		return model.Errorf(model.ErrValidation, "Price is below minimum price (%s)", p.MinPrice.Decimal)
	}
	if p.MaxPrice.Valid && price.GreaterThan(p.MaxPrice.Decimal) {
		return model.Errorf(model.ErrValidation, "Price is above maximum price (%s)", p.MaxPrice.Decimal)
	}
	return nil
}

// nextPrice is the price after one sale line: raised by the configured
// increase and capped at the product maximum.
func (s *Service) nextPrice(p *model.Product, price decimal.Decimal) decimal.Decimal {
	return p.ClampToMax(price.Add(s.cfg.PriceIncrease))
}
