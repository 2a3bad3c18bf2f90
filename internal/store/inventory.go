package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/borsibaar/ledger/internal/db"
	"github.com/borsibaar/ledger/internal/model"
)

const inventoryColumns = `inv.id, inv.organization_id, inv.product_id, inv.quantity, inv.current_price,
	inv.version, inv.created_at, inv.updated_at, p.name, p.base_price, p.min_price, p.max_price`

const inventoryFrom = ` FROM inventory inv JOIN products p ON p.id = inv.product_id`

// FindByOrg returns the organization's inventory ordered by product name,
// optionally restricted to one category.
func (s *Store) FindByOrg(ctx context.Context, organizationID int64, categoryID *int64) ([]model.Inventory, error) {
	query := `SELECT ` + inventoryColumns + inventoryFrom + ` WHERE inv.organization_id = ?`
	args := []any{organizationID}

	if categoryID != nil {
		query += ` AND p.category_id = ?`
		args = append(args, *categoryID)
	}
	query += ` ORDER BY p.name, inv.id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	defer rows.Close()

	var items []model.Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning inventory: %w", err)
		}
		items = append(items, *inv)
	}
	return items, rows.Err()
}

// FindByOrgAndProduct returns the inventory record for a product, or nil if
// none has been created yet.
func (s *Store) FindByOrgAndProduct(ctx context.Context, organizationID, productID int64) (*model.Inventory, error) {
	return s.findByOrgAndProduct(ctx, s.db, organizationID, productID)
}

func (s *Store) findByOrgAndProduct(ctx context.Context, qr querier, organizationID, productID int64) (*model.Inventory, error) {
	inv, err := scanInventory(qr.QueryRowContext(ctx,
		s.q(`SELECT `+inventoryColumns+inventoryFrom+` WHERE inv.organization_id = ? AND inv.product_id = ?`),
		organizationID, productID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting inventory: %w", err)
	}
	return inv, nil
}

// GetOrCreate returns the product's inventory record, creating it with zero
// quantity at the product's base price if it does not exist yet. Creation
// appends an INITIAL ledger entry in the same transaction.
//
// Concurrent first calls for the same product converge on a single row: the
// unique (organization_id, product_id) constraint rejects all but one insert,
// and the losers read back the winner's row.
func (s *Store) GetOrCreate(ctx context.Context, p *model.Product) (*model.Inventory, error) {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		inv, err := s.FindByOrgAndProduct(ctx, p.OrganizationID, p.ID)
		if err != nil || inv != nil {
			return inv, err
		}

		inv, err = s.createInventory(ctx, p)
		if err == nil {
			return inv, nil
		}
		if !db.IsUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, model.Errorf(model.ErrConflict, "could not create inventory for product %d", p.ID)
}

func (s *Store) createInventory(ctx context.Context, p *model.Product) (*model.Inventory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	id, err := s.insert(ctx, tx,
		`INSERT INTO inventory (organization_id, product_id, quantity, current_price, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		p.OrganizationID, p.ID, decimal.Zero, p.BasePrice, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating inventory: %w", err)
	}

	err = s.insertTransaction(ctx, tx, model.Transaction{
		InventoryID:     id,
		OrganizationID:  p.OrganizationID,
		TransactionType: model.TransactionInitial,
		QuantityChange:  decimal.Zero,
		QuantityBefore:  decimal.Zero,
		QuantityAfter:   decimal.Zero,
		PriceBefore:     p.BasePrice,
		PriceAfter:      p.BasePrice,
		Notes:           "Product created - initial inventory",
		CreatedAt:       ts,
	})
	if err != nil {
		return nil, err
	}

	inv, err := s.findByOrgAndProduct(ctx, tx, p.OrganizationID, p.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing inventory creation: %w", err)
	}
	return inv, nil
}

func scanInventory(row rowScanner) (*model.Inventory, error) {
	inv := &model.Inventory{}
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.ProductID, &inv.Quantity, &inv.CurrentPrice,
		&inv.Version, &inv.CreatedAt, &inv.UpdatedAt,
		&inv.ProductName, &inv.BasePrice, &inv.MinPrice, &inv.MaxPrice)
	if err != nil {
		return nil, err
	}
	return inv, nil
}
