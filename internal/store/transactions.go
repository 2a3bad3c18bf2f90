package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/borsibaar/ledger/internal/model"
)

const transactionColumns = `t.id, t.inventory_id, t.organization_id, t.transaction_type, t.quantity_change,
	t.quantity_before, t.quantity_after, t.price_before, t.price_after, t.reference_id, t.notes,
	t.created_by, t.bar_station_id, t.created_at, inv.product_id`

// Commit persists an updated inventory record and its ledger entries in one
// transaction. It fails with model.ErrConflict if the record's version changed
// since it was read.
func (s *Store) Commit(ctx context.Context, inv model.Inventory, txs []model.Transaction) (*model.Inventory, error) {
	updated, err := s.CommitBatch(ctx, []model.Mutation{{Inventory: inv, Transactions: txs}})
	if err != nil {
		return nil, err
	}
	return &updated[0], nil
}

// CommitBatch persists several mutations atomically: either every record and
// entry is written or none is.
func (s *Store) CommitBatch(ctx context.Context, mutations []model.Mutation) ([]model.Inventory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	updated := make([]model.Inventory, 0, len(mutations))

	for _, m := range mutations {
		inv := m.Inventory
		if inv.Quantity.IsNegative() {
			return nil, model.Errorf(model.ErrValidation, "inventory %d quantity would become negative", inv.ID)
		}

		result, err := tx.ExecContext(ctx,
			s.q(`UPDATE inventory
			     SET quantity = ?, current_price = ?, version = version + 1, updated_at = ?
			     WHERE id = ? AND version = ?`),
			inv.Quantity, inv.CurrentPrice, ts, inv.ID, inv.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("updating inventory: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("updating inventory: %w", err)
		}
		if rows == 0 {
			return nil, model.Errorf(model.ErrConflict, "inventory %d was modified concurrently", inv.ID)
		}

		for _, t := range m.Transactions {
			if !t.QuantityBefore.Add(t.QuantityChange).Equal(t.QuantityAfter) || t.QuantityAfter.IsNegative() {
				return nil, model.Errorf(model.ErrValidation, "inconsistent %s entry for inventory %d", t.TransactionType, inv.ID)
			}
			t.InventoryID = inv.ID
			t.OrganizationID = inv.OrganizationID
			if t.CreatedAt.IsZero() {
				t.CreatedAt = ts
			}
			if err := s.insertTransaction(ctx, tx, t); err != nil {
				return nil, err
			}
		}

		inv.Version++
		inv.UpdatedAt = ts
		updated = append(updated, inv)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing inventory update: %w", err)
	}
	return updated, nil
}

func (s *Store) insertTransaction(ctx context.Context, qr querier, t model.Transaction) error {
	var referenceID, notes sql.NullString
	if t.ReferenceID != "" {
		referenceID = sql.NullString{String: t.ReferenceID, Valid: true}
	}
	if t.Notes != "" {
		notes = sql.NullString{String: t.Notes, Valid: true}
	}

	_, err := s.insert(ctx, qr,
		`INSERT INTO inventory_transactions (inventory_id, organization_id, transaction_type, quantity_change,
		     quantity_before, quantity_after, price_before, price_after, reference_id, notes,
		     created_by, bar_station_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.InventoryID, t.OrganizationID, t.TransactionType, t.QuantityChange,
		t.QuantityBefore, t.QuantityAfter, t.PriceBefore, t.PriceAfter, referenceID, notes,
		t.CreatedBy, t.BarStationID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording %s transaction: %w", t.TransactionType, err)
	}
	return nil
}

// History returns the ledger entries of one inventory record, most recent first.
func (s *Store) History(ctx context.Context, inventoryID int64) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+transactionColumns+`
		     FROM inventory_transactions t
		     JOIN inventory inv ON inv.id = t.inventory_id
		     WHERE t.inventory_id = ?
		     ORDER BY t.created_at DESC, t.id DESC`), inventoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting inventory history: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// SaleTransactions returns every SALE entry recorded in an organization, oldest first.
func (s *Store) SaleTransactions(ctx context.Context, organizationID int64) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+transactionColumns+`
		     FROM inventory_transactions t
		     JOIN inventory inv ON inv.id = t.inventory_id
		     WHERE t.organization_id = ? AND t.transaction_type = ?
		     ORDER BY t.created_at, t.id`), organizationID, model.TransactionSale,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sale transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var referenceID, notes sql.NullString
		var createdBy, stationID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.InventoryID, &t.OrganizationID, &t.TransactionType, &t.QuantityChange,
			&t.QuantityBefore, &t.QuantityAfter, &t.PriceBefore, &t.PriceAfter, &referenceID, &notes,
			&createdBy, &stationID, &t.CreatedAt, &t.ProductID); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.ReferenceID = referenceID.String
		t.Notes = notes.String
		t.CreatedBy = nullableID(createdBy)
		t.BarStationID = nullableID(stationID)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
