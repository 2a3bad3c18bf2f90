package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/borsibaar/ledger/internal/db"
	"github.com/borsibaar/ledger/internal/model"
)

const productColumns = `id, organization_id, category_id, name, base_price, min_price, max_price,
	is_active, created_at, updated_at`

// CreateProduct adds a product to an organization's catalog.
func (s *Store) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, model.Errorf(model.ErrValidation, "Product name must not be blank")
	}
	if p.BasePrice.IsNegative() {
		return nil, model.Errorf(model.ErrValidation, "Base price must not be negative")
	}
	if p.MinPrice.Valid && p.MaxPrice.Valid && p.MinPrice.Decimal.GreaterThan(p.MaxPrice.Decimal) {
		return nil, model.Errorf(model.ErrValidation, "Max price must be greater than min price")
	}

	if p.CategoryID != nil {
		cat, err := s.GetCategory(ctx, *p.CategoryID)
		if err != nil {
			return nil, err
		}
		if cat == nil {
			return nil, model.Errorf(model.ErrValidation, "Category not found: %d", *p.CategoryID)
		}
		if cat.OrganizationID != p.OrganizationID {
			return nil, model.Errorf(model.ErrValidation, "Category does not belong to the organization")
		}
	}

	ts := now()
	id, err := s.insert(ctx, s.db,
		`INSERT INTO products (organization_id, category_id, name, base_price, min_price, max_price,
		                       is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrganizationID, p.CategoryID, p.Name, p.BasePrice, p.MinPrice, p.MaxPrice, true, ts, ts,
	)
	if db.IsUniqueViolation(err) {
		return nil, model.Errorf(model.ErrConflict, "Product with name '%s' already exists", p.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}

	return s.GetProduct(ctx, id)
}

// GetProduct returns a product by ID, regardless of organization. Returns nil
// if it does not exist.
func (s *Store) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// ProductsByIDs returns the requested products keyed by ID. Unknown IDs are
// absent from the map.
func (s *Store) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]*model.Product, error) {
	products := make(map[int64]*model.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	in, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+productColumns+` FROM products WHERE id IN `+in), args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

// SetProductActive activates or deactivates a product. Deactivation is how
// products are "deleted": their inventory and history are kept.
func (s *Store) SetProductActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE products SET is_active = ?, updated_at = ? WHERE id = ?`),
		active, now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating product: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*model.Product, error) {
	p := &model.Product{}
	var categoryID sql.NullInt64
	err := row.Scan(&p.ID, &p.OrganizationID, &categoryID, &p.Name, &p.BasePrice, &p.MinPrice, &p.MaxPrice,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CategoryID = nullableID(categoryID)
	return p, nil
}

// CreateCategory creates a product category.
func (s *Store) CreateCategory(ctx context.Context, organizationID int64, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.Errorf(model.ErrValidation, "Category name must not be blank")
	}

	id, err := s.insert(ctx, s.db,
		`INSERT INTO categories (organization_id, name) VALUES (?, ?)`,
		organizationID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}
	return &model.Category{ID: id, OrganizationID: organizationID, Name: name}, nil
}

// GetCategory returns a category by ID, or nil.
func (s *Store) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	c := &model.Category{}
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, organization_id, name FROM categories WHERE id = ?`), id,
	).Scan(&c.ID, &c.OrganizationID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting category: %w", err)
	}
	return c, nil
}

// CreateStation creates a bar station. Names are unique per organization,
// ignoring case.
func (s *Store) CreateStation(ctx context.Context, organizationID int64, name string) (*model.BarStation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.Errorf(model.ErrValidation, "Station name must not be blank")
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM bar_stations WHERE organization_id = ? AND LOWER(name) = LOWER(?)`),
		organizationID, name,
	).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("checking station name: %w", err)
	}
	if count > 0 {
		return nil, model.Errorf(model.ErrConflict, "A bar station with this name already exists")
	}

	id, err := s.insert(ctx, s.db,
		`INSERT INTO bar_stations (organization_id, name, is_active) VALUES (?, ?, ?)`,
		organizationID, name, true,
	)
	if err != nil {
		return nil, fmt.Errorf("creating station: %w", err)
	}
	return &model.BarStation{ID: id, OrganizationID: organizationID, Name: name, IsActive: true}, nil
}

// GetStation returns a bar station by ID, or nil.
func (s *Store) GetStation(ctx context.Context, id int64) (*model.BarStation, error) {
	st := &model.BarStation{}
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, organization_id, name, is_active FROM bar_stations WHERE id = ?`), id,
	).Scan(&st.ID, &st.OrganizationID, &st.Name, &st.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting station: %w", err)
	}
	return st, nil
}

// StationsByIDs returns the requested stations keyed by ID.
func (s *Store) StationsByIDs(ctx context.Context, ids []int64) (map[int64]*model.BarStation, error) {
	stations := make(map[int64]*model.BarStation, len(ids))
	if len(ids) == 0 {
		return stations, nil
	}

	in, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, organization_id, name, is_active FROM bar_stations WHERE id IN `+in), args...)
	if err != nil {
		return nil, fmt.Errorf("listing stations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		st := &model.BarStation{}
		if err := rows.Scan(&st.ID, &st.OrganizationID, &st.Name, &st.IsActive); err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		stations[st.ID] = st
	}
	return stations, rows.Err()
}
