package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/borsibaar/ledger/internal/db"
	"github.com/borsibaar/ledger/internal/model"
)

const userColumns = `id, organization_id, name, email, password_hash, role, created_at`

// CreateUser creates a new user in an organization.
func (s *Store) CreateUser(ctx context.Context, organizationID int64, name, email, passwordHash, role string) (*model.User, error) {
	if !model.ValidRole(role) {
		return nil, model.Errorf(model.ErrValidation, "unknown role %q", role)
	}

	id, err := s.insert(ctx, s.db,
		`INSERT INTO users (organization_id, name, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		organizationID, name, strings.ToLower(strings.TrimSpace(email)), passwordHash, role, now(),
	)
	if db.IsUniqueViolation(err) {
		return nil, model.Errorf(model.ErrConflict, "a user with email %s already exists", email)
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return s.GetUser(ctx, id)
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a user by login email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), strings.ToLower(strings.TrimSpace(email))))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns the users of an organization.
func (s *Store) ListUsers(ctx context.Context, organizationID int64) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+userColumns+` FROM users WHERE organization_id = ? ORDER BY id`), organizationID)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserPassword replaces a user's password hash.
func (s *Store) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET password_hash = ? WHERE id = ?`), passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.Errorf(model.ErrNotFound, "user %d not found", id)
	}
	return nil
}

// UsersByIDs returns the requested users keyed by ID.
func (s *Store) UsersByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error) {
	users := make(map[int64]*model.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	in, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id IN `+in), args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}
