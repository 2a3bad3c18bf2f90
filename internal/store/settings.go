package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/borsibaar/ledger/internal/db"
)

// GetJWTSecret retrieves the JWT secret from the database.
// If no secret exists, it generates one, stores it, and returns it.
// Concurrent first calls race on the primary key; the loser reads the winner's value.
func (s *Store) GetJWTSecret(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	candidate := hex.EncodeToString(buf)

	var secret string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT value FROM settings WHERE `+s.keyColumn()+` = 'jwt_secret'`),
	).Scan(&secret)
	if err == nil {
		return secret, nil
	}

	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO settings (`+s.keyColumn()+`, value) VALUES ('jwt_secret', ?)`),
		candidate,
	)
	if err != nil && !db.IsUniqueViolation(err) {
		return "", fmt.Errorf("storing jwt_secret: %w", err)
	}

	// Always read back (either our insert or the existing value).
	err = s.db.QueryRowContext(ctx,
		s.q(`SELECT value FROM settings WHERE `+s.keyColumn()+` = 'jwt_secret'`),
	).Scan(&secret)
	if err != nil {
		return "", fmt.Errorf("querying jwt_secret: %w", err)
	}

	return secret, nil
}

// keyColumn quotes the settings key column, which is a reserved word in MySQL.
func (s *Store) keyColumn() string {
	if s.dialect == db.MySQL {
		return "`key`"
	}
	return "key"
}
