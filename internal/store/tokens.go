package store

import (
	"context"
	"fmt"
	"time"

	"github.com/borsibaar/ledger/internal/db"
)

// RevokeToken adds a token's JTI to the revocation list. Revoking the same
// token twice is not an error.
func (s *Store) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`),
		jti, expiresAt.UTC(),
	)
	if err != nil && !db.IsUniqueViolation(err) {
		return fmt.Errorf("revoking token: %w", err)
	}

	// Opportunistically clean up expired revocations.
	_, _ = s.db.ExecContext(ctx,
		s.q(`DELETE FROM revoked_tokens WHERE expires_at < ?`), now(),
	)

	return nil
}

// IsTokenRevoked checks if a token's JTI has been revoked.
func (s *Store) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`), jti,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return count > 0, nil
}
