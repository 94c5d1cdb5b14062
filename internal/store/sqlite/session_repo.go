package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"merrygit_go/internal/domain"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

var _ domain.SessionRepository = (*SessionRepo)(nil)

func (r *SessionRepo) Save(ctx context.Context, s domain.StoredSession) error {
	query := `
		INSERT INTO sessions (id, user_id, sealed_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			sealed_token = excluded.sealed_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`
	var expires sql.NullTime
	if !s.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: s.ExpiresAt.UTC(), Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, s.UserID, s.SealedToken, expires); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Load(ctx context.Context) (domain.StoredSession, error) {
	query := `SELECT user_id, sealed_token, expires_at FROM sessions WHERE id = 1`
	var (
		s       domain.StoredSession
		expires sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query).Scan(&s.UserID, &s.SealedToken, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoredSession{}, domain.ErrNoSession
	}
	if err != nil {
		return domain.StoredSession{}, fmt.Errorf("load session: %w", err)
	}
	if expires.Valid {
		s.ExpiresAt = expires.Time
	}
	return s, nil
}

func (r *SessionRepo) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = 1`); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
