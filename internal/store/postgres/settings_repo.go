package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"merrygit_go/internal/domain"
)

type SettingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

var _ domain.SettingsRepository = (*SettingsRepo)(nil)

func (r *SettingsRepo) Get(ctx context.Context) (domain.Settings, error) {
	var (
		s    domain.Settings
		mode string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT lock_display_mode, custom_lock_text FROM bridge_settings WHERE id = 1`,
	).Scan(&mode, &s.CustomLockText)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	s.LockDisplayMode = domain.LockDisplayMode(mode)
	return s, nil
}

func (r *SettingsRepo) Save(ctx context.Context, s domain.Settings) error {
	query := `
		INSERT INTO bridge_settings (id, lock_display_mode, custom_lock_text, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			lock_display_mode = EXCLUDED.lock_display_mode,
			custom_lock_text  = EXCLUDED.custom_lock_text,
			updated_at        = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, string(s.LockDisplayMode), s.CustomLockText); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
