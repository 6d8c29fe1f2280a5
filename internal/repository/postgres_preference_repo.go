package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/usdfinancial/backend/internal/model"
)

// PostgresPreferenceRepo はPostgreSQLを使用したメール送信設定リポジトリ。
type PostgresPreferenceRepo struct {
	db *sql.DB
}

// NewPostgresPreferenceRepo はPostgresPreferenceRepoを生成する。
func NewPostgresPreferenceRepo(db *sql.DB) *PostgresPreferenceRepo {
	return &PostgresPreferenceRepo{db: db}
}

// Find は識別子とメール種別で設定を検索する。見つからない場合はnilを返す。
func (r *PostgresPreferenceRepo) Find(ctx context.Context, userIdentifier, emailType string) (*model.EmailPreference, error) {
	pref := &model.EmailPreference{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_identifier, email_type, allowed, updated_at
		 FROM email_preferences
		 WHERE user_identifier = $1 AND email_type = $2`,
		userIdentifier, emailType,
	).Scan(&pref.UserIdentifier, &pref.EmailType, &pref.Allowed, &pref.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find email preference: %w", err)
	}

	return pref, nil
}

// Upsert は設定を冪等に作成または更新する。
func (r *PostgresPreferenceRepo) Upsert(ctx context.Context, pref *model.EmailPreference) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_preferences (user_identifier, email_type, allowed, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_identifier, email_type)
		 DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = EXCLUDED.updated_at`,
		pref.UserIdentifier, pref.EmailType, pref.Allowed, pref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert email preference: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PreferenceRepository = (*PostgresPreferenceRepo)(nil)
