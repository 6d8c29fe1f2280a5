package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/usdfinancial/backend/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, wallet_address, name, auth_method, last_auth_at, created_at, updated_at`

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はemailでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByWalletAddress はウォレットアドレスでユーザーを検索する。
// アドレスは小文字に正規化して保存・照合する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByWalletAddress(ctx context.Context, address string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE wallet_address = lower($1)`,
		address,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by wallet address: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// email・wallet_addressの一意制約違反はDUPLICATE_ENTRYのServiceErrorとして返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, wallet_address, name, auth_method, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), NULLIF(lower($3), ''), $4, $5, $6, $7)`,
		user.ID, user.Email, user.WalletAddress, user.Name, string(user.AuthMethod),
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return model.NewDuplicateEntryError("user")
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateLastAuth は最終認証時刻と認証手段を更新し、更新後のユーザーを返す。
// 対象が存在しない場合はnilを返す。
func (r *PostgresUserRepo) UpdateLastAuth(ctx context.Context, id string, method model.AuthMethod, at time.Time) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET last_auth_at = $2, auth_method = $3, updated_at = $2
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, at, string(method),
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update last auth: %w", err)
	}
	return user, nil
}

// scanUser は1行分のユーザーをスキャンする。行が存在しない場合は(nil, nil)を返す。
func scanUser(row *sql.Row) (*model.User, error) {
	var (
		user       model.User
		email      sql.NullString
		wallet     sql.NullString
		lastAuthAt sql.NullTime
	)
	err := row.Scan(
		&user.ID, &email, &wallet, &user.Name, &user.AuthMethod,
		&lastAuthAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.Email = email.String
	user.WalletAddress = wallet.String
	if lastAuthAt.Valid {
		t := lastAuthAt.Time
		user.LastAuthAt = &t
	}
	return &user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
