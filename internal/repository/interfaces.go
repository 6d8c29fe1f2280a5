// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/usdfinancial/backend/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はemailでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByWalletAddress はウォレットアドレスでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByWalletAddress(ctx context.Context, address string) (*model.User, error)

	// Create はユーザーを作成する。email・wallet_addressの一意制約違反は
	// DUPLICATE_ENTRYのServiceErrorとして返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateLastAuth は最終認証時刻と認証手段を更新し、更新後のユーザーを返す。
	// 対象が存在しない場合はnilを返す。
	UpdateLastAuth(ctx context.Context, id string, method model.AuthMethod, at time.Time) (*model.User, error)
}

// PreferenceRepository はメール送信設定の永続化インターフェース。
type PreferenceRepository interface {
	// Find は識別子とメール種別で設定を検索する。見つからない場合はnilを返す。
	Find(ctx context.Context, userIdentifier, emailType string) (*model.EmailPreference, error)

	// Upsert は設定を冪等に作成または更新する。
	Upsert(ctx context.Context, pref *model.EmailPreference) error
}
