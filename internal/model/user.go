// Package model はドメインモデルを定義する。
package model

import "time"

// AuthType はアカウントの大分類（email系かウォレット系か）を表す。
type AuthType string

const (
	AuthTypeEmail  AuthType = "email"
	AuthTypeWallet AuthType = "wallet"
)

// AuthMethod は実際に使用された認証手段を表す。
type AuthMethod string

const (
	AuthMethodEmail   AuthMethod = "email"
	AuthMethodGoogle  AuthMethod = "google"
	AuthMethodWallet  AuthMethod = "wallet"
	AuthMethodPasskey AuthMethod = "passkey"
)

// User はサービス利用ユーザーを表す。
// EmailとWalletAddressのどちらか一方は必ず設定される。
type User struct {
	ID            string
	Email         string
	WalletAddress string
	Name          string
	AuthMethod    AuthMethod
	LastAuthAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsNew はまだ一度も認証完了していないユーザーかどうかを返す。
// last_auth_atが未設定のレコードを新規ユーザーとみなす。
func (u *User) IsNew() bool {
	return u.LastAuthAt == nil
}

// ProviderIdentity はウォレット認証プロバイダーが報告するセッション上のユーザー情報を表す。
// このレイヤーからは読み取り専用で、プロバイダーの状態通知経由でのみ観測される。
type ProviderIdentity struct {
	Address      string
	Email        string
	Name         string
	IDToken      string // OAuthトークンの有無の指標。中身は検証しない
	CredentialID string // パスキー資格情報の有無の指標
}

// MappedUser はProviderIdentityから導出される内部ユーザー表現。
// プロバイダーの状態参照が変わるたびに再計算され、永続化はされない。
type MappedUser struct {
	Address           string
	Email             string
	Name              string
	AuthType          AuthType
	ActualAuthMethod  AuthMethod
	PrimaryIdentifier string
}

// EmailPreference はユーザーごとのメール送信設定を表す。
// レコードが存在しない識別子は送信許可として扱う（オプトアウト方式）。
type EmailPreference struct {
	UserIdentifier string
	EmailType      string
	Allowed        bool
	UpdatedAt      time.Time
}
