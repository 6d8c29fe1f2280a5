// Package auth はウォレット認証プロバイダーの状態調整（reconciliation）を提供する。
package auth

import (
	"context"

	"github.com/usdfinancial/backend/internal/model"
)

// Provider はウォレット認証プロバイダーSDKの表面。
// このレイヤーは報告される状態の形のみに依存し、内部実装は不透明として扱う。
type Provider interface {
	// Connected はプロバイダーが接続済みセッションを報告しているかを返す。
	Connected() bool
	// Identity は現在のセッションのユーザー情報を返す。未認証の場合はnil。
	Identity() *model.ProviderIdentity
	// OpenAuthModal はプロバイダーの認証UIを開く。UIの内容はこのレイヤーの管理外。
	OpenAuthModal(ctx context.Context) error
	// CloseAuthModal は認証UIを閉じる。
	CloseAuthModal()
	// Logout はプロバイダーのセッションを破棄する。
	Logout(ctx context.Context) error
}

// StateEvent はプロバイダーの認証状態の1回分の観測を表す。
// 状態変化のたびに購読ハンドラー（Reconciler.HandleStateChange）へ配送される。
type StateEvent struct {
	Authenticated bool
	Identity      *model.ProviderIdentity
}

// Navigator は認証完了後の画面遷移を実行するインターフェース。
type Navigator interface {
	Navigate(path string)
}

// SummaryCache はローカルにキャッシュされた財務サマリーデータの破棄インターフェース。
// サインアウト時に名前空間単位でクリアする。
type SummaryCache interface {
	ClearNamespace(prefix string)
}

// UserDirectory はユーザーディレクトリへの永続化インターフェース。
// emailまたはウォレットアドレスで既存レコードを検索し、
// 見つかれば最終認証時刻を更新、なければ作成する。
type UserDirectory interface {
	// Upsert はMappedUserを永続化し、永続化後のユーザーと新規作成フラグを返す。
	// 新規 = 過去に一度も認証完了していない（last_auth_at未設定だった）レコード。
	Upsert(ctx context.Context, mapped *model.MappedUser) (*model.User, bool, error)
}

// WelcomeNotifier はウェルカム通知の可否確認と送信のインターフェース。
type WelcomeNotifier interface {
	// CanSend はユーザー設定サービスに送信可否を問い合わせる。
	CanSend(ctx context.Context, userIdentifier, emailType string) (bool, error)
	// SendWelcome はウェルカム通知を送信し、メッセージIDを返す。
	SendWelcome(ctx context.Context, mapped *model.MappedUser) (string, error)
}
