package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/usdfinancial/backend/internal/model"
)

// summaryCachePrefix はサインアウト時に破棄する財務サマリーキャッシュの名前空間。
const summaryCachePrefix = "fin_summary:"

// welcomeEmailType はウェルカム通知のメール種別。送信可否設定の照会に使用する。
const welcomeEmailType = "welcome"

// AuthResult はAuthenticateの結果を表す。
// Authenticateはエラーを返さず、失敗はErrorフィールドに記録される。
type AuthResult struct {
	Success bool
	Error   string
}

// processedAuthMarker は副作用パイプラインの実行済みマーカー。
// 同一PrimaryIdentifierに対する永続化・通知をセッション内で最大1回に抑える。
type processedAuthMarker struct {
	processed bool
	userID    string // PrimaryIdentifier
}

// PipelineObserver はパイプライン実行の観測インターフェース。メトリクス連携用。
type PipelineObserver interface {
	RecordPipelineRun(success bool)
	RecordWelcomeSent()
}

// Reconciler は外部認証プロバイダーの状態を内部ユーザーレコードへ調整する。
//
// 全状態は明示的にこのインスタンスが所有し、プロバイダーの状態変化は
// HandleStateChangeへのイベント配送として受け取る。副作用パイプラインは
// PrimaryIdentifierごとに最大1回だけ実行される。
type Reconciler struct {
	provider   Provider
	directory  UserDirectory
	notifier   WelcomeNotifier
	navigator  Navigator
	cache      SummaryCache
	observer   PipelineObserver // nil可
	settleWait time.Duration

	mu              sync.Mutex
	marker          processedAuthMarker
	pendingRedirect string
	lastError       string
	notified        map[string]struct{}
}

// Config はReconcilerの設定。
type Config struct {
	// SettleWait は不整合状態（接続済みだがユーザー情報なし）の
	// 強制ログアウト後にプロバイダー状態が落ち着くまで待つ時間。
	SettleWait time.Duration
}

// NewReconciler はReconcilerを生成する。observerはnil可。
func NewReconciler(
	provider Provider,
	directory UserDirectory,
	notifier WelcomeNotifier,
	navigator Navigator,
	cache SummaryCache,
	observer PipelineObserver,
	config Config,
) *Reconciler {
	settleWait := config.SettleWait
	if settleWait <= 0 {
		settleWait = time.Second
	}
	return &Reconciler{
		provider:   provider,
		directory:  directory,
		notifier:   notifier,
		navigator:  navigator,
		cache:      cache,
		observer:   observer,
		settleWait: settleWait,
		notified:   make(map[string]struct{}),
	}
}

// Authenticate は認証フローを開始する。
//
// プロバイダーが有効なユーザー付きの接続済みセッションを報告している場合は
// 認証済みとして即座にredirectTargetへ遷移する。接続済みだがユーザー情報がない
// 不整合状態の場合は強制ログアウトして短時間待機してから続行する
// （プロバイダー側の状態競合の後始末。根本原因は未診断）。
// それ以外はredirectTargetをPendingRedirectとして記録し、認証UIを開く。
//
// エラーは返さず結果に畳み込む。失敗時はPendingRedirectをクリアする。
func (rc *Reconciler) Authenticate(ctx context.Context, redirectTarget string) AuthResult {
	if rc.provider.Connected() {
		if rc.provider.Identity() != nil {
			rc.navigator.Navigate(redirectTarget)
			return AuthResult{Success: true}
		}

		// 接続済みだがユーザー情報なし: 強制サインアウトで状態を揃える
		slog.Warn("provider reports connected session without identity, forcing logout")
		if err := rc.provider.Logout(ctx); err != nil {
			slog.Error("forced logout failed", slog.String("error", err.Error()))
		}
		select {
		case <-time.After(rc.settleWait):
		case <-ctx.Done():
			rc.recordError(ctx.Err().Error())
			return AuthResult{Success: false, Error: ctx.Err().Error()}
		}
	}

	// 新しいPendingRedirectは既存値を常に上書きする
	rc.mu.Lock()
	rc.pendingRedirect = redirectTarget
	rc.lastError = ""
	rc.mu.Unlock()

	if err := rc.provider.OpenAuthModal(ctx); err != nil {
		rc.mu.Lock()
		rc.pendingRedirect = ""
		rc.lastError = err.Error()
		rc.mu.Unlock()
		slog.Error("failed to open auth modal", slog.String("error", err.Error()))
		return AuthResult{Success: false, Error: err.Error()}
	}

	return AuthResult{Success: true}
}

// SignOut はプロバイダーのセッションを破棄し、ローカルの財務サマリーキャッシュを
// クリアする。プロバイダーのエラーは記録したうえで呼び出し元へ返す。
func (rc *Reconciler) SignOut(ctx context.Context) error {
	if err := rc.provider.Logout(ctx); err != nil {
		rc.recordError(err.Error())
		return err
	}

	if rc.cache != nil {
		rc.cache.ClearNamespace(summaryCachePrefix)
	}

	rc.mu.Lock()
	rc.marker = processedAuthMarker{}
	rc.mu.Unlock()

	slog.Info("user signed out")
	return nil
}

// HandleStateChange はプロバイダーの状態変化イベントを処理する購読ハンドラー。
//
// 認証済みかつユーザー情報ありで、マーカーが現在のPrimaryIdentifierと
// 一致しない場合のみ副作用パイプラインを実行する:
//
//  1. I/Oの前に同期的に実行中マークを立てる（再入による重複実行の防止）
//  2. ユーザーディレクトリへのupsert
//  3. 新規ユーザーならウェルカム通知（ローカルの通知済みセットと
//     設定サービスの二重ガード）
//  4. 成否にかかわらずPendingRedirectを消費して遷移。
//     upsert失敗時はマーカーを戻し、次の状態変化で再試行可能にする
//
// 未認証イベントはマーカーを無条件でリセットする（同一端末での別ユーザーの
// 認証を新規として処理できるようにする）。
func (rc *Reconciler) HandleStateChange(ctx context.Context, event StateEvent) {
	if !event.Authenticated {
		rc.mu.Lock()
		rc.marker = processedAuthMarker{}
		rc.mu.Unlock()
		return
	}

	if event.Identity == nil {
		return
	}

	mapped := MapUser(event.Identity)

	rc.mu.Lock()
	if rc.marker.processed && rc.marker.userID == mapped.PrimaryIdentifier {
		rc.mu.Unlock()
		return
	}
	// PrimaryIdentifierが変わった場合は別の論理ユーザーとして処理し直す。
	// I/O開始前にマークすることで、処理中の再イベントを弾く。
	rc.marker = processedAuthMarker{processed: true, userID: mapped.PrimaryIdentifier}
	rc.mu.Unlock()

	user, isNew, err := rc.directory.Upsert(ctx, mapped)
	if err != nil {
		slog.Error("failed to persist authenticated user",
			slog.String("primary_identifier", mapped.PrimaryIdentifier),
			slog.String("error", err.Error()),
		)
		rc.mu.Lock()
		rc.marker = processedAuthMarker{}
		rc.lastError = err.Error()
		rc.mu.Unlock()
		if rc.observer != nil {
			rc.observer.RecordPipelineRun(false)
		}
		rc.consumePendingRedirect()
		return
	}

	slog.Info("authenticated user persisted",
		slog.String("user_id", user.ID),
		slog.String("auth_method", string(mapped.ActualAuthMethod)),
		slog.Bool("is_new", isNew),
	)

	if isNew {
		rc.sendWelcomeOnce(ctx, mapped)
	}

	if rc.observer != nil {
		rc.observer.RecordPipelineRun(true)
	}
	rc.consumePendingRedirect()
}

// HandleModalClosed は認証UIが閉じられたことを処理する。
// 認証が完了しないまま閉じられた場合はPendingRedirectをクリアし、
// 後から古い遷移が発火するのを防ぐ。
func (rc *Reconciler) HandleModalClosed(authenticated bool) {
	if authenticated {
		return
	}
	rc.mu.Lock()
	rc.pendingRedirect = ""
	rc.mu.Unlock()
}

// LastError は直近に記録されたエラーメッセージを返す。UI表示用。
func (rc *Reconciler) LastError() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.lastError
}

// sendWelcomeOnce はウェルカム通知をPrimaryIdentifierごとに最大1回送信する。
// ローカルの通知済みセットと設定サービスの両方でガードする。
func (rc *Reconciler) sendWelcomeOnce(ctx context.Context, mapped *model.MappedUser) {
	rc.mu.Lock()
	if _, already := rc.notified[mapped.PrimaryIdentifier]; already {
		rc.mu.Unlock()
		return
	}
	rc.mu.Unlock()

	canSend, err := rc.notifier.CanSend(ctx, mapped.PrimaryIdentifier, welcomeEmailType)
	if err != nil {
		slog.Error("welcome preference check failed",
			slog.String("primary_identifier", mapped.PrimaryIdentifier),
			slog.String("error", err.Error()),
		)
		return
	}
	if !canSend {
		slog.Info("welcome email suppressed by preference",
			slog.String("primary_identifier", mapped.PrimaryIdentifier),
		)
		return
	}

	messageID, err := rc.notifier.SendWelcome(ctx, mapped)
	if err != nil {
		slog.Error("welcome email dispatch failed",
			slog.String("primary_identifier", mapped.PrimaryIdentifier),
			slog.String("error", err.Error()),
		)
		return
	}

	rc.mu.Lock()
	rc.notified[mapped.PrimaryIdentifier] = struct{}{}
	rc.mu.Unlock()

	if rc.observer != nil {
		rc.observer.RecordWelcomeSent()
	}

	slog.Info("welcome email sent",
		slog.String("primary_identifier", mapped.PrimaryIdentifier),
		slog.String("message_id", messageID),
	)
}

// consumePendingRedirect はPendingRedirectを消費して遷移する。
// 値が空の場合は何もしない。
func (rc *Reconciler) consumePendingRedirect() {
	rc.mu.Lock()
	target := rc.pendingRedirect
	rc.pendingRedirect = ""
	rc.mu.Unlock()

	if target != "" {
		rc.navigator.Navigate(target)
	}
}

func (rc *Reconciler) recordError(message string) {
	rc.mu.Lock()
	rc.lastError = message
	rc.mu.Unlock()
}
