package notification

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/usdfinancial/backend/internal/model"
	"github.com/usdfinancial/backend/internal/repository"
)

// WelcomeRequest はウェルカムメール送信の依頼内容。
type WelcomeRequest struct {
	Recipient     string // 送信先（email）
	Name          string
	WalletAddress string
	SignupMethod  string
}

// Service はメール送信可否判定とウェルカムメール送信のサービス層。
type Service struct {
	prefs      repository.PreferenceRepository
	dispatcher Dispatcher
	from       string
}

// NewService はServiceを生成する。
func NewService(prefs repository.PreferenceRepository, dispatcher Dispatcher, from string) *Service {
	return &Service{
		prefs:      prefs,
		dispatcher: dispatcher,
		from:       from,
	}
}

// CanSend は指定識別子・メール種別への送信可否を返す。
// 設定レコードが存在しない場合は送信許可として扱う（オプトアウト方式）。
func (s *Service) CanSend(ctx context.Context, userIdentifier, emailType string) (bool, error) {
	if userIdentifier == "" {
		return false, model.NewValidationError(
			"Missing required field: userIdentifier",
			map[string]any{"field": "userIdentifier"},
		)
	}

	pref, err := s.prefs.Find(ctx, userIdentifier, emailType)
	if err != nil {
		return false, fmt.Errorf("failed to check email preference: %w", err)
	}
	if pref == nil {
		return true, nil
	}
	return pref.Allowed, nil
}

// SetPreference は送信可否設定を保存する。
func (s *Service) SetPreference(ctx context.Context, userIdentifier, emailType string, allowed bool) error {
	if userIdentifier == "" {
		return model.NewValidationError(
			"Missing required field: userIdentifier",
			map[string]any{"field": "userIdentifier"},
		)
	}

	return s.prefs.Upsert(ctx, &model.EmailPreference{
		UserIdentifier: userIdentifier,
		EmailType:      emailType,
		Allowed:        allowed,
		UpdatedAt:      time.Now().UTC(),
	})
}

// SendWelcome はウェルカムメールを送信し、メッセージIDを返す。
// 送信先はemailアドレスである必要がある（ウォレットのみのユーザーには送れない）。
func (s *Service) SendWelcome(ctx context.Context, req *WelcomeRequest) (string, error) {
	if req.Recipient == "" || !strings.Contains(req.Recipient, "@") {
		return "", model.NewValidationError(
			"Missing required field: recipient must be an email address",
			map[string]any{"field": "recipient"},
		)
	}

	messageID, err := s.dispatcher.Dispatch(ctx, &Message{
		From:    s.from,
		To:      req.Recipient,
		Subject: "Welcome to USD Financial",
		HTML:    buildWelcomeBody(req),
	})
	if err != nil {
		return "", err
	}

	slog.Info("welcome email dispatched",
		slog.String("recipient", req.Recipient),
		slog.String("message_id", messageID),
	)

	return messageID, nil
}

// buildWelcomeBody はウェルカムメールのHTML本文を組み立てる。
func buildWelcomeBody(req *WelcomeRequest) string {
	name := req.Name
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	b.WriteString("<h1>Welcome to USD Financial</h1>")
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(name))
	b.WriteString("<p>Your account is ready. You can now manage your stablecoin balance, cards, and investments from your dashboard.</p>")
	if req.WalletAddress != "" {
		fmt.Fprintf(&b, "<p>Linked wallet: <code>%s</code></p>", html.EscapeString(req.WalletAddress))
	}
	if req.SignupMethod != "" {
		fmt.Fprintf(&b, "<p>Sign-in method: %s</p>", html.EscapeString(req.SignupMethod))
	}
	return b.String()
}
