package handler

import (
	"context"
	"net/http"

	"github.com/usdfinancial/backend/internal/middleware"
	"github.com/usdfinancial/backend/internal/model"
	"github.com/usdfinancial/backend/internal/notification"
)

// NotificationServiceInterface はメールハンドラーが必要とするサービスインターフェース。
type NotificationServiceInterface interface {
	// CanSend は送信可否をユーザー設定から判定する。
	CanSend(ctx context.Context, userIdentifier, emailType string) (bool, error)
	// SetPreference は送信可否設定を保存する。
	SetPreference(ctx context.Context, userIdentifier, emailType string, allowed bool) error
	// SendWelcome はウェルカムメールを送信し、メッセージIDを返す。
	SendWelcome(ctx context.Context, req *notification.WelcomeRequest) (string, error)
}

// EmailHandler はメール関連APIのHTTPハンドラー。
type EmailHandler struct {
	service NotificationServiceInterface
}

// NewEmailHandler はEmailHandlerを生成する。
func NewEmailHandler(service NotificationServiceInterface) *EmailHandler {
	return &EmailHandler{service: service}
}

// preferencesRequest はPOST /api/emails/preferencesのリクエストボディ。
type preferencesRequest struct {
	Action         string `json:"action"`
	UserIdentifier string `json:"userIdentifier"`
	EmailType      string `json:"emailType"`
	Allowed        bool   `json:"allowed"`
}

// HandlePreferences はPOST /api/emails/preferencesを処理する。
// action "canSend" は送信可否を返し、"set" は設定を保存する。
func (h *EmailHandler) HandlePreferences(r *http.Request, requestID string) (any, error) {
	body, err := decodeBody(r)
	if err != nil {
		return nil, err
	}

	if err := middleware.ValidateRequestBody(middleware.Schema{
		"action":         {Required: true, Type: middleware.FieldString},
		"userIdentifier": {Required: true, Type: middleware.FieldString},
		"emailType":      {Type: middleware.FieldString},
	}, body); err != nil {
		return nil, err
	}

	var req preferencesRequest
	if err := rebind(body, &req); err != nil {
		return nil, err
	}
	if req.EmailType == "" {
		req.EmailType = "welcome"
	}

	switch req.Action {
	case "canSend":
		canSend, err := h.service.CanSend(r.Context(), req.UserIdentifier, req.EmailType)
		if err != nil {
			return nil, err
		}
		return map[string]any{"canSend": canSend}, nil

	case "set":
		if err := middleware.ValidateRequestBody(middleware.Schema{
			"allowed": {Required: true, Type: middleware.FieldBool},
		}, body); err != nil {
			return nil, err
		}
		if err := h.service.SetPreference(r.Context(), req.UserIdentifier, req.EmailType, req.Allowed); err != nil {
			return nil, err
		}
		return map[string]any{"updated": true}, nil

	default:
		return nil, model.NewValidationError(
			"Unknown action: "+req.Action,
			map[string]any{"action": req.Action},
		)
	}
}

// welcomeRequest はPOST /api/emails/welcomeのリクエストボディ。
type welcomeRequest struct {
	Recipient     string `json:"recipient"`
	Name          string `json:"name"`
	WalletAddress string `json:"walletAddress"`
	SignupMethod  string `json:"signupMethod"`
}

// HandleWelcome はPOST /api/emails/welcomeを処理する。
func (h *EmailHandler) HandleWelcome(r *http.Request, requestID string) (any, error) {
	body, err := decodeBody(r)
	if err != nil {
		return nil, err
	}

	if err := middleware.ValidateRequestBody(middleware.Schema{
		"recipient": {Required: true, Type: middleware.FieldString, Pattern: emailPattern},
	}, body); err != nil {
		return nil, err
	}

	var req welcomeRequest
	if err := rebind(body, &req); err != nil {
		return nil, err
	}

	messageID, err := h.service.SendWelcome(r.Context(), &notification.WelcomeRequest{
		Recipient:     req.Recipient,
		Name:          req.Name,
		WalletAddress: req.WalletAddress,
		SignupMethod:  req.SignupMethod,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"messageId": messageID}, nil
}
