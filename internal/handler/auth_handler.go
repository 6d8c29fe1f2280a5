// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/usdfinancial/backend/internal/middleware"
	"github.com/usdfinancial/backend/internal/model"
)

// UserServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// FindUser はemail優先・ウォレットアドレスフォールバックでユーザーを検索する。
	FindUser(ctx context.Context, email, walletAddress string) (*model.User, error)
	// CreateUser は新規ユーザーを作成する。
	CreateUser(ctx context.Context, email, walletAddress, name string, method model.AuthMethod) (*model.User, error)
	// RecordAuth は最終認証時刻と認証手段を記録する。
	RecordAuth(ctx context.Context, userID string, method model.AuthMethod) (*model.User, error)
}

// AttemptLimiter は識別子ごとの認証試行レート制限のインターフェース。
// 制限内ならtrueを返す。
type AttemptLimiter interface {
	Check(identifier string) bool
}

var (
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// AuthHandler はユーザーディレクトリAPIのHTTPハンドラー。
// POST /api/auth にactionフィールドで操作を多重化する。
type AuthHandler struct {
	service UserServiceInterface
	limiter AttemptLimiter // nil可
}

// NewAuthHandler はAuthHandlerを生成する。limiterはnil可（制限なし）。
func NewAuthHandler(service UserServiceInterface, limiter AttemptLimiter) *AuthHandler {
	return &AuthHandler{
		service: service,
		limiter: limiter,
	}
}

// authRequest はPOST /api/authのリクエストボディ。
type authRequest struct {
	Action        string `json:"action"`
	Email         string `json:"email"`
	WalletAddress string `json:"walletAddress"`
	Name          string `json:"name"`
	AuthMethod    string `json:"authMethod"`
	UserID        string `json:"userId"`
}

// userResponse はユーザーのAPIレスポンス表現。
type userResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email,omitempty"`
	WalletAddress string     `json:"walletAddress,omitempty"`
	Name          string     `json:"name,omitempty"`
	AuthMethod    string     `json:"authMethod"`
	LastAuthAt    *time.Time `json:"lastAuthAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// userData はPOST /api/authのレスポンスdata。未検出時はuserがnullになる。
type userData struct {
	User *userResponse `json:"user"`
}

// HandleAuth はPOST /api/authを処理する。
// actionごとの検証スキーマを適用し、対応するサービス操作に委譲する。
func (h *AuthHandler) HandleAuth(r *http.Request, requestID string) (any, error) {
	body, err := decodeBody(r)
	if err != nil {
		return nil, err
	}

	if err := middleware.ValidateRequestBody(middleware.Schema{
		"action": {Required: true, Type: middleware.FieldString},
	}, body); err != nil {
		return nil, err
	}

	var req authRequest
	if err := rebind(body, &req); err != nil {
		return nil, err
	}

	if err := validateIdentifierFormats(body); err != nil {
		return nil, err
	}

	switch req.Action {
	case "find-user":
		if !h.allowAttempt(req.Email, req.WalletAddress) {
			return nil, model.NewRateLimitError()
		}
		found, err := h.service.FindUser(r.Context(), req.Email, req.WalletAddress)
		if err != nil {
			return nil, err
		}
		return userData{User: toUserResponse(found)}, nil

	case "create-user":
		if !h.allowAttempt(req.Email, req.WalletAddress) {
			return nil, model.NewRateLimitError()
		}
		created, err := h.service.CreateUser(r.Context(), req.Email, req.WalletAddress, req.Name, model.AuthMethod(req.AuthMethod))
		if err != nil {
			return nil, err
		}
		return middleware.Created(userData{User: toUserResponse(created)}), nil

	case "update-last-auth":
		updated, err := h.service.RecordAuth(r.Context(), req.UserID, model.AuthMethod(req.AuthMethod))
		if err != nil {
			return nil, err
		}
		return userData{User: toUserResponse(updated)}, nil

	default:
		return nil, model.NewValidationError(
			"Unknown action: "+req.Action,
			map[string]any{"action": req.Action},
		)
	}
}

// allowAttempt はPrimaryIdentifier（email優先、なければウォレット）単位で
// 認証試行のレート制限を判定する。
func (h *AuthHandler) allowAttempt(email, walletAddress string) bool {
	if h.limiter == nil {
		return true
	}
	identifier := email
	if identifier == "" {
		identifier = walletAddress
	}
	if identifier == "" {
		return true
	}
	return h.limiter.Check(identifier)
}

// validateIdentifierFormats はemailとウォレットアドレスの形式を検証する。
// 未指定のフィールドは検証しない。
func validateIdentifierFormats(body map[string]any) error {
	return middleware.ValidateRequestBody(middleware.Schema{
		"email":         {Type: middleware.FieldString, Pattern: emailPattern},
		"walletAddress": {Type: middleware.FieldString, Pattern: walletPattern},
	}, withoutEmptyStrings(body))
}

// withoutEmptyStrings は空文字列フィールドを未指定として扱うためのコピーを返す。
func withoutEmptyStrings(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// decodeBody はJSONリクエストボディを検証用のマップとしてデコードする。
func decodeBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, model.NewValidationError(
			"Invalid JSON request body",
			map[string]any{"cause": err.Error()},
		)
	}
	return body, nil
}

// rebind はマップとしてデコード済みのボディを構造体に詰め直す。
func rebind(body map[string]any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return model.NewValidationError("Invalid request body", nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return model.NewValidationError(
			"Invalid request body",
			map[string]any{"cause": err.Error()},
		)
	}
	return nil
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。nilはnilのまま返す。
func toUserResponse(user *model.User) *userResponse {
	if user == nil {
		return nil
	}
	return &userResponse{
		ID:            user.ID,
		Email:         user.Email,
		WalletAddress: user.WalletAddress,
		Name:          user.Name,
		AuthMethod:    string(user.AuthMethod),
		LastAuthAt:    user.LastAuthAt,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}
