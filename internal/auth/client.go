package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/usdfinancial/backend/internal/model"
)

// Client はユーザーディレクトリAPIとメールAPIに対するHTTPクライアント。
// UserDirectoryとWelcomeNotifierの両方を実装し、ReconcilerをバックエンドAPIに接続する。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient はClientを生成する。httpClientがnilの場合は10秒タイムアウトのクライアントを使う。
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// userPayload はユーザーディレクトリAPIのユーザー表現。
type userPayload struct {
	ID            string     `json:"id"`
	Email         string     `json:"email,omitempty"`
	WalletAddress string     `json:"walletAddress,omitempty"`
	Name          string     `json:"name,omitempty"`
	AuthMethod    string     `json:"authMethod"`
	LastAuthAt    *time.Time `json:"lastAuthAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// userData はPOST /api/authのdataフィールド。userは未検出時null。
type userData struct {
	User *userPayload `json:"user"`
}

// Upsert はemailまたはウォレットアドレスで既存レコードを検索し、
// 見つかれば最終認証時刻を更新、なければ作成して最終認証時刻を記録する。
// 新規フラグは「検索または作成の時点でlast_auth_atが未設定だったか」で決まる。
func (c *Client) Upsert(ctx context.Context, mapped *model.MappedUser) (*model.User, bool, error) {
	var found userData
	err := c.postJSON(ctx, "/api/auth", map[string]any{
		"action":        "find-user",
		"email":         mapped.Email,
		"walletAddress": mapped.Address,
	}, &found)
	if err != nil {
		return nil, false, fmt.Errorf("find-user request failed: %w", err)
	}

	isNew := false
	var userID string

	if found.User != nil {
		userID = found.User.ID
		isNew = found.User.LastAuthAt == nil
	} else {
		var created userData
		err := c.postJSON(ctx, "/api/auth", map[string]any{
			"action":        "create-user",
			"email":         mapped.Email,
			"walletAddress": mapped.Address,
			"name":          mapped.Name,
			"authMethod":    string(mapped.ActualAuthMethod),
		}, &created)
		if err != nil {
			return nil, false, fmt.Errorf("create-user request failed: %w", err)
		}
		if created.User == nil {
			return nil, false, fmt.Errorf("create-user returned no user")
		}
		userID = created.User.ID
		isNew = true
	}

	var updated userData
	err = c.postJSON(ctx, "/api/auth", map[string]any{
		"action":     "update-last-auth",
		"userId":     userID,
		"authMethod": string(mapped.ActualAuthMethod),
	}, &updated)
	if err != nil {
		return nil, false, fmt.Errorf("update-last-auth request failed: %w", err)
	}
	if updated.User == nil {
		return nil, false, fmt.Errorf("update-last-auth returned no user")
	}

	return toModelUser(updated.User), isNew, nil
}

// CanSend はメール送信可否をユーザー設定サービスに問い合わせる。
func (c *Client) CanSend(ctx context.Context, userIdentifier, emailType string) (bool, error) {
	var data struct {
		CanSend bool `json:"canSend"`
	}
	err := c.postJSON(ctx, "/api/emails/preferences", map[string]any{
		"action":         "canSend",
		"userIdentifier": userIdentifier,
		"emailType":      emailType,
	}, &data)
	if err != nil {
		return false, fmt.Errorf("preference check request failed: %w", err)
	}
	return data.CanSend, nil
}

// SendWelcome はウェルカムメールの送信を依頼し、メッセージIDを返す。
func (c *Client) SendWelcome(ctx context.Context, mapped *model.MappedUser) (string, error) {
	var data struct {
		MessageID string `json:"messageId"`
	}
	err := c.postJSON(ctx, "/api/emails/welcome", map[string]any{
		"recipient":     mapped.PrimaryIdentifier,
		"email":         mapped.Email,
		"walletAddress": mapped.Address,
		"name":          mapped.Name,
		"signupMethod":  string(mapped.ActualAuthMethod),
	}, &data)
	if err != nil {
		return "", fmt.Errorf("welcome email request failed: %w", err)
	}
	return data.MessageID, nil
}

// envelope はAPIレスポンスの統一エンベロープ。
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// postJSON はJSONボディをPOSTし、成功エンベロープのdataをoutにデコードする。
// 失敗エンベロープはServiceErrorとして返す。
func (c *Client) postJSON(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}

	if !env.Success {
		if env.Error != nil {
			return &model.ServiceError{Code: env.Error.Code, Message: env.Error.Message}
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}

	return nil
}

func toModelUser(p *userPayload) *model.User {
	return &model.User{
		ID:            p.ID,
		Email:         p.Email,
		WalletAddress: p.WalletAddress,
		Name:          p.Name,
		AuthMethod:    model.AuthMethod(p.AuthMethod),
		LastAuthAt:    p.LastAuthAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// compile-time interface checks
var (
	_ UserDirectory   = (*Client)(nil)
	_ WelcomeNotifier = (*Client)(nil)
)
