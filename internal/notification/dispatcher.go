// Package notification はウェルカムメールの送信可否判定と送信を提供する。
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/usdfinancial/backend/internal/model"
	"github.com/usdfinancial/backend/internal/security"
)

// Message は送信する1通のメールを表す。
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Dispatcher はメール送信のインターフェース。送信成功時はメッセージIDを返す。
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *Message) (string, error)
}

// HTTPDispatcher はHTTPベースのメールプロバイダーAPIへ送信するDispatcher実装。
// 発信には内部ネットワークへの到達をブロックする保護付きクライアントを使用する。
type HTTPDispatcher struct {
	apiURL string
	apiKey string
	client *http.Client
}

// NewHTTPDispatcher はHTTPDispatcherを生成する。
// 設定されたプロバイダーURLは生成時に静的検証する。
func NewHTTPDispatcher(apiURL, apiKey string, guard security.OutboundGuardService, timeout time.Duration) (*HTTPDispatcher, error) {
	if err := guard.ValidateURL(apiURL); err != nil {
		return nil, fmt.Errorf("invalid email provider URL: %w", err)
	}
	return &HTTPDispatcher{
		apiURL: apiURL,
		apiKey: apiKey,
		client: guard.NewSafeClient(timeout),
	}, nil
}

// providerResponse はメールプロバイダーAPIの送信レスポンス。
type providerResponse struct {
	ID string `json:"id"`
}

// Dispatch はメールプロバイダーAPIにメールを送信し、メッセージIDを返す。
// プロバイダーの失敗はEXTERNAL_SERVICE_ERRORのServiceErrorとして返す。
func (d *HTTPDispatcher) Dispatch(ctx context.Context, msg *Message) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", model.NewExternalServiceError("email", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read email provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", model.NewExternalServiceError("email",
			fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body)))
	}

	var provider providerResponse
	if err := json.Unmarshal(body, &provider); err != nil {
		return "", fmt.Errorf("failed to parse email provider response: %w", err)
	}
	if provider.ID == "" {
		return "", model.NewExternalServiceError("email", fmt.Errorf("empty message ID in response"))
	}

	return provider.ID, nil
}

// compile-time interface check
var _ Dispatcher = (*HTTPDispatcher)(nil)
