package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// APIErrorBody はエラーレスポンスのerrorフィールドを表す。
// Detailsは開発環境でのみ設定される。
type APIErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
	RequestID string         `json:"requestId"`
	Path      string         `json:"path"`
}

// successEnvelope は成功レスポンスの統一フォーマット。
// dataとerrorは排他で、successフィールドと常に整合する。
type successEnvelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
}

// errorEnvelope は失敗レスポンスの統一フォーマット。
type errorEnvelope struct {
	Success   bool         `json:"success"`
	Error     APIErrorBody `json:"error"`
	Timestamp string       `json:"timestamp"`
	RequestID string       `json:"requestId"`
}

// WriteSuccessResponse は成功エンベロープでHTTPレスポンスを書き込む。
// 全APIエンドポイントの成功レスポンスはこの形式に統一される。
func WriteSuccessResponse(w http.ResponseWriter, data any, requestID string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(successEnvelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	})
}

// WriteErrorEnvelope は失敗エンベロープでHTTPレスポンスを書き込む。
func WriteErrorEnvelope(w http.ResponseWriter, statusCode int, body APIErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorEnvelope{
		Success:   false,
		Error:     body,
		Timestamp: body.Timestamp,
		RequestID: body.RequestID,
	})
}
