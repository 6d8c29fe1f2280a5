// Package model はドメインモデルを定義する。
package model

import "fmt"

// ServiceError はエラーコードを持つ型付きサービスエラーを表す。
// HTTPステータスへの正確なマッピングのため、汎用エラーと区別して扱う。
type ServiceError struct {
	Code    string
	Message string
	Details map[string]any // 開発環境でのみレスポンスに含める
}

// Error はerrorインターフェースを実装する。
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodePermission      = "PERMISSION_DENIED"
	ErrCodeDuplicate       = "DUPLICATE_ENTRY"
	ErrCodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	ErrCodeExternalService = "EXTERNAL_SERVICE_ERROR"
	ErrCodeDatabase        = "DATABASE_ERROR"
	ErrCodeUnknown         = "UNKNOWN_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string, details map[string]any) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(resource string) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewPermissionDeniedError は権限エラーを生成する。
func NewPermissionDeniedError(message string) *ServiceError {
	return &ServiceError{
		Code:    ErrCodePermission,
		Message: message,
	}
}

// NewDuplicateEntryError は一意制約違反エラーを生成する。
func NewDuplicateEntryError(resource string) *ServiceError {
	return &ServiceError{
		Code:    ErrCodeDuplicate,
		Message: fmt.Sprintf("%s already exists", resource),
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *ServiceError {
	return &ServiceError{
		Code:    ErrCodeRateLimit,
		Message: "Too many requests. Please try again later.",
	}
}

// NewExternalServiceError は外部サービス呼び出し失敗エラーを生成する。
func NewExternalServiceError(service string, cause error) *ServiceError {
	e := &ServiceError{
		Code:    ErrCodeExternalService,
		Message: fmt.Sprintf("external service %s request failed", service),
	}
	if cause != nil {
		e.Details = map[string]any{"cause": cause.Error()}
	}
	return e
}

// NewDatabaseError はデータベース操作失敗エラーを生成する。
// 元エラーの文言はDetailsに退避し、Messageには固定文言のみ載せる。
func NewDatabaseError(operation string, cause error) *ServiceError {
	e := &ServiceError{
		Code:    ErrCodeDatabase,
		Message: fmt.Sprintf("database operation %s failed", operation),
	}
	if cause != nil {
		e.Details = map[string]any{"cause": cause.Error()}
	}
	return e
}
