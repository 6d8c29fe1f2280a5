package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/usdfinancial/backend/internal/model"
)

// APIHandlerFunc はエラー正規化配下で動作するAPIハンドラーのシグネチャ。
// 返却したデータは成功エンベロープに包まれ、エラーはHandleErrorで正規化される。
type APIHandlerFunc func(r *http.Request, requestID string) (any, error)

// Result はハンドラーが成功ステータスコードを指定して返すためのラッパー。
// 通常の戻り値は200として扱われる。
type Result struct {
	Data   any
	Status int
}

// Created は201 Createdで返すResultを生成する。
func Created(data any) Result {
	return Result{Data: data, Status: http.StatusCreated}
}

// MetricsRecorder はエラーハンドラーが必要とするメトリクス記録のインターフェース。
type MetricsRecorder interface {
	RecordAPIError(code string)
	RecordHTTPStatus(statusCode int)
}

// ErrorHandler はAPIハンドラーのエラーを統一エンベロープに正規化する。
// どのような形のエラー（型付きServiceError、汎用エラー、panic値）も
// 構造化レスポンスとして返し、トランスポート層に未処理のまま到達させない。
type ErrorHandler struct {
	dev       bool
	counter   *ErrorRateCounter
	threshold int
	metrics   MetricsRecorder
}

// NewErrorHandler はErrorHandlerを生成する。
// devがtrueの場合のみエラーレスポンスにDetailsを含める。
// metricsはnil可（記録をスキップする）。
func NewErrorHandler(dev bool, counter *ErrorRateCounter, threshold int, metrics MetricsRecorder) *ErrorHandler {
	if threshold <= 0 {
		threshold = 100
	}
	return &ErrorHandler{
		dev:       dev,
		counter:   counter,
		threshold: threshold,
		metrics:   metrics,
	}
}

// WithErrorHandler はAPIHandlerFuncをhttp.HandlerFuncにラップする。
// リクエストIDを冒頭で採番し、成功値はエンベロープに包み、
// エラーとpanicはHandleErrorに委譲する。
func (h *ErrorHandler) WithErrorHandler(next APIHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := RequestIDFromContext(r.Context())
		if requestID == "" {
			requestID = uuid.New().String()
			w.Header().Set(requestIDHeader, requestID)
		}

		defer func() {
			if rec := recover(); rec != nil {
				h.HandleError(w, r, requestID, panicToError(rec))
			}
		}()

		data, err := next(r, requestID)
		if err != nil {
			h.HandleError(w, r, requestID, err)
			return
		}

		statusCode := http.StatusOK
		if result, ok := data.(Result); ok {
			data = result.Data
			if result.Status != 0 {
				statusCode = result.Status
			}
		}
		WriteSuccessResponse(w, data, requestID, statusCode)
	}
}

// HandleError はエラーを分類・サニタイズし、統一エンベロープで書き込む。
//
// 分類の優先順位:
//  1. 型付きServiceError → コードから固定テーブルでHTTPステータスを決定
//  2. 文字列panic値 → メッセージをそのまま使用し500/UNKNOWN_ERROR
//  3. 汎用エラー → メッセージの部分文字列によるベストエフォート分類
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	statusCode, code, message, details := classifyError(err)

	message = SanitizeErrorMessage(message)

	slog.Error("api error",
		slog.String("code", code),
		slog.Int("status", statusCode),
		slog.String("method", r.Method),
		slog.String("url", r.URL.String()),
		slog.String("user_agent", r.UserAgent()),
		slog.String("client_ip", ClientIP(r)),
		slog.String("request_id", requestID),
		slog.String("error", err.Error()),
	)

	if h.counter != nil {
		if count := h.counter.Observe(code); count >= h.threshold {
			// 外部アラート連携のフックポイント。ここではログ警告のみ
			slog.Warn("high error rate detected",
				slog.String("code", code),
				slog.Int("count", count),
				slog.Int("threshold", h.threshold),
			)
		}
	}

	if h.metrics != nil {
		h.metrics.RecordAPIError(code)
		h.metrics.RecordHTTPStatus(statusCode)
	}

	body := APIErrorBody{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
		Path:      r.URL.Path,
	}
	if h.dev {
		body.Details = details
	}

	WriteErrorEnvelope(w, statusCode, body)
}

// rawMessageError は文字列のpanic値を表す。
// メッセージを加工せず、ヒューリスティック分類も適用しない。
type rawMessageError string

func (e rawMessageError) Error() string { return string(e) }

// panicToError はrecoverで捕捉した値をerrorに変換する。
func panicToError(rec any) error {
	switch v := rec.(type) {
	case error:
		return v
	case string:
		return rawMessageError(v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}

// classifyError はエラーからHTTPステータス、コード、メッセージ、詳細を決定する。
func classifyError(err error) (statusCode int, code, message string, details map[string]any) {
	var svcErr *model.ServiceError
	if errors.As(err, &svcErr) {
		return statusForCode(svcErr.Code), svcErr.Code, svcErr.Message, svcErr.Details
	}

	var raw rawMessageError
	if errors.As(err, &raw) {
		return http.StatusInternalServerError, model.ErrCodeUnknown, string(raw), nil
	}

	// 汎用エラー: メッセージ文言によるベストエフォート分類。
	// 保証ではなくフォールバックであり、主経路は型付きServiceError。
	message = err.Error()
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "not found"):
		return http.StatusNotFound, model.ErrCodeNotFound, message, nil
	case strings.Contains(lower, "validation"), strings.Contains(lower, "required"):
		return http.StatusBadRequest, model.ErrCodeValidation, message, nil
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "permission"):
		return http.StatusForbidden, model.ErrCodePermission, message, nil
	default:
		return http.StatusInternalServerError, model.ErrCodeUnknown, message, nil
	}
}

// statusForCode はServiceErrorコードからHTTPステータスコードにマッピングする。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodePermission:
		return http.StatusForbidden
	case model.ErrCodeDuplicate:
		return http.StatusConflict
	case model.ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case model.ErrCodeExternalService:
		return http.StatusBadGateway
	case model.ErrCodeDatabase:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ClientIP はX-Forwarded-For、X-Real-IP、RemoteAddrの順でクライアントIPを決定する。
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// 複数段プロキシの場合は先頭が元クライアント
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
