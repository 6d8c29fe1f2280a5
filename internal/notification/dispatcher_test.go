package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// passthroughGuard はテスト用に検証をスキップするOutboundGuardService実装。
// 実際のガードはループバックへの発信をブロックするため、httptestサーバーには使えない。
type passthroughGuard struct{}

func (passthroughGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (passthroughGuard) ValidateURL(rawURL string) error { return nil }

// blockingGuard はValidateURLが常に失敗するガード。
type blockingGuard struct{ passthroughGuard }

func (blockingGuard) ValidateURL(rawURL string) error { return errors.New("blocked") }

func TestNewHTTPDispatcher_RejectsInvalidProviderURL(t *testing.T) {
	_, err := NewHTTPDispatcher("http://169.254.169.254/emails", "key", blockingGuard{}, time.Second)
	if err == nil {
		t.Error("constructor should reject a URL the guard blocks")
	}
}

func TestDispatch_SendsBearerAuthAndPayload(t *testing.T) {
	var seenAuth string
	var seenMsg Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&seenMsg)
		json.NewEncoder(w).Encode(map[string]string{"id": "msg-99"})
	}))
	defer server.Close()

	d, err := NewHTTPDispatcher(server.URL, "provider-api-key", passthroughGuard{}, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPDispatcher() error = %v", err)
	}

	messageID, err := d.Dispatch(context.Background(), &Message{
		From:    "from@example.com",
		To:      "a@example.com",
		Subject: "Welcome to USD Financial",
		HTML:    "<h1>hi</h1>",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if messageID != "msg-99" {
		t.Errorf("messageID = %q, want msg-99", messageID)
	}
	if seenAuth != "Bearer provider-api-key" {
		t.Errorf("Authorization = %q, want Bearer provider-api-key", seenAuth)
	}
	if seenMsg.To != "a@example.com" {
		t.Errorf("payload To = %q, want a@example.com", seenMsg.To)
	}
}

func TestDispatch_ProviderErrorBecomesExternalServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"upstream unavailable"}`))
	}))
	defer server.Close()

	d, err := NewHTTPDispatcher(server.URL, "key", passthroughGuard{}, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPDispatcher() error = %v", err)
	}

	_, err = d.Dispatch(context.Background(), &Message{To: "a@example.com"})
	if err == nil {
		t.Fatal("Dispatch() should fail on provider error")
	}
}

func TestDispatch_EmptyMessageIDIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	d, err := NewHTTPDispatcher(server.URL, "key", passthroughGuard{}, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPDispatcher() error = %v", err)
	}

	if _, err := d.Dispatch(context.Background(), &Message{To: "a@example.com"}); err == nil {
		t.Error("Dispatch() should fail when the provider returns no message ID")
	}
}
