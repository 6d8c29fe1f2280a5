package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/usdfinancial/backend/internal/model"
)

// authAPIStub はユーザーディレクトリAPIを模したテストサーバーを構成する。
type authAPIStub struct {
	users map[string]*userPayload // email -> user

	findCalls   int
	createCalls int
	updateCalls int
	seenAPIKeys []string
}

func (s *authAPIStub) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	writeData := func(w http.ResponseWriter, data any) {
		raw, _ := json.Marshal(data)
		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"data":      json.RawMessage(raw),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"requestId": "stub-req",
		})
	}

	mux.HandleFunc("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		s.seenAPIKeys = append(s.seenAPIKeys, r.Header.Get("X-Internal-Api-Key"))

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("stub failed to decode body: %v", err)
		}

		switch body["action"] {
		case "find-user":
			s.findCalls++
			email, _ := body["email"].(string)
			writeData(w, map[string]any{"user": s.users[email]})

		case "create-user":
			s.createCalls++
			email, _ := body["email"].(string)
			method, _ := body["authMethod"].(string)
			now := time.Now().UTC()
			created := &userPayload{
				ID:         "u-created",
				Email:      email,
				AuthMethod: method,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			s.users[email] = created
			writeData(w, map[string]any{"user": created})

		case "update-last-auth":
			s.updateCalls++
			userID, _ := body["userId"].(string)
			now := time.Now().UTC()
			for _, u := range s.users {
				if u.ID == userID {
					u.LastAuthAt = &now
					writeData(w, map[string]any{"user": u})
					return
				}
			}
			t.Fatalf("update-last-auth for unknown user %q", userID)

		default:
			t.Fatalf("unexpected action %v", body["action"])
		}
	})

	return mux
}

func TestClientUpsert_ExistingUserIsNotNew(t *testing.T) {
	lastAuth := time.Now().UTC().Add(-time.Hour)
	stub := &authAPIStub{users: map[string]*userPayload{
		"a@example.com": {
			ID:         "u-1",
			Email:      "a@example.com",
			AuthMethod: "email",
			LastAuthAt: &lastAuth,
		},
	}}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	client := NewClient(server.URL, "test-key", server.Client())

	user, isNew, err := client.Upsert(context.Background(), &model.MappedUser{
		Email:             "a@example.com",
		PrimaryIdentifier: "a@example.com",
		ActualAuthMethod:  model.AuthMethodEmail,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if isNew {
		t.Error("user with prior auth should not be new")
	}
	if user.ID != "u-1" {
		t.Errorf("user ID = %q, want u-1", user.ID)
	}
	if user.LastAuthAt == nil {
		t.Error("updated user should carry last auth time")
	}
	if stub.createCalls != 0 {
		t.Errorf("create calls = %d, want 0", stub.createCalls)
	}
	if stub.updateCalls != 1 {
		t.Errorf("update calls = %d, want 1", stub.updateCalls)
	}
}

func TestClientUpsert_ExistingUserWithoutLastAuthIsNew(t *testing.T) {
	// レコードはあるが一度も認証完了していないユーザーは新規として扱う
	stub := &authAPIStub{users: map[string]*userPayload{
		"a@example.com": {
			ID:         "u-1",
			Email:      "a@example.com",
			AuthMethod: "email",
		},
	}}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	client := NewClient(server.URL, "test-key", server.Client())

	_, isNew, err := client.Upsert(context.Background(), &model.MappedUser{
		Email:             "a@example.com",
		PrimaryIdentifier: "a@example.com",
		ActualAuthMethod:  model.AuthMethodEmail,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if !isNew {
		t.Error("user without last_auth_at should be treated as new")
	}
}

func TestClientUpsert_CreatesMissingUser(t *testing.T) {
	stub := &authAPIStub{users: map[string]*userPayload{}}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	client := NewClient(server.URL, "test-key", server.Client())

	user, isNew, err := client.Upsert(context.Background(), &model.MappedUser{
		Email:             "new@example.com",
		PrimaryIdentifier: "new@example.com",
		ActualAuthMethod:  model.AuthMethodGoogle,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if !isNew {
		t.Error("created user should be new")
	}
	if user.ID != "u-created" {
		t.Errorf("user ID = %q, want u-created", user.ID)
	}
	if stub.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", stub.createCalls)
	}
	if stub.updateCalls != 1 {
		t.Errorf("update calls = %d, want 1", stub.updateCalls)
	}
}

func TestClientUpsert_SendsInternalAPIKey(t *testing.T) {
	stub := &authAPIStub{users: map[string]*userPayload{}}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	client := NewClient(server.URL, "internal-secret-key", server.Client())

	_, _, err := client.Upsert(context.Background(), &model.MappedUser{
		Email:             "new@example.com",
		PrimaryIdentifier: "new@example.com",
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	for i, key := range stub.seenAPIKeys {
		if key != "internal-secret-key" {
			t.Errorf("request %d api key = %q, want internal-secret-key", i, key)
		}
	}
}

func TestClientPostJSON_ErrorEnvelopeBecomesServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error": map[string]any{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "Too many requests. Please try again later.",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", server.Client())

	_, _, err := client.Upsert(context.Background(), &model.MappedUser{
		Email:             "a@example.com",
		PrimaryIdentifier: "a@example.com",
	})

	var svcErr *model.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error should wrap ServiceError, got %v", err)
	}
	if svcErr.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", svcErr.Code)
	}
}

func TestClientCanSend(t *testing.T) {
	var seenBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/emails/preferences" {
			t.Errorf("path = %q, want /api/emails/preferences", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&seenBody)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"canSend": false},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", server.Client())

	canSend, err := client.CanSend(context.Background(), "a@example.com", "welcome")
	if err != nil {
		t.Fatalf("CanSend() error = %v", err)
	}
	if canSend {
		t.Error("CanSend() = true, want false")
	}
	if seenBody["action"] != "canSend" {
		t.Errorf("action = %v, want canSend", seenBody["action"])
	}
}

func TestClientSendWelcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/emails/welcome" {
			t.Errorf("path = %q, want /api/emails/welcome", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"messageId": "msg-42"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", server.Client())

	messageID, err := client.SendWelcome(context.Background(), &model.MappedUser{
		Email:             "a@example.com",
		PrimaryIdentifier: "a@example.com",
		ActualAuthMethod:  model.AuthMethodEmail,
	})
	if err != nil {
		t.Fatalf("SendWelcome() error = %v", err)
	}
	if messageID != "msg-42" {
		t.Errorf("messageID = %q, want msg-42", messageID)
	}
}
