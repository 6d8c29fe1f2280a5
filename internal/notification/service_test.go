package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/usdfinancial/backend/internal/model"
)

// mockPreferenceRepo は関数フィールドで差し替え可能なPreferenceRepositoryのモック。
type mockPreferenceRepo struct {
	findFunc   func(ctx context.Context, userIdentifier, emailType string) (*model.EmailPreference, error)
	upsertFunc func(ctx context.Context, pref *model.EmailPreference) error
}

func (m *mockPreferenceRepo) Find(ctx context.Context, userIdentifier, emailType string) (*model.EmailPreference, error) {
	if m.findFunc == nil {
		return nil, nil
	}
	return m.findFunc(ctx, userIdentifier, emailType)
}

func (m *mockPreferenceRepo) Upsert(ctx context.Context, pref *model.EmailPreference) error {
	if m.upsertFunc == nil {
		return nil
	}
	return m.upsertFunc(ctx, pref)
}

// mockDispatcher は送信されたメッセージを記録するDispatcherのモック。
type mockDispatcher struct {
	dispatchFunc func(ctx context.Context, msg *Message) (string, error)
	sent         []*Message
}

func (m *mockDispatcher) Dispatch(ctx context.Context, msg *Message) (string, error) {
	m.sent = append(m.sent, msg)
	if m.dispatchFunc == nil {
		return "msg-1", nil
	}
	return m.dispatchFunc(ctx, msg)
}

func TestCanSend_DefaultsToAllowedWithoutRecord(t *testing.T) {
	s := NewService(&mockPreferenceRepo{}, &mockDispatcher{}, "from@example.com")

	canSend, err := s.CanSend(context.Background(), "a@example.com", "welcome")
	if err != nil {
		t.Fatalf("CanSend() error = %v", err)
	}
	// 設定レコードがないユーザーはオプトアウトしていないため送信可
	if !canSend {
		t.Error("CanSend() = false, want true for unknown identifier")
	}
}

func TestCanSend_HonorsOptOut(t *testing.T) {
	prefs := &mockPreferenceRepo{
		findFunc: func(ctx context.Context, userIdentifier, emailType string) (*model.EmailPreference, error) {
			return &model.EmailPreference{
				UserIdentifier: userIdentifier,
				EmailType:      emailType,
				Allowed:        false,
			}, nil
		},
	}
	s := NewService(prefs, &mockDispatcher{}, "from@example.com")

	canSend, err := s.CanSend(context.Background(), "a@example.com", "welcome")
	if err != nil {
		t.Fatalf("CanSend() error = %v", err)
	}
	if canSend {
		t.Error("CanSend() = true, want false for opted-out user")
	}
}

func TestCanSend_RequiresIdentifier(t *testing.T) {
	s := NewService(&mockPreferenceRepo{}, &mockDispatcher{}, "from@example.com")

	_, err := s.CanSend(context.Background(), "", "welcome")

	var svcErr *model.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestSetPreference_PersistsRecord(t *testing.T) {
	var saved *model.EmailPreference
	prefs := &mockPreferenceRepo{
		upsertFunc: func(ctx context.Context, pref *model.EmailPreference) error {
			saved = pref
			return nil
		},
	}
	s := NewService(prefs, &mockDispatcher{}, "from@example.com")

	if err := s.SetPreference(context.Background(), "a@example.com", "welcome", false); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}

	if saved == nil {
		t.Fatal("preference should be persisted")
	}
	if saved.Allowed {
		t.Error("saved preference should be disallowed")
	}
	if saved.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestSendWelcome_RejectsNonEmailRecipient(t *testing.T) {
	s := NewService(&mockPreferenceRepo{}, &mockDispatcher{}, "from@example.com")

	cases := []string{"", "0x1234567890123456789012345678901234567890", "not-an-email"}
	for _, recipient := range cases {
		_, err := s.SendWelcome(context.Background(), &WelcomeRequest{Recipient: recipient})

		var svcErr *model.ServiceError
		if !errors.As(err, &svcErr) || svcErr.Code != "VALIDATION_ERROR" {
			t.Errorf("SendWelcome(%q) error = %v, want VALIDATION_ERROR", recipient, err)
		}
	}
}

func TestSendWelcome_DispatchesMessage(t *testing.T) {
	dispatcher := &mockDispatcher{}
	s := NewService(&mockPreferenceRepo{}, dispatcher, "USD Financial <welcome@usdfinancial.example>")

	messageID, err := s.SendWelcome(context.Background(), &WelcomeRequest{
		Recipient:     "a@example.com",
		Name:          "Alice",
		WalletAddress: "0x1234567890123456789012345678901234567890",
		SignupMethod:  "google",
	})
	if err != nil {
		t.Fatalf("SendWelcome() error = %v", err)
	}

	if messageID != "msg-1" {
		t.Errorf("messageID = %q, want msg-1", messageID)
	}
	if len(dispatcher.sent) != 1 {
		t.Fatalf("dispatched messages = %d, want 1", len(dispatcher.sent))
	}

	msg := dispatcher.sent[0]
	if msg.To != "a@example.com" {
		t.Errorf("To = %q, want a@example.com", msg.To)
	}
	if msg.Subject != "Welcome to USD Financial" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Alice") {
		t.Error("body should contain the recipient name")
	}
	if !strings.Contains(msg.HTML, "0x1234567890123456789012345678901234567890") {
		t.Error("body should mention the linked wallet")
	}
}

func TestSendWelcome_EscapesHTMLInName(t *testing.T) {
	dispatcher := &mockDispatcher{}
	s := NewService(&mockPreferenceRepo{}, dispatcher, "from@example.com")

	_, err := s.SendWelcome(context.Background(), &WelcomeRequest{
		Recipient: "a@example.com",
		Name:      "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("SendWelcome() error = %v", err)
	}

	if strings.Contains(dispatcher.sent[0].HTML, "<script>") {
		t.Error("name should be HTML-escaped in the body")
	}
}

func TestSendWelcome_PropagatesDispatchError(t *testing.T) {
	dispatcher := &mockDispatcher{
		dispatchFunc: func(ctx context.Context, msg *Message) (string, error) {
			return "", model.NewExternalServiceError("email", errors.New("provider down"))
		},
	}
	s := NewService(&mockPreferenceRepo{}, dispatcher, "from@example.com")

	_, err := s.SendWelcome(context.Background(), &WelcomeRequest{Recipient: "a@example.com"})

	var svcErr *model.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != "EXTERNAL_SERVICE_ERROR" {
		t.Errorf("error = %v, want EXTERNAL_SERVICE_ERROR", err)
	}
}
