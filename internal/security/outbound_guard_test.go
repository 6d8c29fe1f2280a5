package security

import (
	"testing"
	"time"
)

func TestValidateURL_AllowsPublicEndpoints(t *testing.T) {
	guard := NewOutboundGuard()

	cases := []string{
		"https://api.resend.com/emails",
		"http://example.com/webhook",
		"https://203.0.113.10/emails",
	}

	for _, rawURL := range cases {
		if err := guard.ValidateURL(rawURL); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", rawURL, err)
		}
	}
}

func TestValidateURL_BlocksInternalTargets(t *testing.T) {
	guard := NewOutboundGuard()

	cases := []string{
		"",
		"ftp://example.com/file",
		"https://10.0.0.5/emails",
		"https://192.168.1.1/admin",
		"https://127.0.0.1/emails",
		"https://169.254.169.254/latest/meta-data",
		"https://localhost/emails",
		"https://[::1]/emails",
	}

	for _, rawURL := range cases {
		if err := guard.ValidateURL(rawURL); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", rawURL)
		}
	}
}

func TestNewSafeClient_SetsTimeout(t *testing.T) {
	guard := NewOutboundGuard()

	client := guard.NewSafeClient(3 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient() should return a client")
	}
	if client.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", client.Timeout)
	}
}
