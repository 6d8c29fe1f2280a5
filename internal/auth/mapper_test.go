package auth

import (
	"testing"

	"github.com/usdfinancial/backend/internal/model"
)

func TestDetermineAuthMethod(t *testing.T) {
	cases := []struct {
		name     string
		identity model.ProviderIdentity
		want     model.AuthMethod
	}{
		{
			name:     "passkey credential wins over everything",
			identity: model.ProviderIdentity{CredentialID: "cred-1", IDToken: "token", Email: "a@example.com", Address: "0xabc"},
			want:     model.AuthMethodPasskey,
		},
		{
			name:     "oauth token with email",
			identity: model.ProviderIdentity{IDToken: "token", Email: "a@example.com"},
			want:     model.AuthMethodGoogle,
		},
		{
			name:     "address without email",
			identity: model.ProviderIdentity{Address: "0xabc"},
			want:     model.AuthMethodWallet,
		},
		{
			name:     "email without indicators",
			identity: model.ProviderIdentity{Email: "a@example.com", Address: "0xabc"},
			want:     model.AuthMethodEmail,
		},
		{
			name:     "no identifiers falls back to wallet",
			identity: model.ProviderIdentity{Name: "anonymous"},
			want:     model.AuthMethodWallet,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetermineAuthMethod(&tc.identity); got != tc.want {
				t.Errorf("DetermineAuthMethod() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMapUser_PrimaryIdentifierPrefersEmail(t *testing.T) {
	mapped := MapUser(&model.ProviderIdentity{
		Email:   "a@example.com",
		Address: "0x1234567890123456789012345678901234567890",
	})

	if mapped.PrimaryIdentifier != "a@example.com" {
		t.Errorf("PrimaryIdentifier = %q, want email", mapped.PrimaryIdentifier)
	}
	if mapped.AuthType != model.AuthTypeEmail {
		t.Errorf("AuthType = %q, want email", mapped.AuthType)
	}
}

func TestMapUser_WalletOnlyIdentity(t *testing.T) {
	mapped := MapUser(&model.ProviderIdentity{
		Address: "0x1234567890123456789012345678901234567890",
	})

	if mapped.PrimaryIdentifier != "0x1234567890123456789012345678901234567890" {
		t.Errorf("PrimaryIdentifier = %q, want wallet address", mapped.PrimaryIdentifier)
	}
	if mapped.AuthType != model.AuthTypeWallet {
		t.Errorf("AuthType = %q, want wallet", mapped.AuthType)
	}
	if mapped.ActualAuthMethod != model.AuthMethodWallet {
		t.Errorf("ActualAuthMethod = %q, want wallet", mapped.ActualAuthMethod)
	}
}

func TestMapUser_SameEmailDifferentWalletsShareIdentifier(t *testing.T) {
	// 同じemailで別ウォレットのセッションはPrimaryIdentifierが一致し、
	// 副作用の重複排除キーとして同一ユーザーに収束する
	first := MapUser(&model.ProviderIdentity{
		Email:   "a@example.com",
		Address: "0x1111111111111111111111111111111111111111",
	})
	second := MapUser(&model.ProviderIdentity{
		Email:   "a@example.com",
		Address: "0x2222222222222222222222222222222222222222",
	})

	if first.PrimaryIdentifier != second.PrimaryIdentifier {
		t.Errorf("identifiers should match: %q vs %q", first.PrimaryIdentifier, second.PrimaryIdentifier)
	}
}
