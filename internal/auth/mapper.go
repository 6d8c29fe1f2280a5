package auth

import "github.com/usdfinancial/backend/internal/model"

// DetermineAuthMethod はプロバイダーのユーザー情報から実際の認証手段を決定する。
//
// 優先順位はポリシーとして固定されている。パスキーとOAuthの指標はemailの有無より
// 特異性が高いため先に判定する。
//
//  1. パスキー資格情報あり → passkey
//  2. OAuthトークンあり → google
//  3. emailなしでアドレスあり → wallet
//  4. 上記指標なしでemailあり → email
//  5. フォールバック: emailがあればemail、なければwallet
func DetermineAuthMethod(identity *model.ProviderIdentity) model.AuthMethod {
	switch {
	case identity.CredentialID != "":
		return model.AuthMethodPasskey
	case identity.IDToken != "":
		return model.AuthMethodGoogle
	case identity.Email == "" && identity.Address != "":
		return model.AuthMethodWallet
	case identity.Email != "":
		return model.AuthMethodEmail
	default:
		return model.AuthMethodWallet
	}
}

// MapUser はプロバイダーのユーザー情報から内部ユーザー表現を導出する。
// PrimaryIdentifierはemailがあればemail、なければウォレットアドレスで、
// 副作用の重複排除キーとして使用される。
func MapUser(identity *model.ProviderIdentity) *model.MappedUser {
	authType := model.AuthTypeWallet
	if identity.Email != "" {
		authType = model.AuthTypeEmail
	}

	primary := identity.Email
	if primary == "" {
		primary = identity.Address
	}

	return &model.MappedUser{
		Address:           identity.Address,
		Email:             identity.Email,
		Name:              identity.Name,
		AuthType:          authType,
		ActualAuthMethod:  DetermineAuthMethod(identity),
		PrimaryIdentifier: primary,
	}
}
