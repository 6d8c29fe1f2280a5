// Package user はユーザーディレクトリのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/usdfinancial/backend/internal/model"
	"github.com/usdfinancial/backend/internal/repository"
)

// Service はユーザーディレクトリのサービス層。
// 認証フローの永続化ステップ（検索・作成・最終認証時刻の記録）を提供する。
type Service struct {
	repo repository.UserRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.UserRepository) *Service {
	return &Service{repo: repo}
}

// FindUser はemail優先・ウォレットアドレスフォールバックでユーザーを検索する。
// 見つからない場合はnilを返す（エラーにはしない）。
func (s *Service) FindUser(ctx context.Context, email, walletAddress string) (*model.User, error) {
	if email == "" && walletAddress == "" {
		return nil, model.NewValidationError(
			"Missing required field: email or walletAddress",
			map[string]any{"fields": []string{"email", "walletAddress"}},
		)
	}

	if email != "" {
		found, err := s.repo.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to find user by email: %w", err)
		}
		if found != nil {
			return found, nil
		}
	}

	if walletAddress != "" {
		found, err := s.repo.FindByWalletAddress(ctx, walletAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to find user by wallet address: %w", err)
		}
		if found != nil {
			return found, nil
		}
	}

	return nil, nil
}

// CreateUser は新規ユーザーを作成する。
// emailとウォレットアドレスの両方が空の場合はValidationErrorを返す。
// 一意制約違反はリポジトリ層でDUPLICATE_ENTRYに変換される。
func (s *Service) CreateUser(ctx context.Context, email, walletAddress, name string, method model.AuthMethod) (*model.User, error) {
	if email == "" && walletAddress == "" {
		return nil, model.NewValidationError(
			"Missing required field: email or walletAddress",
			map[string]any{"fields": []string{"email", "walletAddress"}},
		)
	}

	now := time.Now().UTC()
	newUser := &model.User{
		ID:            uuid.New().String(),
		Email:         email,
		WalletAddress: walletAddress,
		Name:          name,
		AuthMethod:    method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, newUser); err != nil {
		return nil, err
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("auth_method", string(method)),
	)

	return newUser, nil
}

// RecordAuth はユーザーの最終認証時刻と認証手段を記録する。
// 対象が存在しない場合はNOT_FOUNDのServiceErrorを返す。
func (s *Service) RecordAuth(ctx context.Context, userID string, method model.AuthMethod) (*model.User, error) {
	if userID == "" {
		return nil, model.NewValidationError(
			"Missing required field: userId",
			map[string]any{"field": "userId"},
		)
	}

	updated, err := s.repo.UpdateLastAuth(ctx, userID, method, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to record authentication: %w", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError("user")
	}

	return updated, nil
}
