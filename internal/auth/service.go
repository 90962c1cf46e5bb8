// Package auth は初回セットアップ、パスワード認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// SessionMaxAge はセッション有効期間（秒）。
	SessionMaxAge int

	// SetupMasterPassword は初回セットアップ時に要求する合言葉。
	// 空の場合はセットアップエンドポイントが無効になる。
	SetupMasterPassword string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	owners   repository.OwnerRepository
	sessions repository.SessionRepository
	config   ServiceConfig
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	owners repository.OwnerRepository,
	sessions repository.SessionRepository,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		owners:   owners,
		sessions: sessions,
		config:   config,
		logger:   logger,
	}
}

// Setup は最初の管理者アカウントを作成し、セッションを発行する。
// マスターパスワードが一致しない場合、またはアカウントがすでに存在する
// 場合は失敗する。
func (s *Service) Setup(ctx context.Context, masterPassword, name, email, password string) (*model.Owner, *model.Session, error) {
	if s.config.SetupMasterPassword == "" || masterPassword != s.config.SetupMasterPassword {
		return nil, nil, model.NewUnauthorizedError()
	}
	if name == "" || email == "" || len(password) < 8 {
		return nil, nil, model.NewInvalidRequestError("名前・メールアドレス・8文字以上のパスワードが必要です")
	}

	count, err := s.owners.Count(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("アカウント数の確認に失敗しました: %w", err)
	}
	if count > 0 {
		return nil, nil, model.NewInvalidRequestError("セットアップはすでに完了しています")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	apiKey, err := NewAPIKey()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	owner := &model.Owner{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         "administrator",
		APIKey:       apiKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.owners.Create(ctx, owner); err != nil {
		return nil, nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	session, err := s.createSession(ctx, owner.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("管理者アカウントを作成しました",
		slog.String("owner_id", owner.ID),
		slog.String("email", email),
	)
	return owner, session, nil
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// アカウントの不存在とパスワード不一致は区別せず同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Owner, *model.Session, error) {
	owner, err := s.owners.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("アカウントの検索に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, nil, model.NewUnauthorizedError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.NewUnauthorizedError()
	}

	session, err := s.createSession(ctx, owner.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("ログインしました", slog.String("owner_id", owner.ID))
	return owner, session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// CurrentOwner はセッションIDから現在のアカウントを取得する。
// セッションが無効または期限切れの場合はUNAUTHORIZEDを返す。
func (s *Service) CurrentOwner(ctx context.Context, sessionID string) (*model.Owner, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	owner, err := s.owners.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewUnauthorizedError()
	}
	return owner, nil
}

// OwnerByAPIKey はAPIキーからアカウントを取得する。公開予約APIで使う。
func (s *Service) OwnerByAPIKey(ctx context.Context, apiKey string) (*model.Owner, error) {
	if apiKey == "" {
		return nil, model.NewUnauthorizedError()
	}
	owner, err := s.owners.FindByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("アカウントの検索に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewUnauthorizedError()
	}
	return owner, nil
}

// RegenerateAPIKey はアカウントのAPIキーを再生成して返す。
// 旧キーは即座に無効になる。
func (s *Service) RegenerateAPIKey(ctx context.Context, ownerID string) (string, error) {
	apiKey, err := NewAPIKey()
	if err != nil {
		return "", err
	}
	if err := s.owners.UpdateAPIKey(ctx, ownerID, apiKey); err != nil {
		return "", fmt.Errorf("APIキーの更新に失敗しました: %w", err)
	}
	s.logger.Info("APIキーを再生成しました", slog.String("owner_id", ownerID))
	return apiKey, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, ownerID string) (*model.Session, error) {
	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    ownerID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("セッションの保存に失敗しました: %w", err)
	}
	return session, nil
}

// NewAPIKey は暗号的に安全なAPIキーを生成する。
func NewAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("APIキーの生成に失敗しました: %w", err)
	}
	return "bk_" + hex.EncodeToString(b), nil
}
