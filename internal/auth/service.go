// Package auth はユーザー登録とログイン（セッショントークンの発行）を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/taskhub/internal/domain"
	"github.com/nao1215/taskhub/internal/repository"
	"github.com/nao1215/taskhub/pkg/event"
	"github.com/nao1215/taskhub/pkg/middleware"
)

// クライアントに返すメッセージ。
const (
	msgCredentialsRequired = "username/password required"
	msgUsernameTaken       = "username taken"
	msgInvalidCredentials  = "invalid credentials"
)

// Service はユーザー登録とログインを扱う。
type Service struct {
	identities repository.IdentityRepository
	issuer     *middleware.TokenIssuer
	publisher  event.Publisher
	logger     *slog.Logger
	cost       int
	// dummyHash は存在しないユーザーのログイン時に比較するハッシュ。
	dummyHash []byte
	now       func() time.Time
}

// New はServiceを生成する。
// costはbcryptのコストで、範囲外の場合はbcrypt.DefaultCostを使う。
func New(identities repository.IdentityRepository, issuer *middleware.TokenIssuer, publisher event.Publisher, logger *slog.Logger, cost int) (*Service, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if publisher == nil {
		publisher = event.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, fmt.Errorf("ダミーハッシュの生成に失敗: %w", err)
	}
	return &Service{
		identities: identities,
		issuer:     issuer,
		publisher:  publisher,
		logger:     logger,
		cost:       cost,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// Register はユーザーを登録する。
// ユーザー名とパスワードのどちらかが空の場合はValidation、ユーザー名が使用済みの場合はConflictを返す。
func (s *Service) Register(ctx context.Context, username, password string) (domain.Identity, error) {
	if username == "" || password == "" {
		return domain.Identity{}, domain.Validation(msgCredentialsRequired)
	}

	count, err := s.identities.CountIdentitiesByUsername(ctx, username)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("ユーザー名の確認に失敗: %w", err)
	}
	if count > 0 {
		return domain.Identity{}, domain.Conflict(msgUsernameTaken)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	identity := domain.Identity{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.identities.CreateIdentity(ctx, identity); err != nil {
		// 確認後に同名ユーザーが登録された場合は一意制約で検出する
		if errors.Is(err, repository.ErrConflict) {
			return domain.Identity{}, domain.Conflict(msgUsernameTaken)
		}
		return domain.Identity{}, fmt.Errorf("ユーザーの登録に失敗: %w", err)
	}

	s.logger.Info("user registered", "user_id", identity.ID)
	event.Emit(ctx, s.publisher, s.logger, identity.ID, event.AggregateTypeUser, event.TypeUserRegistered, identity.ID,
		event.UserRegisteredData{Username: identity.Username})
	return identity, nil
}

// Login は認証情報を検証してセッショントークンを返す。
// ユーザーが存在しない場合とパスワードが違う場合は同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	identity, err := s.identities.GetIdentityByUsername(ctx, username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// 処理時間でユーザーの存在が分からないように比較だけ行う
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return "", domain.Unauthenticated(msgInvalidCredentials)
	case err != nil:
		return "", fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return "", domain.Unauthenticated(msgInvalidCredentials)
	}

	token, err := s.issuer.Issue(middleware.Identity{ID: identity.ID, Username: identity.Username})
	if err != nil {
		return "", fmt.Errorf("トークンの発行に失敗: %w", err)
	}
	s.logger.Info("user logged in", "user_id", identity.ID)
	return token, nil
}
