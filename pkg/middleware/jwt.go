package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer はトークンのiss クレームに設定する発行者名。
const tokenIssuer = "taskhub"

// headerKeyUserID は認証済みユーザーIDを返すHTTPヘッダーキー。
const headerKeyUserID = "X-User-ID"

// 認証失敗時にクライアントへ返すメッセージ。
const (
	errMsgMissingHeader = "missing authorization header"
	errMsgInvalidToken  = "invalid token"
)

// ErrInvalidToken はトークンの形式・署名・有効期限のいずれかが不正であることを表す。
var ErrInvalidToken = errors.New("invalid token")

// Identity はトークンから復元した認証済みユーザー。
// リクエストごとに生成され、変更されない。
type Identity struct {
	// ID はユーザーの一意識別子。
	ID string
	// Username はユーザー名。
	Username string
}

// JWTClaims はセッショントークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
}

// TokenIssuer は単一のサーバー秘密鍵でセッショントークンを署名・検証する。
type TokenIssuer struct {
	// secret はHS256署名用の秘密鍵。
	secret []byte
	// ttl はトークンの有効期間。
	ttl time.Duration
	// now は現在時刻を返す関数。テストで差し替える。
	now func() time.Time
}

// NewTokenIssuer は新しいTokenIssuerを生成する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue はユーザー情報から署名済みトークンを生成する。
func (i *TokenIssuer) Issue(identity Identity) (string, error) {
	now := i.now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID:   identity.ID,
		Username: identity.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、ユーザー情報を返す。
// どの検証に失敗してもErrInvalidTokenを返す。
func (i *TokenIssuer) Verify(tokenString string) (Identity, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: claims.UserID, Username: claims.Username}, nil
}

// JWTAuth はBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、リクエストのcontext.Contextにユーザー情報を設定する。
// 後続のハンドラはIdentityFromContextで取り出す。
func JWTAuth(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsgMissingHeader})
			return
		}

		// スキーム名は大文字小文字を区別しない。Bearer以外は署名検証の失敗と同じ扱いにする
		scheme, tokenString, found := strings.Cut(strings.TrimSpace(authHeader), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsgInvalidToken})
			return
		}

		identity, err := issuer.Verify(strings.TrimSpace(tokenString))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsgInvalidToken})
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), identity))
		c.Header(headerKeyUserID, identity.ID)
		c.Next()
	}
}

// identityKey はcontext.Contextにユーザー情報を格納するためのキーの型。
type identityKey struct{}

// WithIdentity はコンテキストに認証済みユーザーを設定する。
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext はコンテキストから認証済みユーザーを取得する。
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || identity.ID == "" {
		return Identity{}, false
	}
	return identity, true
}
