// Package auth はBearerトークンによる認証とロールによる認可を行うGinミドルウェアを提供する。
//
// 保護されたルートはProtect、Authorize、ハンドラの順に実行される。
// 各ミドルウェアはリクエストごとに、中断してJSONを返すか次へ進むかのどちらか一方だけを行う。
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/foodhero/internal/account"
	"github.com/nao1215/foodhero/pkg/token"
)

const bearerPrefix = "Bearer "

var (
	// ErrMissingToken はAuthorizationヘッダーにBearerトークンが無いことを表す。
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken はトークンの検証に失敗したことを表す。
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrUnknownSubject はトークンの持ち主が存在しないことを表す。
	ErrUnknownSubject = errors.New("auth: unknown subject")
)

// TokenVerifier はトークンを検証してsubjectIDを返す。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// IdentityResolver はIDから利用者を取得する。
type IdentityResolver interface {
	FindByID(ctx context.Context, id string) (account.Identity, error)
}

// Gate は認証ミドルウェア。
type Gate struct {
	tokens     TokenVerifier
	identities IdentityResolver
	log        zerolog.Logger
}

// NewGate は新しいGateを生成する。
func NewGate(tokens TokenVerifier, identities IdentityResolver, log zerolog.Logger) *Gate {
	return &Gate{
		tokens:     tokens,
		identities: identities,
		log:        log.With().Str("component", "auth").Logger(),
	}
}

// Protect はBearerトークンを検証し、利用者をコンテキストに設定するGinミドルウェアを返す。
// 認証に失敗した場合は401、利用者の取得で障害が起きた場合は500を返して処理を中断する。
func (g *Gate) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := g.authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			status, msg := g.failure(c, err)
			c.AbortWithStatusJSON(status, gin.H{"msg": msg})
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// authenticate はAuthorizationヘッダーの値から利用者を解決する。
func (g *Gate) authenticate(ctx context.Context, header string) (account.Identity, error) {
	raw, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || strings.TrimSpace(raw) == "" {
		return account.Identity{}, ErrMissingToken
	}

	subject, err := g.verify(strings.TrimSpace(raw))
	if err != nil {
		return account.Identity{}, err
	}

	identity, err := g.identities.FindByID(ctx, subject)
	if errors.Is(err, account.ErrNotFound) {
		return account.Identity{}, ErrUnknownSubject
	}
	if err != nil {
		return account.Identity{}, fmt.Errorf("利用者の取得に失敗: %w", err)
	}
	return identity, nil
}

// verify はトークンを検証する。検証中のパニックはErrInvalidTokenとして扱う。
func (g *Gate) verify(raw string) (subject string, err error) {
	defer func() {
		if r := recover(); r != nil {
			subject = ""
			err = fmt.Errorf("%w: panic during verification: %v", ErrInvalidToken, r)
		}
	}()

	subject, err = g.tokens.Verify(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return subject, nil
}

// failure は認証エラーをHTTPステータスとクライアント向けメッセージに変換する。
func (g *Gate) failure(c *gin.Context, err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized, "認証トークンがありません"
	case errors.Is(err, token.ErrExpired):
		return http.StatusUnauthorized, "認証トークンの有効期限が切れています"
	case errors.Is(err, ErrInvalidToken):
		g.log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("トークンの検証に失敗")
		return http.StatusUnauthorized, "認証トークンが無効です"
	case errors.Is(err, ErrUnknownSubject):
		return http.StatusUnauthorized, "トークンの利用者が見つかりません"
	default:
		g.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("認証処理で障害が発生")
		return http.StatusInternalServerError, "内部サーバーエラーが発生しました"
	}
}
