package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/foodhero/internal/account"
)

// identityKey はGinコンテキストに利用者を格納するキー。
const identityKey = "identity"

// contextKey はcontext.Contextのキーの型。
type contextKey struct{}

// WithIdentity はctxに利用者を設定する。
func WithIdentity(ctx context.Context, identity account.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// FromContext はctxから利用者を取得する。
func FromContext(ctx context.Context) (account.Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(account.Identity)
	return identity, ok
}

// IdentityFrom はProtectが設定した利用者を取得する。
func IdentityFrom(c *gin.Context) (account.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return account.Identity{}, false
	}
	identity, ok := v.(account.Identity)
	return identity, ok
}

// MustIdentity はProtectが設定した利用者を返す。
// Protectを通っていないルートで呼ぶとパニックする。
func MustIdentity(c *gin.Context) account.Identity {
	identity, ok := IdentityFrom(c)
	if !ok {
		panic("auth: identity is not set; register Protect before this handler")
	}
	return identity
}

func setIdentity(c *gin.Context, identity account.Identity) {
	c.Set(identityKey, identity)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), identity))
}
