package auth

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/foodhero/internal/account"
)

// RoleSet はアクセスを許可するロールの集合。
type RoleSet map[account.Role]struct{}

// NewRoleSet はrolesを含むRoleSetを生成する。
func NewRoleSet(roles ...account.Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains はroleが集合に含まれるかを返す。
func (s RoleSet) Contains(role account.Role) bool {
	_, ok := s[role]
	return ok
}

// Authorize は利用者のロールがallowedに含まれない場合に403を返すGinミドルウェアを返す。
// Protectの後に登録すること。利用者が設定されていない場合はパニックする。
func Authorize(allowed RoleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := MustIdentity(c)
		if !allowed.Contains(identity.Role()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"msg": fmt.Sprintf("ロール %s はこのリソースにアクセスできません", identity.Role()),
			})
			return
		}
		c.Next()
	}
}
