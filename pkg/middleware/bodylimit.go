package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultBodyLimit はリクエストボディの既定の上限（10MiB）。
const DefaultBodyLimit int64 = 10 << 20

// BodyLimit はリクエストボディをlimitバイトに制限するGinミドルウェアを返す。
// Content-Lengthが上限を超えている場合は413を返して処理を中断する。
// Content-Lengthが無い場合は読み込み時に上限を超えた時点でエラーになる。
func BodyLimit(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"msg": "リクエストボディが大きすぎます"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
