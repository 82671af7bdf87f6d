package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// InternalErrorMessage はクライアントに返す500エラーの共通メッセージ。
const InternalErrorMessage = "内部サーバーエラーが発生しました"

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレースをログに出力し、JSONで500エラーを返す。
// 既にレスポンスを書き込み済みの場合はステータスだけを記録する。
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Error().
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("request_id", c.GetString(RequestIDKey)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("パニックから回復しました")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"msg": InternalErrorMessage})
		}()
		c.Next()
	}
}
