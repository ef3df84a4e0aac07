package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout はリクエストのコンテキストに制限時間を設定するGinミドルウェアを返す。
// ハンドラを強制終了はしない。ハンドラ側でコンテキストの期限切れを検知し、
// c.Error で返すことで FaultTranslator が408に変換する。
// timeoutが0以下の場合は何もしない。
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
