package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ecommerce/pkg/trust"
)

// UnavailableMessage はトラストマーカーのないリクエストに返す固定の本文。
const UnavailableMessage = "Sorry, service is unavailable"

// GatewayOnly はEdge Routerを経由していないリクエストを拒否するGinミドルウェアを返す。
// 下流サービスの /api グループに適用する。
//
// マーカーが検証できない場合は503と固定の本文を返し、後続のハンドラは呼び出さない。
// 拒否理由はクライアントには返さず、デバッグログにのみ出力する。
// リクエストごとに独立して判定し、状態は保持しない。
func GatewayOnly(verifier *trust.Verifier, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		if err := verifier.Verify(c.Request); err != nil {
			logger.DebugContext(c.Request.Context(), "request rejected at trust boundary",
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("reason", err.Error()),
			)
			c.String(http.StatusServiceUnavailable, UnavailableMessage)
			c.Abort()
			return
		}
		c.Next()
	}
}
