package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ecommerce/pkg/trust"
	"golang.org/x/time/rate"
)

const (
	// limiterIdleTTL はこの時間アクセスのないクライアントのリミッターを破棄する。
	limiterIdleTTL = 30 * time.Minute
	// limiterPruneInterval は破棄対象を探す間隔。
	limiterPruneInterval = 5 * time.Minute
)

// visitor はクライアント1件分のリミッター。
type visitor struct {
	// limiter はトークンバケット。
	limiter *rate.Limiter
	// lastSeen は最後にリクエストを受けた時刻。
	lastSeen time.Time
}

// clientLimiter はクライアントIPごとのレート制限を管理する。
// Edge Routerで唯一の、リクエストをまたいで共有される可変状態。
type clientLimiter struct {
	// mu は visitors と lastPrune を保護する。
	mu sync.Mutex
	// visitors はクライアントIPごとのリミッター。
	visitors map[string]*visitor
	// limit は1秒あたりの許容リクエスト数。
	limit rate.Limit
	// burst はバースト許容量。
	burst int
	// lastPrune は最後に破棄処理をした時刻。
	lastPrune time.Time
}

// newClientLimiter は新しい clientLimiter を生成する。
func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	return &clientLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		lastPrune: time.Now(),
	}
}

// allow は key のクライアントのリクエストを受け付けてよいかを返す。
func (l *clientLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > limiterPruneInterval {
		l.prune(now)
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// prune はしばらくアクセスのないクライアントのリミッターを破棄する。
// mu を保持した状態で呼び出すこと。
func (l *clientLimiter) prune(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > limiterIdleTTL {
			delete(l.visitors, key)
		}
	}
	l.lastPrune = now
}

// size は保持しているリミッターの数を返す。
func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// rateLimit はクライアントIPごとにリクエスト数を制限するGinミドルウェアを返す。
// 上限を超えた場合は429で中断する（本文は FaultTranslator が構造化エラーにする）。
// l が nil の場合は制限しない。internal で検証できるトラストマーカーを持つ
// サービス間の呼び出しは、利用者の上限を消費しないよう制限の対象外とする。
func rateLimit(l *clientLimiter, internal *trust.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		if internal != nil && internal.Verify(c.Request) == nil {
			c.Next()
			return
		}
		if !l.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
