package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ecommerce/pkg/config"
	"github.com/nao1215/ecommerce/pkg/httpserver"
	"github.com/nao1215/ecommerce/pkg/middleware"
	"github.com/nao1215/ecommerce/pkg/trust"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// adminRole は商品の登録・更新・削除を許可するロール。
const adminRole = "Admin"

// forwardedHeaders は下流サービスへ引き継ぐリクエストヘッダー。
var forwardedHeaders = []string{"Content-Type", "Authorization", "Accept"}

// markerAttacher は転送リクエストにトラストマーカーを付与する。
type markerAttacher interface {
	Attach(req *http.Request) error
}

// Server はEdge RouterのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// jwtSecret はユーザーJWTの検証鍵。
	jwtSecret string
	// signer は転送リクエストにトラストマーカーを付与する。
	signer markerAttacher
	// client は下流サービスへの転送に使うHTTPクライアント。
	client *http.Client
	// limiter はクライアントごとのレート制限。nil なら制限しない。
	limiter *clientLimiter
	// internal はサービスからの呼び出しに付いたトラストマーカーを検証する。
	internal *trust.Verifier
	// serviceURLs は下流サービスのURL。
	serviceURLs serviceURLConfig
	// logger はアプリケーションログの出力先。
	logger *slog.Logger
}

// serviceURLConfig は下流サービスのURL設定。
type serviceURLConfig struct {
	// Auth は認証サービスのURL。
	Auth string
	// Product は商品サービスのURL。
	Product string
	// Order は注文サービスのURL。
	Order string
}

// NewServer は新しいEdge Routerサーバーを生成する。
func NewServer(cfg config.Gateway, logger *slog.Logger) (*Server, error) {
	signer, err := trust.NewSigner([]byte(cfg.GatewaySecret), trust.WithHeader(cfg.GatewayHeader))
	if err != nil {
		return nil, fmt.Errorf("トラストマーカー署名の初期化に失敗: %w", err)
	}

	internal, err := trust.NewVerifier([]byte(cfg.GatewaySecret), trust.WithHeader(cfg.GatewayHeader))
	if err != nil {
		return nil, fmt.Errorf("内部呼び出し検証の初期化に失敗: %w", err)
	}

	var limiter *clientLimiter
	if cfg.RateLimit > 0 {
		limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	router := gin.New()
	// 信用するプロキシ以外から届いた X-Forwarded-For は無視する
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("信用するプロキシの設定に失敗: %w", err)
	}

	s := &Server{
		router:    router,
		port:      cfg.Port,
		jwtSecret: cfg.JWTSecret,
		signer:    signer,
		client: &http.Client{
			Timeout:   cfg.ProxyTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:  limiter,
		internal: internal,
		serviceURLs: serviceURLConfig{
			Auth:    cfg.AuthURL,
			Product: cfg.ProductURL,
			Order:   cfg.OrderURL,
		},
		logger: logger,
	}
	s.setupRoutes(cfg.RequestTimeout, cfg.CORSOrigins)

	return s, nil
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx が終了するまでブロックする。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Run(ctx, "gateway", s.port, s.router, s.logger)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(timeout time.Duration, origins []string) {
	s.router.Use(gin.Logger())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.FaultTranslator(s.logger))
	s.router.Use(middleware.Timeout(timeout))
	s.router.Use(middleware.CORS(origins))
	s.router.Use(rateLimit(s.limiter, s.internal))

	requireUser := middleware.JWTAuth(s.jwtSecret)
	requireAdmin := middleware.RequireRole(adminRole)

	api := s.router.Group("/api/v1")
	{
		// 認証（JWT不要）
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.handleProxy(s.serviceURLs.Auth))
			auth.POST("/login", s.handleProxy(s.serviceURLs.Auth))
		}

		// 利用者情報
		api.GET("/users/:id", requireUser, s.handleProxy(s.serviceURLs.Auth))

		// 商品（参照はJWT不要、変更は管理者のみ）
		products := api.Group("/products")
		{
			products.GET("", s.handleProxy(s.serviceURLs.Product))
			products.GET("/:id", s.handleProxy(s.serviceURLs.Product))
			products.POST("", requireUser, requireAdmin, s.handleProxy(s.serviceURLs.Product))
			products.PUT("", requireUser, requireAdmin, s.handleProxy(s.serviceURLs.Product))
			products.DELETE("/:id", requireUser, requireAdmin, s.handleProxy(s.serviceURLs.Product))
		}

		// 注文
		orders := api.Group("/orders", requireUser)
		{
			orders.GET("", s.handleProxy(s.serviceURLs.Order))
			orders.GET("/:id", s.handleProxy(s.serviceURLs.Order))
			orders.GET("/:id/details", s.handleProxy(s.serviceURLs.Order))
			orders.GET("/client/:client_id", s.handleProxy(s.serviceURLs.Order))
			orders.POST("", s.handleProxy(s.serviceURLs.Order))
			orders.PUT("", s.handleProxy(s.serviceURLs.Order))
			orders.DELETE("/:id", s.handleProxy(s.serviceURLs.Order))
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// handleProxy は同じパスのまま指定されたサービスへ転送するハンドラを返す。
func (s *Server) handleProxy(baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := baseURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, proxyURL)
	}
}

// doProxy はリクエストを下流サービスに転送する共通処理。
// トラストマーカーを付与できない場合は転送せずに中断する。
func (s *Server) doProxy(c *gin.Context, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
	if err != nil {
		abortWithError(c, fmt.Errorf("プロキシリクエストの作成に失敗: %w", err))
		return
	}
	req.ContentLength = c.Request.ContentLength

	for _, h := range forwardedHeaders {
		if v := c.GetHeader(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	req.Header.Set(middleware.HeaderRequestID, middleware.GetRequestID(c))

	if err := s.signer.Attach(req); err != nil {
		abortWithError(c, fmt.Errorf("トラストマーカーの付与に失敗: %w", err))
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		abortWithError(c, fmt.Errorf("下流サービスとの通信に失敗: url=%s: %w", url, err))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		abortWithError(c, fmt.Errorf("レスポンスの読み取りに失敗: %w", err))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}

// abortWithError は想定外のエラーを記録して処理を中断する。
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
