package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ecommerce/pkg/config"
	"github.com/nao1215/ecommerce/pkg/httpserver"
	"github.com/nao1215/ecommerce/pkg/middleware"
	"github.com/nao1215/ecommerce/pkg/response"
	"github.com/nao1215/ecommerce/pkg/sqlitedb"
	"github.com/nao1215/ecommerce/pkg/trust"
	"github.com/shopspring/decimal"
)

// 商品が見つからない場合のメッセージ。
const notFoundMessage = "No product detected in database"

// Server は商品サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は商品テーブルへのアクセス。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// logger はアプリケーションログの出力先。
	logger *slog.Logger
}

// NewServer は新しい商品サーバーを生成する。
// SQLiteデータベースを開き、マイグレーションを適用する。
func NewServer(ctx context.Context, cfg config.Product, logger *slog.Logger) (*Server, error) {
	db, err := sqlitedb.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	verifier, err := trust.NewVerifier([]byte(cfg.GatewaySecret), trust.WithHeader(cfg.GatewayHeader))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ゲートウェイ検証の初期化に失敗: %w", err)
	}

	s := &Server{
		router: gin.New(),
		port:   cfg.Port,
		store:  NewStore(db),
		db:     db,
		logger: logger,
	}
	s.setupRoutes(verifier, cfg.RequestTimeout)

	return s, nil
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx が終了するまでブロックする。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Run(ctx, "product", s.port, s.router, s.logger)
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(verifier *trust.Verifier, timeout time.Duration) {
	s.router.Use(gin.Logger())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.FaultTranslator(s.logger))
	s.router.Use(middleware.Timeout(timeout))

	api := s.router.Group("/api/v1", middleware.GatewayOnly(verifier, s.logger))
	{
		products := api.Group("/products")
		{
			// 商品一覧取得
			products.GET("", s.handleList())
			// 商品詳細取得
			products.GET("/:id", s.handleGet())
			// 商品登録
			products.POST("", s.handleCreate())
			// 商品更新
			products.PUT("", s.handleUpdate())
			// 商品削除
			products.DELETE("/:id", s.handleDelete())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "product"})
	})
}

// productRequest は商品登録・更新リクエストのJSON構造。
type productRequest struct {
	// ID は商品ID。登録時は省略でき、更新時は必須。
	ID int `json:"id" binding:"gte=0"`
	// Name は商品名。
	Name string `json:"name" binding:"required"`
	// Quantity は在庫数。
	Quantity int `json:"quantity" binding:"gte=0"`
	// Price は単価。数値と文字列のどちらでも受け付ける。
	Price decimal.Decimal `json:"price"`
}

// productResponse は商品のJSONレスポンス構造。
type productResponse struct {
	// ID は商品ID。
	ID int `json:"id"`
	// Name は商品名。
	Name string `json:"name"`
	// Quantity は在庫数。
	Quantity int `json:"quantity"`
	// Price は単価。
	Price float64 `json:"price"`
}

// toProductResponse はストアの商品をJSONレスポンスに変換する。
func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:       p.ID,
		Name:     p.Name,
		Quantity: p.Quantity,
		Price:    p.Price.InexactFloat64(),
	}
}

// bindProduct はリクエストを読み取り、単価を検証する。
// 不正な場合は400を書き込んで false を返す。
func bindProduct(c *gin.Context) (Product, bool) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Failure(fmt.Sprintf("Invalid data provided: %v", err)))
		return Product{}, false
	}
	if !req.Price.IsPositive() {
		c.JSON(http.StatusBadRequest, response.Failure("Invalid data provided: price must be positive"))
		return Product{}, false
	}
	return Product{
		ID:       req.ID,
		Name:     req.Name,
		Quantity: req.Quantity,
		Price:    req.Price.Round(2),
	}, true
}

// parseID はパスパラメータのIDを読み取る。正の整数でなければ false を返す。
func parseID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// handleList は商品一覧の取得を処理するハンドラを返す。
// 1件もない場合は404を返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := s.store.List(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		if len(products) == 0 {
			c.String(http.StatusNotFound, notFoundMessage)
			return
		}

		responses := make([]productResponse, 0, len(products))
		for _, p := range products {
			responses = append(responses, toProductResponse(p))
		}
		c.JSON(http.StatusOK, responses)
	}
}

// handleGet は商品詳細の取得を処理するハンドラを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			c.String(http.StatusBadRequest, "Invalid data provided")
			return
		}

		p, err := s.store.Get(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			c.String(http.StatusNotFound, notFoundMessage)
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, toProductResponse(p))
	}
}

// handleCreate は商品登録を処理するハンドラを返す。
// 同じ名前の商品が登録済みの場合は400を返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := bindProduct(c)
		if !ok {
			return
		}

		id, err := s.store.Create(c.Request.Context(), p)
		if errors.Is(err, ErrDuplicate) {
			c.JSON(http.StatusBadRequest, response.Failure(p.Name+" already added"))
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		s.logger.Info("商品を登録しました", slog.Int("product_id", id), slog.String("name", p.Name))
		c.JSON(http.StatusCreated, response.Success(p.Name+" is added successfully"))
	}
}

// handleUpdate は商品更新を処理するハンドラを返す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := bindProduct(c)
		if !ok {
			return
		}
		if p.ID <= 0 {
			c.JSON(http.StatusBadRequest, response.Failure("Invalid data provided: id is required"))
			return
		}

		err := s.store.Update(c.Request.Context(), p)
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, response.Failure(p.Name+" not found"))
			return
		case errors.Is(err, ErrDuplicate):
			c.JSON(http.StatusBadRequest, response.Failure(p.Name+" already added"))
			return
		case err != nil:
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.JSON(http.StatusOK, response.Success(p.Name+" is updated successfully"))
	}
}

// handleDelete は商品削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			c.String(http.StatusBadRequest, "Invalid data provided")
			return
		}

		p, err := s.store.Get(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			c.String(http.StatusNotFound, notFoundMessage)
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		if err := s.store.Delete(c.Request.Context(), id); err != nil {
			if errors.Is(err, ErrNotFound) {
				c.String(http.StatusNotFound, notFoundMessage)
				return
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.JSON(http.StatusOK, response.Success(p.Name+" is deleted successfully"))
	}
}
