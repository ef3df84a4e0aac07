package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ecommerce/pkg/config"
	"github.com/nao1215/ecommerce/pkg/httpclient"
	"github.com/nao1215/ecommerce/pkg/httpserver"
	"github.com/nao1215/ecommerce/pkg/middleware"
	"github.com/nao1215/ecommerce/pkg/resilience"
	"github.com/nao1215/ecommerce/pkg/response"
	"github.com/nao1215/ecommerce/pkg/sqlitedb"
	"github.com/nao1215/ecommerce/pkg/trust"
)

// レスポンスメッセージ。
const (
	// invalidMessage は不正なIDや入力に対するメッセージ。
	invalidMessage = "Invalid data provided"
	// notFoundMessage は注文が見つからない場合のメッセージ。
	notFoundMessage = "No order was detected in the database"
	// noOrdersMessage は注文が1件もない場合のメッセージ。
	noOrdersMessage = "No orders was detected in the database"
	// degradedMessageFormat は上流サービスから情報を得られなかった場合のメッセージ。
	degradedMessageFormat = "Order details are currently unavailable: %s service did not respond"
)

// Server は注文サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は注文テーブルへのアクセス。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// service は注文詳細の集約。
	service *Service
	// logger はアプリケーションログの出力先。
	logger *slog.Logger
}

// NewServer は新しい注文サーバーを生成する。
// SQLiteデータベースを開き、再試行ポリシーを読み込んで集約サービスを組み立てる。
func NewServer(ctx context.Context, cfg config.Order, logger *slog.Logger) (*Server, error) {
	registry, err := resilience.LoadRegistry(cfg.ResilienceConfig)
	if err != nil {
		return nil, fmt.Errorf("再試行ポリシーの読み込みに失敗: %w", err)
	}
	policy, err := registry.Lookup(resilience.OrderUpstream)
	if err != nil {
		return nil, err
	}
	policy = policy.WithNotify(func(err error, wait time.Duration) {
		logger.Debug("上流呼び出しを再試行します",
			slog.String("policy", resilience.OrderUpstream),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	})

	verifier, err := trust.NewVerifier([]byte(cfg.GatewaySecret), trust.WithHeader(cfg.GatewayHeader))
	if err != nil {
		return nil, fmt.Errorf("ゲートウェイ検証の初期化に失敗: %w", err)
	}
	signer, err := trust.NewSigner([]byte(cfg.GatewaySecret), trust.WithHeader(cfg.GatewayHeader))
	if err != nil {
		return nil, fmt.Errorf("トラストマーカー署名の初期化に失敗: %w", err)
	}

	db, err := sqlitedb.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	store := NewStore(db)
	// Edge Routerを呼び返す内部呼び出しとして署名し、利用者のレート制限を消費しない
	upstream := httpclient.New(cfg.GatewayURL,
		httpclient.WithTimeout(cfg.UpstreamTimeout),
		httpclient.WithTransport(&trust.Transport{Signer: signer}),
	)

	s := &Server{
		router:  gin.New(),
		port:    cfg.Port,
		store:   store,
		db:      db,
		service: NewService(store, NewProductReader(upstream), NewClientReader(upstream), policy, logger),
		logger:  logger,
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
	return httpserver.Run(ctx, "order", s.port, s.router, s.logger)
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
		orders := api.Group("/orders")
		{
			// 注文一覧取得
			orders.GET("", s.handleList())
			// 注文取得
			orders.GET("/:id", s.handleGet())
			// 注文詳細取得
			orders.GET("/:id/details", s.handleGetDetails())
			// 利用者の注文一覧取得
			orders.GET("/client/:client_id", s.handleListByClient())
			// 注文登録
			orders.POST("", s.handleCreate())
			// 注文更新
			orders.PUT("", s.handleUpdate())
			// 注文削除
			orders.DELETE("/:id", s.handleDelete())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "order"})
	})
}

// orderRequest は注文登録・更新リクエストのJSON構造。
type orderRequest struct {
	// ID は注文ID。登録時は省略でき、更新時は必須。
	ID int `json:"id" binding:"gte=0"`
	// ProductID は商品ID。
	ProductID int `json:"productId" binding:"required,gt=0"`
	// ClientID は利用者ID。
	ClientID int `json:"clientId" binding:"required,gt=0"`
	// PurchaseQuantity は購入数。
	PurchaseQuantity int `json:"purchaseQuantity" binding:"required,gt=0"`
	// OrderedDate は注文日時。省略時は受付時刻。
	OrderedDate time.Time `json:"orderedDate"`
}

// orderResponse は注文のJSONレスポンス構造。
type orderResponse struct {
	// ID は注文ID。
	ID int `json:"id"`
	// ProductID は商品ID。
	ProductID int `json:"productId"`
	// ClientID は利用者ID。
	ClientID int `json:"clientId"`
	// PurchaseQuantity は購入数。
	PurchaseQuantity int `json:"purchaseQuantity"`
	// OrderedDate は注文日時。
	OrderedDate time.Time `json:"orderedDate"`
}

// toOrderResponse はストアの注文をJSONレスポンスに変換する。
func toOrderResponse(o Order) orderResponse {
	return orderResponse{
		ID:               o.ID,
		ProductID:        o.ProductID,
		ClientID:         o.ClientID,
		PurchaseQuantity: o.PurchaseQuantity,
		OrderedDate:      o.OrderedDate,
	}
}

// toOrderResponses は注文の一覧をJSONレスポンスに変換する。
func toOrderResponses(orders []Order) []orderResponse {
	responses := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		responses = append(responses, toOrderResponse(o))
	}
	return responses
}

// bindOrder はリクエストを読み取る。不正な場合は400を書き込んで false を返す。
func bindOrder(c *gin.Context) (Order, bool) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Failure(fmt.Sprintf("%s: %v", invalidMessage, err)))
		return Order{}, false
	}
	ordered := req.OrderedDate
	if ordered.IsZero() {
		ordered = time.Now()
	}
	return Order{
		ID:               req.ID,
		ProductID:        req.ProductID,
		ClientID:         req.ClientID,
		PurchaseQuantity: req.PurchaseQuantity,
		OrderedDate:      ordered.UTC(),
	}, true
}

// parseID はパスパラメータを正の整数として読み取る。
func parseID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// abortWithError は想定外のエラーを記録して処理を中断する。
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// handleList は注文一覧の取得を処理するハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := s.store.List(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		if len(orders) == 0 {
			c.String(http.StatusNotFound, noOrdersMessage)
			return
		}
		c.JSON(http.StatusOK, toOrderResponses(orders))
	}
}

// handleGet は注文の取得を処理するハンドラを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.String(http.StatusBadRequest, invalidMessage)
			return
		}

		o, err := s.store.Get(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			c.String(http.StatusNotFound, notFoundMessage)
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// handleListByClient は利用者の注文一覧の取得を処理するハンドラを返す。
func (s *Server) handleListByClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := parseID(c, "client_id")
		if !ok {
			c.String(http.StatusBadRequest, invalidMessage)
			return
		}

		orders, err := s.store.ListByClient(c.Request.Context(), clientID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if len(orders) == 0 {
			c.String(http.StatusNotFound, notFoundMessage)
			return
		}
		c.JSON(http.StatusOK, toOrderResponses(orders))
	}
}

// handleGetDetails は注文詳細の取得を処理するハンドラを返す。
// 呼び出し元のベアラートークンを上流呼び出しに引き継ぐ。
func (s *Server) handleGetDetails() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.String(http.StatusBadRequest, invalidMessage)
			return
		}

		ctx := c.Request.Context()
		if token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); found && token != "" {
			ctx = httpclient.WithBearerToken(ctx, token)
		}

		outcome, err := s.service.GetOrderDetails(ctx, id)
		if err != nil {
			abortWithError(c, err)
			return
		}

		switch outcome.Kind {
		case OutcomeFound:
			c.JSON(http.StatusOK, outcome.Details)
		case OutcomeDegraded:
			c.String(http.StatusNotFound, fmt.Sprintf(degradedMessageFormat, outcome.Dependency))
		default:
			c.String(http.StatusNotFound, notFoundMessage)
		}
	}
}

// handleCreate は注文登録を処理するハンドラを返す。
// 同じIDの注文が登録済みの場合は400を返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := bindOrder(c)
		if !ok {
			return
		}

		id, err := s.store.Create(c.Request.Context(), o)
		if errors.Is(err, ErrDuplicate) {
			c.JSON(http.StatusBadRequest, response.Failure("Order already placed"))
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}

		s.logger.Info("注文を登録しました", slog.Int("order_id", id), slog.Int("client_id", o.ClientID))
		c.JSON(http.StatusCreated, response.Success("Order placed successfully"))
	}
}

// handleUpdate は注文更新を処理するハンドラを返す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := bindOrder(c)
		if !ok {
			return
		}
		if o.ID <= 0 {
			c.JSON(http.StatusBadRequest, response.Failure(invalidMessage+": id is required"))
			return
		}

		err := s.store.Update(c.Request.Context(), o)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, response.Failure(notFoundMessage))
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.Success("Order updated successfully"))
	}
}

// handleDelete は注文削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.String(http.StatusBadRequest, invalidMessage)
			return
		}

		err := s.store.Delete(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			c.String(http.StatusNotFound, notFoundMessage)
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.Success("Order deleted successfully"))
	}
}
