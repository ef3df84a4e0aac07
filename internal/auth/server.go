package auth

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
	"golang.org/x/crypto/bcrypt"
)

// Server は認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は利用者テーブルへのアクセス。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// logger はアプリケーションログの出力先。
	logger *slog.Logger
	// jwtSecret はユーザーJWTの署名鍵。
	jwtSecret string
	// tokenTTL は発行するJWTの有効期間。
	tokenTTL time.Duration
	// bcryptCost はパスワードハッシュのコスト。
	bcryptCost int
}

// NewServer は新しい認証サーバーを生成する。
// SQLiteデータベースを開き、マイグレーションを適用する。
func NewServer(ctx context.Context, cfg config.Auth, logger *slog.Logger) (*Server, error) {
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
		router:     gin.New(),
		port:       cfg.Port,
		store:      NewStore(db),
		db:         db,
		logger:     logger,
		jwtSecret:  cfg.JWTSecret,
		tokenTTL:   cfg.TokenTTL,
		bcryptCost: bcrypt.DefaultCost,
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
	return httpserver.Run(ctx, "auth", s.port, s.router, s.logger)
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

	// ゲートウェイ経由の呼び出しのみ受け付ける
	api := s.router.Group("/api/v1", middleware.GatewayOnly(verifier, s.logger))
	{
		auth := api.Group("/auth")
		{
			// 利用者登録
			auth.POST("/register", s.handleRegister())
			// ログイン
			auth.POST("/login", s.handleLogin())
		}
		// 利用者情報取得
		api.GET("/users/:id", s.handleGetUser())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth"})
	})
}

// registerRequest は利用者登録リクエストのJSON構造。
type registerRequest struct {
	// Name は氏名。
	Name string `json:"name" binding:"required"`
	// PhoneNumber は電話番号。
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	// Address は住所。
	Address string `json:"address" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password は平文のパスワード。bcryptの制限により72バイトまで。
	Password string `json:"password" binding:"required,min=6,max=72"`
	// Role はロール。
	Role string `json:"role" binding:"required,oneof=Admin User"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password は平文のパスワード。
	Password string `json:"password" binding:"required"`
}

// loginResponse はログイン成功時のJSON構造。
type loginResponse struct {
	response.Response
	// Token は発行したユーザーJWT。
	Token string `json:"token"`
}

// userResponse は利用者情報のJSONレスポンス構造。パスワードは含めない。
type userResponse struct {
	// ID は利用者の一意識別子。
	ID int `json:"id"`
	// Name は氏名。
	Name string `json:"name"`
	// PhoneNumber は電話番号。
	PhoneNumber string `json:"phoneNumber"`
	// Address は住所。
	Address string `json:"address"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Role はロール。
	Role string `json:"role"`
}

// handleRegister は利用者登録を処理するハンドラを返す。
// 同じメールアドレスが登録済みの場合は400を返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Failure(fmt.Sprintf("Invalid data provided: %v", err)))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
		if err != nil {
			_ = c.Error(fmt.Errorf("パスワードのハッシュ化に失敗: %w", err))
			c.Abort()
			return
		}

		id, err := s.store.Create(c.Request.Context(), User{
			Name:         req.Name,
			PhoneNumber:  req.PhoneNumber,
			Address:      req.Address,
			Email:        req.Email,
			PasswordHash: string(hash),
			Role:         req.Role,
		})
		if errors.Is(err, ErrDuplicate) {
			c.JSON(http.StatusBadRequest, response.Failure("User with this Email already exist"))
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		s.logger.Info("利用者を登録しました", slog.Int("user_id", id))
		c.JSON(http.StatusCreated, response.Success("User registered successfully"))
	}
}

// handleLogin はログインを処理するハンドラを返す。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Failure(fmt.Sprintf("Invalid data provided: %v", err)))
			return
		}

		user, err := s.store.GetByEmail(c.Request.Context(), req.Email)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusBadRequest, response.Failure("Invalid credentials"))
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusBadRequest, response.Failure("Invalid credentials"))
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, middleware.Identity{
			UserID: user.ID,
			Name:   user.Name,
			Email:  user.Email,
			Role:   user.Role,
		}, s.tokenTTL)
		if err != nil {
			_ = c.Error(fmt.Errorf("JWT生成に失敗: %w", err))
			c.Abort()
			return
		}

		c.JSON(http.StatusOK, loginResponse{
			Response: response.Success("Login successful"),
			Token:    token,
		})
	}
}

// handleGetUser は利用者情報の取得を処理するハンドラを返す。
func (s *Server) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.String(http.StatusBadRequest, "Invalid user id")
			return
		}

		user, err := s.store.GetByID(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			c.String(http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.JSON(http.StatusOK, userResponse{
			ID:          user.ID,
			Name:        user.Name,
			PhoneNumber: user.PhoneNumber,
			Address:     user.Address,
			Email:       user.Email,
			Role:        user.Role,
		})
	}
}
