// Package config は各サービスの環境変数設定とロガーの生成を提供する。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Base は全サービスに共通の設定。
type Base struct {
	// LogLevel はアプリケーションログの出力レベル（debug, info, warn, error）。
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// TracingEnabled はOpenTelemetryのトレース出力を有効にするかどうか。
	TracingEnabled bool `env:"TRACING_ENABLED" envDefault:"false"`
	// RequestTimeout は1リクエストの処理時間の上限。
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// Trust はゲートウェイ経由の呼び出しを検証するための設定。
type Trust struct {
	// GatewaySecret はゲートウェイとサービスが共有する署名鍵。
	GatewaySecret string `env:"GATEWAY_SECRET,notEmpty"`
	// GatewayHeader はゲートウェイの署名を載せるヘッダー名。
	GatewayHeader string `env:"GATEWAY_HEADER" envDefault:"Api-Gateway"`
}

// Gateway はゲートウェイの設定。
type Gateway struct {
	Base
	Trust
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`
	// JWTSecret はユーザーJWTの検証鍵。認証サービスと同じ値を設定する。
	JWTSecret string `env:"JWT_SECRET,notEmpty"`
	// AuthURL は認証サービスのURL。
	AuthURL string `env:"AUTH_SERVICE_URL" envDefault:"http://localhost:8081"`
	// ProductURL は商品サービスのURL。
	ProductURL string `env:"PRODUCT_SERVICE_URL" envDefault:"http://localhost:8082"`
	// OrderURL は注文サービスのURL。
	OrderURL string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8083"`
	// ProxyTimeout は下流サービスへの転送1回あたりのタイムアウト。
	ProxyTimeout time.Duration `env:"PROXY_TIMEOUT" envDefault:"30s"`
	// RateLimit はクライアントごとの1秒あたりの許容リクエスト数。
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"10"`
	// RateBurst はクライアントごとのバースト許容量。
	RateBurst int `env:"RATE_BURST" envDefault:"20"`
	// CORSOrigins は許可するオリジンの一覧。"*" はすべてを許可する。
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	// TrustedProxies は X-Forwarded-For を信用するプロキシのIPまたはCIDR。
	// 空の場合は接続元のアドレスだけでクライアントを識別する。
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// Auth は認証サービスの設定。
type Auth struct {
	Base
	Trust
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8081"`
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string `env:"DATABASE_PATH" envDefault:"/data/auth.db"`
	// JWTSecret はユーザーJWTの署名鍵。
	JWTSecret string `env:"JWT_SECRET,notEmpty"`
	// TokenTTL は発行するJWTの有効期間。
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

// Product は商品サービスの設定。
type Product struct {
	Base
	Trust
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8082"`
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string `env:"DATABASE_PATH" envDefault:"/data/product.db"`
}

// Order は注文サービスの設定。
type Order struct {
	Base
	Trust
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8083"`
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string `env:"DATABASE_PATH" envDefault:"/data/order.db"`
	// GatewayURL は商品・ユーザー情報を取得するときに経由するゲートウェイのURL。
	GatewayURL string `env:"GATEWAY_URL" envDefault:"http://localhost:8080"`
	// UpstreamTimeout は上流呼び出し1回あたりのHTTPタイムアウト。
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"5s"`
	// ResilienceConfig は再試行ポリシーのYAMLファイルのパス。空なら既定値を使う。
	ResilienceConfig string `env:"RESILIENCE_CONFIG"`
}

// ParseEnv は環境変数から target を読み込む。
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// NewLogger はサービス名を属性に持つJSON形式のロガーを生成する。
// 不明なレベルは info として扱う。
func NewLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler).With(slog.String("service", service))
}

// ParseLevel はログレベルの文字列を slog.Level に変換する。
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
