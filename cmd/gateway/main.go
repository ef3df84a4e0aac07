// Edge Routerのエントリポイント。
// ユーザーJWTの検証、レート制限、下流サービスへの転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、転送するすべてのリクエストに
// トラストマーカーを付与する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nao1215/ecommerce/internal/gateway"
	"github.com/nao1215/ecommerce/pkg/config"
	"github.com/nao1215/ecommerce/pkg/telemetry"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Gateway
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	logger := config.NewLogger("gateway", cfg.LogLevel)

	shutdown, err := telemetry.InitTracer("gateway", cfg.TracingEnabled, logger)
	if err != nil {
		log.Fatalf("トレースの初期化に失敗: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		log.Fatalf("Gatewayサーバーの初期化に失敗: %v", err)
	}

	if err := server.Run(ctx); err != nil {
		log.Printf("Gatewayサービスが異常終了しました: %v", err)
	}
}
