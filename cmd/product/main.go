// 商品サービスのエントリポイント。
// 商品カタログの参照と管理を担当する。
// Edge Routerを経由したリクエストだけを受け付ける。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nao1215/ecommerce/internal/product"
	"github.com/nao1215/ecommerce/pkg/config"
	"github.com/nao1215/ecommerce/pkg/telemetry"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Product
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	logger := config.NewLogger("product", cfg.LogLevel)

	shutdown, err := telemetry.InitTracer("product", cfg.TracingEnabled, logger)
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

	server, err := product.NewServer(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("商品サービスの初期化に失敗: %v", err)
	}
	defer server.Close()

	if err := server.Run(ctx); err != nil {
		log.Printf("商品サービスが異常終了しました: %v", err)
	}
}
