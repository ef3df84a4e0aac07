// 注文サービスのエントリポイント。
// 注文の管理と、商品・利用者情報を組み合わせた注文詳細の集約を担当する。
// Edge Routerを経由したリクエストだけを受け付ける。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nao1215/ecommerce/internal/order"
	"github.com/nao1215/ecommerce/pkg/config"
	"github.com/nao1215/ecommerce/pkg/telemetry"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Order
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	logger := config.NewLogger("order", cfg.LogLevel)

	shutdown, err := telemetry.InitTracer("order", cfg.TracingEnabled, logger)
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

	server, err := order.NewServer(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("注文サービスの初期化に失敗: %v", err)
	}
	defer server.Close()

	if err := server.Run(ctx); err != nil {
		log.Printf("注文サービスが異常終了しました: %v", err)
	}
}
