// Package httpserver はサービスのHTTPサーバーの起動と停止を提供する。
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout は停止時に処理中のリクエストを待つ時間。
const shutdownTimeout = 10 * time.Second

// Run は handler をトレース計装付きで公開し、ctx が終了したら停止する。
func Run(ctx context.Context, service, port string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("ポート %s のリッスンに失敗: %w", port, err)
	}
	return Serve(ctx, service, ln, handler, logger)
}

// Serve は ln で handler を公開し、ctx が終了したら停止する。
func Serve(ctx context.Context, service string, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           otelhttp.NewHandler(handler, service),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTPサーバーを起動しました", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーが異常終了: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
		}
		logger.Info("HTTPサーバーを停止しました")
		return nil
	})
	return g.Wait()
}
