package telemetry

import (
	"io"
	"log/slog"
	"testing"
)

func TestInitTracer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("無効の場合は何もしない終了関数が返ること", func(t *testing.T) {
		shutdown, err := InitTracer("test", false, logger)
		if err != nil {
			t.Fatalf("InitTracer()でエラーが発生: %v", err)
		}
		if err := shutdown(t.Context()); err != nil {
			t.Errorf("shutdown()でエラーが発生: %v", err)
		}
	})

	t.Run("有効の場合はプロバイダを終了できること", func(t *testing.T) {
		shutdown, err := InitTracer("test", true, logger)
		if err != nil {
			t.Fatalf("InitTracer()でエラーが発生: %v", err)
		}
		if err := shutdown(t.Context()); err != nil {
			t.Errorf("shutdown()でエラーが発生: %v", err)
		}
	})
}
