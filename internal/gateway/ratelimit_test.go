package gateway

import (
	"testing"
	"time"
)

func TestClientLimiter(t *testing.T) {
	t.Parallel()

	t.Run("バーストを超えたリクエストは拒否されること", func(t *testing.T) {
		t.Parallel()

		l := newClientLimiter(1, 2)
		now := time.Now()
		if !l.allow("10.0.0.1", now) || !l.allow("10.0.0.1", now) {
			t.Fatal("バースト内のリクエストが拒否された")
		}
		if l.allow("10.0.0.1", now) {
			t.Error("バーストを超えたリクエストが許可された")
		}
		if !l.allow("10.0.0.2", now) {
			t.Error("別のクライアントが巻き添えで拒否された")
		}
		if !l.allow("10.0.0.1", now.Add(time.Second)) {
			t.Error("時間経過後もリクエストが拒否された")
		}
	})

	t.Run("アクセスのないクライアントは破棄されること", func(t *testing.T) {
		t.Parallel()

		l := newClientLimiter(1, 1)
		start := time.Now()
		l.allow("10.0.0.1", start)
		l.allow("10.0.0.2", start.Add(limiterIdleTTL))
		if got := l.size(); got != 2 {
			t.Fatalf("リミッター数: got %d, want 2", got)
		}

		l.allow("10.0.0.2", start.Add(limiterIdleTTL+limiterPruneInterval+time.Second))
		if got := l.size(); got != 1 {
			t.Errorf("破棄後のリミッター数: got %d, want 1", got)
		}
	})
}
