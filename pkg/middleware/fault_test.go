package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ecommerce/pkg/problem"
)

// discardLogger はテスト出力を汚さないロガー。
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newFaultRouter はFaultTranslatorを最外周に置いたテスト用ルーターを生成する。
func newFaultRouter(path string, handlers ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(FaultTranslator(discardLogger))
	router.GET(path, handlers...)
	return router
}

// decodeProblem はレスポンスを構造化エラーとしてパースする。
func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) problem.Details {
	t.Helper()

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var got problem.Details
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v (body=%s)", err, w.Body.String())
	}
	return got
}

// TestFaultTranslatorStatusRewrite は特定ステータスの本文が構造化エラーに置き換わることを検証する。
func TestFaultTranslatorStatusRewrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler gin.HandlerFunc
		want    problem.Details
	}{
		{
			name: "429は Warning に置き換わること",
			handler: func(c *gin.Context) {
				c.String(http.StatusTooManyRequests, "slow down")
			},
			want: problem.Details{Title: "Warning", Detail: "Too many request made.", Status: 429},
		},
		{
			name: "401は Alert に置き換わること",
			handler: func(c *gin.Context) {
				c.AbortWithStatus(http.StatusUnauthorized)
			},
			want: problem.Details{Title: "Alert", Detail: "You are not authorized to access.", Status: 401},
		},
		{
			name: "403は Out of Access (403) に置き換わること",
			handler: func(c *gin.Context) {
				c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			},
			want: problem.Details{Title: "Out of Access", Detail: "You are not allowed to access.", Status: 403},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			newFaultRouter("/x", tt.handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tt.want.Status {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.want.Status)
			}
			if got := decodeProblem(t, w); got != tt.want {
				t.Errorf("body = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestFaultTranslatorFailures はパニックと記録されたエラーの変換を検証する。
func TestFaultTranslatorFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		handlers []gin.HandlerFunc
		want     problem.Details
	}{
		{
			name: "文字列のパニックは500になること",
			handlers: []gin.HandlerFunc{func(_ *gin.Context) {
				panic("テスト用パニック")
			}},
			want: problem.Internal,
		},
		{
			name: "c.Errorで記録されたエラーは500になり詳細が漏れないこと",
			handlers: []gin.HandlerFunc{func(c *gin.Context) {
				_ = c.Error(errors.New("sqlite: database is locked"))
				c.Abort()
			}},
			want: problem.Internal,
		},
		{
			name: "DeadlineExceededは408になること",
			handlers: []gin.HandlerFunc{func(c *gin.Context) {
				_ = c.Error(context.DeadlineExceeded)
				c.Abort()
			}},
			want: problem.Timeout,
		},
		{
			name: "ラップされたキャンセルのパニックも408になること",
			handlers: []gin.HandlerFunc{func(_ *gin.Context) {
				panic(errors.Join(errors.New("upstream call"), context.Canceled))
			}},
			want: problem.Timeout,
		},
		{
			name: "Timeoutミドルウェアの期限切れが408になること",
			handlers: []gin.HandlerFunc{
				Timeout(10 * time.Millisecond),
				func(c *gin.Context) {
					<-c.Request.Context().Done()
					_ = c.Error(c.Request.Context().Err())
					c.Abort()
				},
			},
			want: problem.Timeout,
		},
		{
			name: "書き込み済みのレスポンスよりエラーが優先されること",
			handlers: []gin.HandlerFunc{func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"partial": true})
				_ = c.Error(errors.New("late failure"))
			}},
			want: problem.Internal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			newFaultRouter("/x", tt.handlers...).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tt.want.Status {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.want.Status)
			}
			got := decodeProblem(t, w)
			if got != tt.want {
				t.Errorf("body = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestFaultTranslatorPassthrough は対象外のレスポンスがそのまま返ることを検証する。
func TestFaultTranslatorPassthrough(t *testing.T) {
	t.Parallel()

	t.Run("200のJSONはそのまま返ること", func(t *testing.T) {
		t.Parallel()

		router := newFaultRouter("/ok", func(c *gin.Context) {
			c.Header("X-Custom", "kept")
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `{"status":"ok"}` {
			t.Errorf("body = %q", got)
		}
		if got := w.Header().Get("X-Custom"); got != "kept" {
			t.Errorf("X-Custom = %q, want %q", got, "kept")
		}
	})

	t.Run("本文なしのステータス指定も反映されること", func(t *testing.T) {
		t.Parallel()

		router := newFaultRouter("/created", func(c *gin.Context) {
			c.Status(http.StatusCreated)
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/created", nil))

		if w.Code != http.StatusCreated {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
	})

	t.Run("404のプレーンテキストは書き換えないこと", func(t *testing.T) {
		t.Parallel()

		router := newFaultRouter("/missing", func(c *gin.Context) {
			c.String(http.StatusNotFound, "No order was detected in the database")
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		if got := w.Body.String(); got != "No order was detected in the database" {
			t.Errorf("body = %q", got)
		}
	})

	t.Run("未登録のルートはGinの既定の404になること", func(t *testing.T) {
		t.Parallel()

		router := newFaultRouter("/exists", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("パニック後も次のリクエストを処理できること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(FaultTranslator(discardLogger))
		router.GET("/panic", func(_ *gin.Context) { panic("boom") })
		router.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "recovered"}) })

		w1 := httptest.NewRecorder()
		router.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/panic", nil))
		w2 := httptest.NewRecorder()
		router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ok", nil))

		if w1.Code != http.StatusInternalServerError {
			t.Errorf("1回目のステータスコード = %d, want %d", w1.Code, http.StatusInternalServerError)
		}
		if w2.Code != http.StatusOK {
			t.Errorf("2回目のステータスコード = %d, want %d", w2.Code, http.StatusOK)
		}
	})
}
