package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ecommerce/pkg/problem"
)

// FaultTranslator は内側のパイプラインで発生した失敗を構造化エラーに変換するGinミドルウェアを返す。
// サービスのミドルウェアチェーンの最も外側（アクセスログの直後）に置くこと。
//
// 内側のレスポンスはいったんバッファされ、完了後に次の順で評価される。
//   - パニック、または c.Error で記録されたエラー: 詳細をログに出力し、
//     タイムアウト系なら408、それ以外は500の構造化エラーを返す
//   - ステータス429/401/403: 対応する構造化エラーで本文を置き換える
//   - それ以外: バッファした内容をそのまま書き出す
func FaultTranslator(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		original := c.Writer
		buffered := &bufferedWriter{ResponseWriter: original, status: original.Status()}
		c.Writer = buffered

		failure := runRecovering(c)
		if failure == nil {
			if last := c.Errors.ByType(gin.ErrorTypePrivate).Last(); last != nil {
				failure = last.Err
			}
		}
		c.Writer = original

		if failure != nil {
			details := problem.Internal
			if isTimeout(failure) {
				details = problem.Timeout
			}
			logger.ErrorContext(c.Request.Context(), "request failed",
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("request_id", c.GetString(requestIDKey)),
				slog.Int("status", details.Status),
				slog.Any("error", failure),
			)
			writeProblem(c, details)
			return
		}

		if details, ok := problem.ForStatus(buffered.Status()); ok {
			writeProblem(c, details)
			return
		}
		buffered.flush()
	}
}

// runRecovering は後続のハンドラを実行し、パニックをエラーとして回収する。
func runRecovering(c *gin.Context) (failure error) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				failure = fmt.Errorf("panic: %w\n%s", err, debug.Stack())
			} else {
				failure = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			}
			c.Abort()
		}
	}()
	c.Next()
	return nil
}

// isTimeout は失敗がタイムアウトまたはキャンセルによるものかを判定する。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// writeProblem は構造化エラーをJSONで書き込む。
// 内側のハンドラが設定したContent-Type等は破棄する。
func writeProblem(c *gin.Context, details problem.Details) {
	header := c.Writer.Header()
	header.Del("Content-Type")
	header.Del("Content-Length")
	c.AbortWithStatusJSON(details.Status, details)
}

// bufferedWriter はレスポンスを書き出さずに保持する gin.ResponseWriter。
// FaultTranslator が本文を置き換えられるよう、ヘッダー送信も遅延させる。
type bufferedWriter struct {
	gin.ResponseWriter
	// body は書き込まれた本文。
	body bytes.Buffer
	// status は最後に指定されたステータスコード。
	status int
	// written は本文またはヘッダーの送信が要求されたかどうか。
	written bool
}

// WriteHeader はステータスコードを記録する。実際の送信は flush まで行わない。
func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.written {
		w.status = code
	}
}

// WriteHeaderNow はヘッダー送信要求を記録する。
func (w *bufferedWriter) WriteHeaderNow() {
	w.written = true
}

// Write は本文をバッファに追記する。
func (w *bufferedWriter) Write(data []byte) (int, error) {
	w.written = true
	return w.body.Write(data)
}

// WriteString は本文をバッファに追記する。
func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.body.WriteString(s)
}

// Status は記録されたステータスコードを返す。
func (w *bufferedWriter) Status() int {
	return w.status
}

// Size はバッファされた本文のサイズを返す。未書き込みの場合は-1。
func (w *bufferedWriter) Size() int {
	if !w.written {
		return -1
	}
	return w.body.Len()
}

// Written は書き込みが要求されたかどうかを返す。
func (w *bufferedWriter) Written() bool {
	return w.written
}

// Flush はバッファリング中は何もしない。
func (w *bufferedWriter) Flush() {}

// flush はバッファした内容を元のResponseWriterに書き出す。
func (w *bufferedWriter) flush() {
	if !w.written {
		// 何も書かれていなければGin本体の既定処理（404本文など）に任せる
		if w.status != w.ResponseWriter.Status() {
			w.ResponseWriter.WriteHeader(w.status)
		}
		return
	}
	w.ResponseWriter.WriteHeader(w.status)
	w.ResponseWriter.WriteHeaderNow()
	if w.body.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.body.Bytes())
	}
}

var _ gin.ResponseWriter = (*bufferedWriter)(nil)
