package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable は上流の結果が得られなかったことを表す。
var ErrUnavailable = errors.New("upstream unavailable")

// Result は上流呼び出しの結果。デコード済みの値か、Unavailable のどちらかを保持する。
// 部分的な値が返ることはない。
type Result[T any] struct {
	value T
	err   error
}

// Available は成功した結果を生成する。
func Available[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Unavailable は失敗した結果を生成する。reasonには失敗の原因を渡す。
func Unavailable[T any](reason error) Result[T] {
	if reason == nil {
		return Result[T]{err: ErrUnavailable}
	}
	if errors.Is(reason, ErrUnavailable) {
		return Result[T]{err: reason}
	}
	return Result[T]{err: fmt.Errorf("%w: %w", ErrUnavailable, reason)}
}

// Get は値と成功したかどうかを返す。失敗時の値はゼロ値。
func (r Result[T]) Get() (T, bool) {
	if r.err != nil {
		var zero T
		return zero, false
	}
	return r.value, true
}

// OK は結果が成功したかどうかを返す。
func (r Result[T]) OK() bool {
	return r.err == nil
}

// Err は失敗の原因を返す。成功時は nil。
// 失敗時のエラーは常に ErrUnavailable をラップしている。
func (r Result[T]) Err() error {
	return r.err
}

// Fetch はpathのリソースをGETし、T としてデコードした結果を返す。
// 非2xx、通信エラー、デコード失敗はすべて Unavailable になる。
func Fetch[T any](ctx context.Context, c *Client, path string) Result[T] {
	var value T
	if err := c.GetJSON(ctx, path, &value); err != nil {
		return Unavailable[T](err)
	}
	return Available(value)
}

// Retryable は失敗した呼び出しを繰り返す価値があるかを判定する。
// 408と429を除く4xxは、繰り返しても結果が変わらないため false を返す。
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code == http.StatusRequestTimeout || statusErr.Code == http.StatusTooManyRequests {
			return true
		}
		return statusErr.Code < 400 || statusErr.Code >= 500
	}
	return true
}
