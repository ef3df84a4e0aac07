package resilience

import (
	"context"

	"github.com/cenkalti/backoff/v5"
	"github.com/nao1215/ecommerce/pkg/httpclient"
)

// Execute は op をポリシーに従って成功するまで繰り返す。
//
// 試行回数を使い切った場合、再試行しても結果の変わらない失敗
// （408と429を除く4xx）を受け取った場合、ctx が終了した場合は Unavailable を返す。
// 呼び出しごとに新しいバックオフ状態を使うため、他の呼び出しと試行回数を共有しない。
func Execute[T any](ctx context.Context, p Policy, op func(ctx context.Context) httpclient.Result[T]) httpclient.Result[T] {
	if err := ctx.Err(); err != nil {
		return httpclient.Unavailable[T](err)
	}

	value, err := backoff.Retry(ctx, func() (T, error) {
		attemptCtx, cancel := p.attemptContext(ctx)
		defer cancel()

		result := op(attemptCtx)
		v, ok := result.Get()
		if ok {
			return v, nil
		}
		if !httpclient.Retryable(result.Err()) {
			return v, backoff.Permanent(result.Err())
		}
		return v, result.Err()
	}, p.retryOptions()...)
	if err != nil {
		return httpclient.Unavailable[T](err)
	}
	return httpclient.Available(value)
}

// attemptContext は1回の試行用のコンテキストを返す。
func (p Policy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.AttemptTimeout)
}
