package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffKind は試行間の待ち時間の決め方。
type BackoffKind string

const (
	// BackoffExponential は待ち時間を指数的に伸ばす。
	BackoffExponential BackoffKind = "exponential"
	// BackoffConstant は常に InitialInterval だけ待つ。
	BackoffConstant BackoffKind = "constant"
	// BackoffNone は待たずに次の試行を行う。
	BackoffNone BackoffKind = "none"
)

// ErrInvalidPolicy はポリシーの設定値が不正であることを表す。
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy は1つの名前付き再試行ポリシー。
type Policy struct {
	// Name はポリシー名。
	Name string `koanf:"-"`
	// MaxAttempts は初回を含む最大試行回数。
	MaxAttempts uint `koanf:"max_attempts"`
	// Backoff は試行間の待ち時間の種類。
	Backoff BackoffKind `koanf:"backoff"`
	// InitialInterval は最初の待ち時間。
	InitialInterval time.Duration `koanf:"initial_interval"`
	// MaxInterval は指数バックオフの待ち時間の上限。
	MaxInterval time.Duration `koanf:"max_interval"`
	// Multiplier は指数バックオフの倍率。
	Multiplier float64 `koanf:"multiplier"`
	// Jitter は待ち時間に加えるゆらぎの割合（0から1）。
	Jitter float64 `koanf:"jitter"`
	// AttemptTimeout は1回の試行の制限時間。0なら呼び出し元のコンテキストに従う。
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`
	// MaxElapsed は全試行の合計時間の上限。0ならbackoffの既定値を使う。
	MaxElapsed time.Duration `koanf:"max_elapsed"`

	// notify は再試行の直前に呼ばれる。
	notify func(err error, wait time.Duration)
}

// DefaultPolicy は設定がない場合に使う再試行ポリシーを返す。
// 最大3回、100msから始まる指数バックオフ。
func DefaultPolicy(name string) Policy {
	return Policy{
		Name:            name,
		MaxAttempts:     3,
		Backoff:         BackoffExponential,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Jitter:          0.2,
		AttemptTimeout:  2 * time.Second,
	}
}

// Validate はポリシーの設定値を検証する。
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: %s: max_attempts は1以上である必要があります", ErrInvalidPolicy, p.Name)
	}
	switch p.Backoff {
	case BackoffExponential:
		if p.Multiplier < 1 {
			return fmt.Errorf("%w: %s: multiplier は1以上である必要があります", ErrInvalidPolicy, p.Name)
		}
		if p.MaxInterval > 0 && p.MaxInterval < p.InitialInterval {
			return fmt.Errorf("%w: %s: max_interval が initial_interval より小さいです", ErrInvalidPolicy, p.Name)
		}
	case BackoffConstant, BackoffNone:
	default:
		return fmt.Errorf("%w: %s: 不明なbackoff %q", ErrInvalidPolicy, p.Name, p.Backoff)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("%w: %s: jitter は0から1の範囲である必要があります", ErrInvalidPolicy, p.Name)
	}
	if p.InitialInterval < 0 || p.AttemptTimeout < 0 || p.MaxElapsed < 0 {
		return fmt.Errorf("%w: %s: 時間の設定に負の値があります", ErrInvalidPolicy, p.Name)
	}
	return nil
}

// WithNotify は再試行の直前に fn を呼ぶポリシーのコピーを返す。
// 元のポリシーは変更しない。
func (p Policy) WithNotify(fn func(err error, wait time.Duration)) Policy {
	p.notify = fn
	return p
}

// newBackOff は1回の Execute 専用のバックオフ状態を生成する。
func (p Policy) newBackOff() backoff.BackOff {
	switch p.Backoff {
	case BackoffExponential:
		b := backoff.NewExponentialBackOff()
		if p.InitialInterval > 0 {
			b.InitialInterval = p.InitialInterval
		}
		if p.MaxInterval > 0 {
			b.MaxInterval = p.MaxInterval
		}
		if p.Multiplier > 0 {
			b.Multiplier = p.Multiplier
		}
		b.RandomizationFactor = p.Jitter
		b.Reset()
		return b
	case BackoffConstant:
		return backoff.NewConstantBackOff(p.InitialInterval)
	default:
		return &backoff.ZeroBackOff{}
	}
}

// retryOptions はポリシーを backoff.Retry のオプションに変換する。
func (p Policy) retryOptions() []backoff.RetryOption {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(p.MaxAttempts),
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}
	if p.notify != nil {
		opts = append(opts, backoff.WithNotify(p.notify))
	}
	return opts
}
