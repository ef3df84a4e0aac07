package trust

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultHeader はトラストマーカーを載せるHTTPヘッダー名の既定値。
const DefaultHeader = "Api-Gateway"

// issuer はトラストマーカーの発行者。
const issuer = "ecommerce-gateway"

var (
	// ErrMissing はトラストマーカーが付与されていないことを表す。
	ErrMissing = errors.New("trust: marker is missing")
	// ErrInvalid は署名・有効期限・発行者のいずれかの検証に失敗したことを表す。
	ErrInvalid = errors.New("trust: marker is invalid")
	// ErrMismatch はマーカーが別のメソッドまたはパスに対して発行されたことを表す。
	ErrMismatch = errors.New("trust: marker does not match request")
)

// markerClaims はトラストマーカーのクレーム。
type markerClaims struct {
	jwt.RegisteredClaims
	// Method は転送先リクエストのHTTPメソッド。
	Method string `json:"mth"`
	// Path は転送先リクエストのパス。
	Path string `json:"pth"`
}

// settings は Signer と Verifier の共通設定。
type settings struct {
	header string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// Option は Signer / Verifier の設定を変更する。
type Option func(*settings)

// WithHeader はマーカーを載せるヘッダー名を指定する。
func WithHeader(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.header = name
		}
	}
}

// WithTTL はマーカーの有効期間を指定する。Signer のみが参照する。
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLeeway は時刻検証の許容誤差を指定する。Verifier のみが参照する。
func WithLeeway(leeway time.Duration) Option {
	return func(s *settings) {
		if leeway >= 0 {
			s.leeway = leeway
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		header: DefaultHeader,
		ttl:    30 * time.Second,
		leeway: 5 * time.Second,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Signer は転送リクエストにトラストマーカーを付与する。Edge Routerと、
// Edge Routerを呼び返すサービスが保持する。
type Signer struct {
	// key はHS256の署名鍵。下流サービスと共有する。
	key []byte
	settings
}

// NewSigner は新しい Signer を生成する。鍵が空の場合はエラーを返す。
func NewSigner(key []byte, opts ...Option) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("trust: signing key is empty")
	}
	return &Signer{key: key, settings: newSettings(opts)}, nil
}

// Attach は送信前のリクエストにトラストマーカーを付与する。
// エラーが返された場合、呼び出し側はリクエストを転送してはならない。
func (s *Signer) Attach(req *http.Request) error {
	if req == nil || req.URL == nil {
		return errors.New("trust: request has no URL")
	}

	now := s.now()
	claims := markerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
		Method: req.Method,
		Path:   req.URL.Path,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return fmt.Errorf("trust: failed to sign marker: %w", err)
	}
	req.Header.Set(s.header, signed)
	return nil
}

// Verifier は受信リクエストのトラストマーカーを検証する。状態を持たない。
type Verifier struct {
	// key はHS256の検証鍵。
	key []byte
	settings
}

// NewVerifier は新しい Verifier を生成する。鍵が空の場合はエラーを返す。
func NewVerifier(key []byte, opts ...Option) (*Verifier, error) {
	if len(key) == 0 {
		return nil, errors.New("trust: verification key is empty")
	}
	return &Verifier{key: key, settings: newSettings(opts)}, nil
}

// Header はマーカーを読み取るヘッダー名を返す。
func (v *Verifier) Header() string {
	return v.header
}

// Verify はリクエストがEdge Routerを経由したものかを検証する。
func (v *Verifier) Verify(r *http.Request) error {
	raw := r.Header.Get(v.header)
	if raw == "" {
		return ErrMissing
	}

	claims := &markerClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if claims.Method != r.Method || claims.Path != r.URL.Path {
		return ErrMismatch
	}
	return nil
}
