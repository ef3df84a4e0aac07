package resilience

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// OrderUpstream は注文詳細の集約で商品サービスと認証サービスの呼び出しに使うポリシー名。
const OrderUpstream = "order-upstream"

// EnvPrefix はポリシーを上書きする環境変数の接頭辞。
// RESILIENCE__ORDER_UPSTREAM__MAX_ATTEMPTS=5 は order-upstream の max_attempts を5にする。
const EnvPrefix = "RESILIENCE__"

// ErrUnknownPolicy は登録されていないポリシー名が指定されたことを表す。
var ErrUnknownPolicy = errors.New("unknown retry policy")

// Registry は名前付き再試行ポリシーの一覧。生成後は変更されない。
type Registry struct {
	// policies はポリシー名からポリシーへの対応。
	policies map[string]Policy
}

// NewRegistry は検証済みのポリシーからレジストリを生成する。
func NewRegistry(policies ...Policy) (*Registry, error) {
	m := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: ポリシー名が空です", ErrInvalidPolicy)
		}
		if _, ok := m[p.Name]; ok {
			return nil, fmt.Errorf("%w: ポリシー %q が重複しています", ErrInvalidPolicy, p.Name)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		m[p.Name] = p
	}
	return &Registry{policies: m}, nil
}

// Lookup は名前に対応するポリシーを返す。
func (r *Registry) Lookup(name string) (Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

// Names は登録されているポリシー名を昇順で返す。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadRegistry はポリシーの一覧を読み込む。
// 組み込みの既定値、path のYAMLファイル（空なら読まない）、環境変数の順に上書きする。
//
// YAMLの形式:
//
//	policies:
//	  order-upstream:
//	    max_attempts: 3
//	    backoff: exponential
//	    initial_interval: 100ms
func LoadRegistry(path string) (*Registry, error) {
	k := koanf.New(".")

	def := DefaultPolicy(OrderUpstream)
	for key, val := range map[string]any{
		"max_attempts":     def.MaxAttempts,
		"backoff":          string(def.Backoff),
		"initial_interval": def.InitialInterval.String(),
		"max_interval":     def.MaxInterval.String(),
		"multiplier":       def.Multiplier,
		"jitter":           def.Jitter,
		"attempt_timeout":  def.AttemptTimeout.String(),
	} {
		if err := k.Set("policies."+OrderUpstream+"."+key, val); err != nil {
			return nil, fmt.Errorf("既定値の設定に失敗: %w", err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("ポリシーファイルが見つかりません: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("ポリシーファイルの読み込みに失敗: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	var raw map[string]Policy
	if err := k.Unmarshal("policies", &raw); err != nil {
		return nil, fmt.Errorf("ポリシーの解析に失敗: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	policies := make([]Policy, 0, len(raw))
	for _, name := range names {
		p := raw[name]
		p.Name = name
		policies = append(policies, p)
	}
	return NewRegistry(policies...)
}

// envKey は環境変数名をkoanfのキーに変換する。
// RESILIENCE__ORDER_UPSTREAM__MAX_ATTEMPTS は policies.order-upstream.max_attempts になる。
// ポリシー名の "_" は "-" として扱う。
func envKey(s string) string {
	parts := strings.Split(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return "policies." + strings.ReplaceAll(parts[0], "_", "-") + "." + parts[1]
}
