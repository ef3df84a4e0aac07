package trust

import "net/http"

// Transport は送信するすべてのリクエストにトラストマーカーを付与する http.RoundTripper。
// サービスがEdge Routerを呼び返すときに使い、Edge Routerはこれを内部の呼び出しとして扱う。
type Transport struct {
	// Signer はマーカーを署名する。
	Signer *Signer
	// Base は実際に送信する RoundTripper。nil の場合は http.DefaultTransport。
	Base http.RoundTripper
}

// RoundTrip は元のリクエストを変更せず、マーカーを付与した複製を送信する。
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	out := req.Clone(req.Context())
	if err := t.Signer.Attach(out); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	return base.RoundTrip(out)
}

var _ http.RoundTripper = (*Transport)(nil)
