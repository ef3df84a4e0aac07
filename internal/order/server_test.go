package order

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ecommerce/pkg/config"
	"github.com/nao1215/ecommerce/pkg/problem"
	"github.com/nao1215/ecommerce/pkg/response"
	"github.com/nao1215/ecommerce/pkg/trust"
)

func init() {
	gin.SetMode(gin.TestMode)
	gin.DefaultWriter = io.Discard
}

// testGatewaySecret はテスト用のゲートウェイ署名鍵。
const testGatewaySecret = "test-gateway-secret"

// fakeGateway は商品・ユーザー情報を返すゲートウェイを模したサーバー。
type fakeGateway struct {
	// server はテスト用HTTPサーバー。
	server *httptest.Server
	// productStatus は商品取得時に返すステータス。0なら200。
	productStatus int
	// productCalls は商品取得の呼び出し回数。
	productCalls atomic.Int32
	// lastAuth は利用者取得時に受け取った Authorization ヘッダー。
	lastAuth atomic.Value
	// hang が true の場合はリクエストがキャンセルされるまで応答しない。
	hang bool
	// unsigned はトラストマーカーを検証できなかったリクエストの数。
	unsigned atomic.Int32
}

// newFakeGateway は商品3と利用者5を返すゲートウェイを起動する。
func newFakeGateway(t *testing.T, productStatus int, hang bool) *fakeGateway {
	t.Helper()

	verifier, err := trust.NewVerifier([]byte(testGatewaySecret))
	if err != nil {
		t.Fatalf("Verifierの生成に失敗: %v", err)
	}

	g := &fakeGateway{productStatus: productStatus, hang: hang}
	g.lastAuth.Store("")
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if verifier.Verify(r) != nil {
			g.unsigned.Add(1)
		}
		if g.hang {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/products/3":
			g.productCalls.Add(1)
			if g.productStatus != 0 {
				w.WriteHeader(g.productStatus)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 3, "name": "Widget", "quantity": 10, "price": 9.99})
		case "/api/v1/users/5":
			g.lastAuth.Store(r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 5, "name": "Ann", "email": "ann@x.com"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(g.server.Close)
	return g
}

// writePolicyFile は待ち時間なしの再試行ポリシーファイルを書き出す。
func writePolicyFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "resilience.yaml")
	body := "policies:\n  order-upstream:\n    max_attempts: 3\n    backoff: none\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("ポリシーファイルの書き込みに失敗: %v", err)
	}
	return path
}

// setupTestServer はインメモリSQLiteと偽のゲートウェイで注文サーバーを構築する。
func setupTestServer(t *testing.T, gatewayURL string, timeout time.Duration) *Server {
	t.Helper()

	cfg := config.Order{
		Base:             config.Base{RequestTimeout: timeout},
		Trust:            config.Trust{GatewaySecret: testGatewaySecret, GatewayHeader: trust.DefaultHeader},
		DatabasePath:     ":memory:",
		GatewayURL:       gatewayURL,
		UpstreamTimeout:  time.Second,
		ResilienceConfig: writePolicyFile(t),
	}
	s, err := NewServer(t.Context(), cfg, discardLogger)
	if err != nil {
		t.Fatalf("サーバーの生成に失敗: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// doRequest はゲートウェイと同じトラストマーカーを付与してリクエストを実行する。
func doRequest(t *testing.T, s *Server, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("JSONエンコードに失敗: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	signer, err := trust.NewSigner([]byte(testGatewaySecret))
	if err != nil {
		t.Fatalf("Signerの生成に失敗: %v", err)
	}
	if err := signer.Attach(req); err != nil {
		t.Fatalf("トラストマーカーの付与に失敗: %v", err)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// decodeResponse はレスポンスボディをデコードする。
func decodeResponse[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (body=%s)", err, w.Body.String())
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t, "http://127.0.0.1:0", 5*time.Second)
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
}

func TestGatewayOnly(t *testing.T) {
	t.Parallel()

	t.Run("トラストマーカーのないリクエストは503になること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, "http://127.0.0.1:0", 5*time.Second)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", http.NoBody)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestOrderCRUD(t *testing.T) {
	t.Parallel()

	t.Run("注文がない場合の一覧は404になること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, "http://127.0.0.1:0", 5*time.Second)
		w := doRequest(t, s, http.MethodGet, "/api/v1/orders", nil, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
		if w.Body.String() != noOrdersMessage {
			t.Errorf("メッセージ: got %q, want %q", w.Body.String(), noOrdersMessage)
		}
	})

	t.Run("注文の登録から削除までできること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, "http://127.0.0.1:0", 5*time.Second)
		create := map[string]any{
			"id": 7, "productId": 3, "clientId": 5, "purchaseQuantity": 4,
			"orderedDate": "2024-03-01T10:30:00Z",
		}

		w := doRequest(t, s, http.MethodPost, "/api/v1/orders", create, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("登録のステータスコード: got %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
		}
		if got := decodeResponse[response.Response](t, w); !got.Flag {
			t.Errorf("登録のflagがfalse: %+v", got)
		}

		w = doRequest(t, s, http.MethodPost, "/api/v1/orders", create, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("重複登録のステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}

		w = doRequest(t, s, http.MethodGet, "/api/v1/orders/7", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("取得のステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		got := decodeResponse[orderResponse](t, w)
		want := orderResponse{ID: 7, ProductID: 3, ClientID: 5, PurchaseQuantity: 4, OrderedDate: orderedAt}
		if !got.OrderedDate.Equal(want.OrderedDate) {
			t.Errorf("注文日時: got %v, want %v", got.OrderedDate, want.OrderedDate)
		}
		got.OrderedDate = want.OrderedDate
		if got != want {
			t.Errorf("注文: got %+v, want %+v", got, want)
		}

		update := map[string]any{"id": 7, "productId": 3, "clientId": 5, "purchaseQuantity": 9}
		w = doRequest(t, s, http.MethodPut, "/api/v1/orders", update, nil)
		if w.Code != http.StatusOK {
			t.Errorf("更新のステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		o, err := s.store.Get(t.Context(), 7)
		if err != nil {
			t.Fatalf("注文の取得に失敗: %v", err)
		}
		if o.PurchaseQuantity != 9 {
			t.Errorf("購入数: got %d, want 9", o.PurchaseQuantity)
		}

		w = doRequest(t, s, http.MethodDelete, "/api/v1/orders/7", nil, nil)
		if w.Code != http.StatusOK {
			t.Errorf("削除のステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		w = doRequest(t, s, http.MethodGet, "/api/v1/orders/7", nil, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("削除後のステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("存在しない注文の更新と削除は404になること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, "http://127.0.0.1:0", 5*time.Second)
		update := map[string]any{"id": 99, "productId": 3, "clientId": 5, "purchaseQuantity": 1}
		if w := doRequest(t, s, http.MethodPut, "/api/v1/orders", update, nil); w.Code != http.StatusNotFound {
			t.Errorf("更新のステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
		if w := doRequest(t, s, http.MethodDelete, "/api/v1/orders/99", nil, nil); w.Code != http.StatusNotFound {
			t.Errorf("削除のステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("不正な入力は400になること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, "http://127.0.0.1:0", 5*time.Second)
		tests := []struct {
			name   string
			method string
			path   string
			body   any
		}{
			{name: "購入数が0", method: http.MethodPost, path: "/api/v1/orders", body: map[string]any{"productId": 3, "clientId": 5, "purchaseQuantity": 0}},
			{name: "商品IDなし", method: http.MethodPost, path: "/api/v1/orders", body: map[string]any{"clientId": 5, "purchaseQuantity": 1}},
			{name: "更新時のIDなし", method: http.MethodPut, path: "/api/v1/orders", body: map[string]any{"productId": 3, "clientId": 5, "purchaseQuantity": 1}},
			{name: "数値でない注文ID", method: http.MethodGet, path: "/api/v1/orders/abc"},
			{name: "0の利用者ID", method: http.MethodGet, path: "/api/v1/orders/client/0"},
			{name: "負の注文ID", method: http.MethodDelete, path: "/api/v1/orders/-1"},
		}
		for _, tt := range tests {
			w := doRequest(t, s, tt.method, tt.path, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: ステータスコード: got %d, want %d", tt.name, w.Code, http.StatusBadRequest)
			}
		}
	})

	t.Run("利用者ごとの注文一覧を取得できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, "http://127.0.0.1:0", 5*time.Second)
		createOrder(t, s.store, Order{ProductID: 1, ClientID: 5, PurchaseQuantity: 1})
		createOrder(t, s.store, Order{ProductID: 2, ClientID: 6, PurchaseQuantity: 1})
		createOrder(t, s.store, Order{ProductID: 3, ClientID: 5, PurchaseQuantity: 2})

		w := doRequest(t, s, http.MethodGet, "/api/v1/orders/client/5", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		got := decodeResponse[[]orderResponse](t, w)
		if len(got) != 2 || got[0].ProductID != 1 || got[1].ProductID != 3 {
			t.Errorf("注文一覧: got %+v", got)
		}

		w = doRequest(t, s, http.MethodGet, "/api/v1/orders/client/42", nil, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("注文のない利用者のステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}

		w = doRequest(t, s, http.MethodGet, "/api/v1/orders", nil, nil)
		if got := decodeResponse[[]orderResponse](t, w); len(got) != 3 {
			t.Errorf("全注文の件数: got %d, want 3", len(got))
		}
	})
}

func TestOrderDetailsEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("注文詳細が組み立てられトークンが引き継がれること", func(t *testing.T) {
		t.Parallel()

		gateway := newFakeGateway(t, 0, false)
		s := setupTestServer(t, gateway.server.URL, 5*time.Second)
		createOrder(t, s.store, Order{ID: 7, ProductID: 3, ClientID: 5, PurchaseQuantity: 4})

		header := http.Header{"Authorization": []string{"Bearer user-token"}}
		w := doRequest(t, s, http.MethodGet, "/api/v1/orders/7/details", nil, header)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}

		got := decodeResponse[map[string]any](t, w)
		want := map[string]any{
			"orderId": 7.0, "productId": 3.0, "clientId": 5.0, "clientName": "Ann", "clientEmail": "ann@x.com",
			"productName": "Widget", "purchaseQuantity": 4.0, "unitPrice": 9.99, "totalPrice": 39.96,
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("%s: got %v, want %v", k, got[k], v)
			}
		}
		if auth := gateway.lastAuth.Load(); auth != "Bearer user-token" {
			t.Errorf("Authorization: got %q, want %q", auth, "Bearer user-token")
		}
		if n := gateway.unsigned.Load(); n != 0 {
			t.Errorf("トラストマーカーのない上流呼び出し: got %d, want 0", n)
		}
	})

	t.Run("商品サービスが応答しない場合は区別できる404になること", func(t *testing.T) {
		t.Parallel()

		gateway := newFakeGateway(t, http.StatusServiceUnavailable, false)
		s := setupTestServer(t, gateway.server.URL, 5*time.Second)
		createOrder(t, s.store, Order{ID: 7, ProductID: 3, ClientID: 5, PurchaseQuantity: 4})

		w := doRequest(t, s, http.MethodGet, "/api/v1/orders/7/details", nil, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
		want := "Order details are currently unavailable: product service did not respond"
		if w.Body.String() != want {
			t.Errorf("メッセージ: got %q, want %q", w.Body.String(), want)
		}
		if n := gateway.productCalls.Load(); n != 3 {
			t.Errorf("商品取得の試行回数: got %d, want 3", n)
		}
	})

	t.Run("存在しない注文は404になること", func(t *testing.T) {
		t.Parallel()

		gateway := newFakeGateway(t, 0, false)
		s := setupTestServer(t, gateway.server.URL, 5*time.Second)

		w := doRequest(t, s, http.MethodGet, "/api/v1/orders/99/details", nil, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
		if w.Body.String() != notFoundMessage {
			t.Errorf("メッセージ: got %q, want %q", w.Body.String(), notFoundMessage)
		}
		if n := gateway.productCalls.Load(); n != 0 {
			t.Errorf("商品取得の呼び出し回数: got %d, want 0", n)
		}
	})

	t.Run("0以下のIDは400になること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, "http://127.0.0.1:0", 5*time.Second)
		for _, path := range []string{"/api/v1/orders/0/details", "/api/v1/orders/-3/details"} {
			if w := doRequest(t, s, http.MethodGet, path, nil, nil); w.Code != http.StatusBadRequest {
				t.Errorf("%s: ステータスコード: got %d, want %d", path, w.Code, http.StatusBadRequest)
			}
		}
	})

	t.Run("リクエストの期限切れは408になること", func(t *testing.T) {
		t.Parallel()

		gateway := newFakeGateway(t, 0, true)
		s := setupTestServer(t, gateway.server.URL, 100*time.Millisecond)
		createOrder(t, s.store, Order{ID: 7, ProductID: 3, ClientID: 5, PurchaseQuantity: 4})

		w := doRequest(t, s, http.MethodGet, "/api/v1/orders/7/details", nil, nil)
		if w.Code != http.StatusRequestTimeout {
			t.Fatalf("ステータスコード: got %d, want %d (body=%s)", w.Code, http.StatusRequestTimeout, w.Body.String())
		}
		got := decodeResponse[problem.Details](t, w)
		if got != problem.Timeout {
			t.Errorf("エラーボディ: got %+v, want %+v", got, problem.Timeout)
		}
	})

	t.Run("ストアの失敗は500の構造化エラーになること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, "http://127.0.0.1:0", 5*time.Second)
		if err := s.db.Close(); err != nil {
			t.Fatalf("DBのクローズに失敗: %v", err)
		}

		w := doRequest(t, s, http.MethodGet, "/api/v1/orders/7/details", nil, nil)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if got := decodeResponse[problem.Details](t, w); got != problem.Internal {
			t.Errorf("エラーボディ: got %+v, want %+v", got, problem.Internal)
		}
	})
}
