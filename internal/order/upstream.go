package order

import (
	"context"
	"strconv"

	"github.com/nao1215/ecommerce/pkg/httpclient"
)

// ProductDTO は商品サービスが返す商品情報。
type ProductDTO struct {
	// ID は商品ID。
	ID int `json:"id"`
	// Name は商品名。
	Name string `json:"name"`
	// Quantity は在庫数。
	Quantity int `json:"quantity"`
	// Price は現在の単価。
	Price float64 `json:"price"`
}

// ClientDTO は認証サービスが返す利用者情報。
type ClientDTO struct {
	// ID は利用者ID。
	ID int `json:"id"`
	// Name は氏名。
	Name string `json:"name"`
	// PhoneNumber は電話番号。
	PhoneNumber string `json:"phoneNumber"`
	// Address は住所。
	Address string `json:"address"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Role はロール。
	Role string `json:"role"`
}

// ProductReader は商品情報を1回取得する。再試行は呼び出し側が行う。
type ProductReader interface {
	Product(ctx context.Context, id int) httpclient.Result[ProductDTO]
}

// ClientReader は利用者情報を1回取得する。再試行は呼び出し側が行う。
type ClientReader interface {
	Client(ctx context.Context, id int) httpclient.Result[ClientDTO]
}

// httpProductReader はゲートウェイ経由で商品サービスを呼び出す ProductReader。
type httpProductReader struct {
	// client はゲートウェイへのHTTPクライアント。
	client *httpclient.Client
}

// NewProductReader は client を使って商品情報を取得する ProductReader を返す。
func NewProductReader(client *httpclient.Client) ProductReader {
	return &httpProductReader{client: client}
}

// Product は GET /api/v1/products/{id} を1回呼び出す。
func (r *httpProductReader) Product(ctx context.Context, id int) httpclient.Result[ProductDTO] {
	return httpclient.Fetch[ProductDTO](ctx, r.client, "/api/v1/products/"+strconv.Itoa(id))
}

// httpClientReader はゲートウェイ経由で認証サービスを呼び出す ClientReader。
type httpClientReader struct {
	// client はゲートウェイへのHTTPクライアント。
	client *httpclient.Client
}

// NewClientReader は client を使って利用者情報を取得する ClientReader を返す。
func NewClientReader(client *httpclient.Client) ClientReader {
	return &httpClientReader{client: client}
}

// Client は GET /api/v1/users/{id} を1回呼び出す。
func (r *httpClientReader) Client(ctx context.Context, id int) httpclient.Result[ClientDTO] {
	return httpclient.Fetch[ClientDTO](ctx, r.client, "/api/v1/users/"+strconv.Itoa(id))
}
