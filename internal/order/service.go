package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/ecommerce/pkg/httpclient"
	"github.com/nao1215/ecommerce/pkg/resilience"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// 集約に必要な上流サービスの名前。
const (
	// DependencyProduct は商品サービス。
	DependencyProduct = "product"
	// DependencyClient は認証サービス。
	DependencyClient = "client"
)

// OrderReader はローカルの注文を取得する。
type OrderReader interface {
	Get(ctx context.Context, id int) (Order, error)
}

// Details は注文、商品、利用者を組み合わせた注文詳細。
type Details struct {
	// OrderID は注文ID。
	OrderID int `json:"orderId"`
	// ProductID は商品ID。
	ProductID int `json:"productId"`
	// ClientID は利用者ID。
	ClientID int `json:"clientId"`
	// ClientName は利用者の氏名。
	ClientName string `json:"clientName"`
	// ClientEmail は利用者のメールアドレス。
	ClientEmail string `json:"clientEmail"`
	// ClientAddress は利用者の住所。
	ClientAddress string `json:"clientAddress"`
	// ClientPhone は利用者の電話番号。
	ClientPhone string `json:"clientPhone"`
	// ProductName は商品名。
	ProductName string `json:"productName"`
	// PurchaseQuantity は購入数。
	PurchaseQuantity int `json:"purchaseQuantity"`
	// UnitPrice は取得時点の単価。
	UnitPrice float64 `json:"unitPrice"`
	// TotalPrice は購入数と単価の積を小数第2位に丸めた値。
	TotalPrice float64 `json:"totalPrice"`
	// OrderedDate は注文日時。
	OrderedDate time.Time `json:"orderedDate"`
}

// OutcomeKind は注文詳細の取得結果の種類。
type OutcomeKind int

const (
	// OutcomeFound は注文詳細を組み立てられたことを表す。
	OutcomeFound OutcomeKind = iota + 1
	// OutcomeNotFound は注文が存在しないことを表す。
	OutcomeNotFound
	// OutcomeDegraded は上流サービスから情報を得られなかったことを表す。
	OutcomeDegraded
)

// String はログ出力用の名前を返す。
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome は注文詳細の取得結果。
type Outcome struct {
	// Kind は結果の種類。
	Kind OutcomeKind
	// Details は Kind が OutcomeFound のときの注文詳細。
	Details Details
	// Dependency は Kind が OutcomeDegraded のときに失敗した上流サービス名。
	Dependency string
	// Reason は Kind が OutcomeDegraded のときの失敗の原因。
	Reason error
}

// Service は注文詳細を集約する。
type Service struct {
	// orders はローカルの注文。
	orders OrderReader
	// products は商品サービス。
	products ProductReader
	// clients は認証サービス。
	clients ClientReader
	// policy は上流呼び出しの再試行ポリシー。両方の呼び出しで共有する。
	policy resilience.Policy
	// logger はアプリケーションログの出力先。
	logger *slog.Logger
}

// NewService は新しい Service を生成する。
func NewService(orders OrderReader, products ProductReader, clients ClientReader, policy resilience.Policy, logger *slog.Logger) *Service {
	return &Service{
		orders:   orders,
		products: products,
		clients:  clients,
		policy:   policy,
		logger:   logger,
	}
}

// GetOrderDetails は注文詳細を組み立てる。
//
// 注文が存在しなければ OutcomeNotFound、商品か利用者のどちらかを取得できなければ
// OutcomeDegraded を返す。エラーを返すのは、ローカルの注文の取得に失敗した場合と
// ctx が終了した場合だけ。
func (s *Service) GetOrderDetails(ctx context.Context, orderID int) (Outcome, error) {
	if orderID <= 0 {
		return Outcome{Kind: OutcomeNotFound}, nil
	}

	o, err := s.orders.Get(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return Outcome{Kind: OutcomeNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	var (
		product httpclient.Result[ProductDTO]
		client  httpclient.Result[ClientDTO]
		g       errgroup.Group
	)
	// 一方の失敗で他方を打ち切らない。それぞれが自分の試行回数を使い切る。
	g.Go(func() error {
		product = resilience.Execute(ctx, s.policy, func(ctx context.Context) httpclient.Result[ProductDTO] {
			return s.products.Product(ctx, o.ProductID)
		})
		return nil
	})
	g.Go(func() error {
		client = resilience.Execute(ctx, s.policy, func(ctx context.Context) httpclient.Result[ClientDTO] {
			return s.clients.Client(ctx, o.ClientID)
		})
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	p, ok := product.Get()
	if !ok {
		return s.degraded(orderID, DependencyProduct, product.Err()), nil
	}
	c, ok := client.Get()
	if !ok {
		return s.degraded(orderID, DependencyClient, client.Err()), nil
	}

	return Outcome{Kind: OutcomeFound, Details: aggregate(o, p, c)}, nil
}

// degraded は上流の失敗を記録して OutcomeDegraded を返す。
func (s *Service) degraded(orderID int, dependency string, reason error) Outcome {
	s.logger.Warn("上流サービスから情報を取得できませんでした",
		slog.Int("order_id", orderID),
		slog.String("dependency", dependency),
		slog.String("policy", s.policy.Name),
		slog.Any("error", reason),
	)
	return Outcome{Kind: OutcomeDegraded, Dependency: dependency, Reason: reason}
}

// aggregate は注文、商品、利用者から注文詳細を組み立てる。
// 合計金額は注文時ではなく今回取得した単価で計算する。
func aggregate(o Order, p ProductDTO, c ClientDTO) Details {
	unit := decimal.NewFromFloat(p.Price)
	total := unit.Mul(decimal.NewFromInt(int64(o.PurchaseQuantity))).Round(2)

	return Details{
		OrderID:          o.ID,
		ProductID:        p.ID,
		ClientID:         c.ID,
		ClientName:       c.Name,
		ClientEmail:      c.Email,
		ClientAddress:    c.Address,
		ClientPhone:      c.PhoneNumber,
		ProductName:      p.Name,
		PurchaseQuantity: o.PurchaseQuantity,
		UnitPrice:        p.Price,
		TotalPrice:       total.InexactFloat64(),
		OrderedDate:      o.OrderedDate,
	}
}
