package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/ecommerce/pkg/sqlitedb"
)

var (
	// ErrNotFound は注文が存在しないことを表す。
	ErrNotFound = errors.New("order not found")
	// ErrDuplicate は同じIDの注文が既に存在することを表す。
	ErrDuplicate = errors.New("order already exists")
)

// Order はローカルに保存された注文。
type Order struct {
	// ID は注文の一意識別子。
	ID int
	// ProductID は注文した商品のID。
	ProductID int
	// ClientID は注文者の利用者ID。
	ClientID int
	// PurchaseQuantity は購入数。
	PurchaseQuantity int
	// OrderedDate は注文日時（UTC）。
	OrderedDate time.Time
}

// Store は注文テーブルへのアクセスを提供する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewStore は新しい Store を生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// selectOrders は注文の取得に使う共通のSELECT句。
const selectOrders = "SELECT id, product_id, client_id, purchase_quantity, ordered_date FROM orders "

// List は全注文をID順に返す。
func (s *Store) List(ctx context.Context) ([]Order, error) {
	return s.query(ctx, selectOrders+"ORDER BY id")
}

// ListByClient は利用者の注文をID順に返す。
func (s *Store) ListByClient(ctx context.Context, clientID int) ([]Order, error) {
	return s.query(ctx, selectOrders+"WHERE client_id = ? ORDER BY id", clientID)
}

// Get はIDで注文を取得する。
func (s *Store) Get(ctx context.Context, id int) (Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, selectOrders+"WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("注文の取得に失敗: %w", err)
	}
	return o, nil
}

// Create は注文を登録し、採番されたIDを返す。
// o.ID が0より大きい場合はそのIDで登録し、既に存在すれば ErrDuplicate を返す。
func (s *Store) Create(ctx context.Context, o Order) (int, error) {
	var id any
	if o.ID > 0 {
		id = o.ID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, product_id, client_id, purchase_quantity, ordered_date)
		VALUES (?, ?, ?, ?, ?)`,
		id, o.ProductID, o.ClientID, o.PurchaseQuantity, o.OrderedDate.UTC().Format(time.RFC3339Nano),
	)
	if sqlitedb.IsUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("注文の登録に失敗: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("採番IDの取得に失敗: %w", err)
	}
	return int(newID), nil
}

// Update は注文の内容を更新する。
func (s *Store) Update(ctx context.Context, o Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET product_id = ?, client_id = ?, purchase_quantity = ?, ordered_date = ?
		WHERE id = ?`,
		o.ProductID, o.ClientID, o.PurchaseQuantity, o.OrderedDate.UTC().Format(time.RFC3339Nano), o.ID,
	)
	if err != nil {
		return fmt.Errorf("注文の更新に失敗: %w", err)
	}
	return requireAffected(res)
}

// Delete はIDで注文を削除する。
func (s *Store) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("注文の削除に失敗: %w", err)
	}
	return requireAffected(res)
}

// query は複数の注文を取得する。
func (s *Store) query(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("注文の読み取りに失敗: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗: %w", err)
	}
	return orders, nil
}

// scanner は *sql.Row と *sql.Rows に共通の読み取りメソッド。
type scanner interface {
	Scan(dest ...any) error
}

// scanOrder は1行を Order に読み取る。
func scanOrder(row scanner) (Order, error) {
	var (
		o       Order
		ordered string
	)
	if err := row.Scan(&o.ID, &o.ProductID, &o.ClientID, &o.PurchaseQuantity, &ordered); err != nil {
		return Order{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, ordered)
	if err != nil {
		return Order{}, fmt.Errorf("注文日時の解析に失敗: %w", err)
	}
	o.OrderedDate = t
	return o, nil
}

// requireAffected は1行も変更されなかった場合に ErrNotFound を返す。
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("変更行数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
